package rps

import (
	"errors"
	"fmt"
)

// Kind classifies caller-visible failures.
type Kind string

const (
	KindNotFound                Kind = "NOT_FOUND"
	KindInvalidPlayer           Kind = "INVALID_PLAYER"
	KindGameAlreadyOver         Kind = "GAME_ALREADY_OVER"
	KindPreviousGameNotFinished Kind = "PREVIOUS_GAME_NOT_FINISHED"
	KindIncorrectPlayerTurn     Kind = "INCORRECT_PLAYER_TURN"
	KindInvalidChoice           Kind = "INVALID_CHOICE"
	KindInvalidMode             Kind = "INVALID_MODE"
	KindOpponentMissing         Kind = "OPPONENT_MISSING"
	KindRoomFull                Kind = "ROOM_FULL"
	KindRoomBusy                Kind = "ROOM_BUSY"

	// KindGameOver only appears on the ErrGameOver sentinel. It matches both
	// game-over variants.
	KindGameOver Kind = "GAME_OVER"
)

// Error is a classified failure with a message naming the room, game, round
// or player involved.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Kind)
}

// Is matches sentinels by kind so that errors.Is(err, ErrNotFound) works for
// any NotFound error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == KindGameOver {
		return e.Kind == KindGameOver || e.Kind == KindGameAlreadyOver || e.Kind == KindPreviousGameNotFinished
	}
	return e.Kind == t.Kind
}

var (
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrInvalidPlayer           = &Error{Kind: KindInvalidPlayer}
	ErrGameAlreadyOver         = &Error{Kind: KindGameAlreadyOver}
	ErrPreviousGameNotFinished = &Error{Kind: KindPreviousGameNotFinished}
	ErrGameOver                = &Error{Kind: KindGameOver}
	ErrIncorrectPlayerTurn     = &Error{Kind: KindIncorrectPlayerTurn}
	ErrInvalidChoice           = &Error{Kind: KindInvalidChoice}
	ErrInvalidMode             = &Error{Kind: KindInvalidMode}
	ErrOpponentMissing         = &Error{Kind: KindOpponentMissing}
	ErrRoomFull                = &Error{Kind: KindRoomFull}
	ErrRoomBusy                = &Error{Kind: KindRoomBusy}
)

// ErrInvariant marks a broken internal invariant. It never carries a Kind and
// is not meant for display.
var ErrInvariant = errors.New("rps: invariant violation")

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RoomNotFound is shared with the persistence layer.
func RoomNotFound(roomID string) error {
	return errorf(KindNotFound, "Room [%s] NOT FOUND", roomID)
}

// RoomBusy reports that a room mutation could not be applied in time.
func RoomBusy(roomID string) error {
	return errorf(KindRoomBusy, "Room [%s] is busy, retry the operation", roomID)
}

func InvalidMode(mode string) error {
	return errorf(KindInvalidMode, "Invalid game mode [%s]. It should be VS_FRIEND, VS_MACHINE or VS_RANDOM_PLAYER", mode)
}

func invalidChoice() error {
	return errorf(KindInvalidChoice, "Invalid Choice. It should be ROCK, PAPER or SCISSORS")
}
