package rps

import (
	"strings"
	"time"
)

// PlayerState tells a client whether it may move.
type PlayerState string

const (
	PlayerReady   PlayerState = "READY"
	PlayerWaiting PlayerState = "WAITING"
)

// GameState is the lifecycle of one game within a room.
type GameState string

const (
	GameWaiting  GameState = "WAITING"
	GameAccepted GameState = "ACCEPTED"
	GamePlaying  GameState = "PLAYING"
	GameOver     GameState = "OVER"
)

// RoundState is OVER only once a decisive result is recorded.
type RoundState string

const (
	RoundPlaying RoundState = "PLAYING"
	RoundOver    RoundState = "OVER"
)

// Mode is the pairing strategy of a room. It never changes after creation.
type Mode string

const (
	VsFriend       Mode = "VS_FRIEND"
	VsMachine      Mode = "VS_MACHINE"
	VsRandomPlayer Mode = "VS_RANDOM_PLAYER"
)

// Modes lists every supported mode.
var Modes = [...]Mode{VsFriend, VsMachine, VsRandomPlayer}

func ParseMode(s string) (Mode, error) {
	v := Mode(strings.ToUpper(strings.TrimSpace(s)))
	for _, m := range Modes {
		if m == v {
			return m, nil
		}
	}
	return "", InvalidMode(s)
}

type Player struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	State PlayerState `json:"state"`
}

// RoundTurn references its player by id; the canonical Player lives on the Room.
type RoundTurn struct {
	PlayerID string `json:"player_id"`
	Choice   Choice `json:"choice"`
}

// RoundResult is present only when the round holds an even, positive number of turns.
type RoundResult struct {
	WinnerID string `json:"winner_id,omitempty"`
	Tie      bool   `json:"tie"`
}

type Round struct {
	Number int          `json:"number"`
	Turns  []RoundTurn  `json:"turns"`
	Result *RoundResult `json:"result,omitempty"`
	State  RoundState   `json:"state"`
}

// Waiting reports whether one side has moved and the other has not yet replied.
func (r *Round) Waiting() bool { return len(r.Turns)%2 == 1 }

func (r *Round) LastTurn() (RoundTurn, bool) {
	if len(r.Turns) == 0 {
		return RoundTurn{}, false
	}
	return r.Turns[len(r.Turns)-1], true
}

// latestTurnOf scans backwards; a tied round slot can hold several turns per player.
func (r *Round) latestTurnOf(playerID string) (RoundTurn, bool) {
	for i := len(r.Turns) - 1; i >= 0; i-- {
		if r.Turns[i].PlayerID == playerID {
			return r.Turns[i], true
		}
	}
	return RoundTurn{}, false
}

type GameResult struct {
	WinnerID    string `json:"winner_id,omitempty"`
	ScoreFirst  int    `json:"score_first"`
	ScoreSecond int    `json:"score_second"`
}

type Game struct {
	Number     int        `json:"number"`
	State      GameState  `json:"state"`
	Result     GameResult `json:"result"`
	Rounds     []*Round   `json:"rounds"`
	StartTime  time.Time  `json:"start_time"`
	FinishTime *time.Time `json:"finish_time,omitempty"`
}

func (g *Game) LastRound() *Round {
	if len(g.Rounds) == 0 {
		return nil
	}
	return g.Rounds[len(g.Rounds)-1]
}

func (g *Game) addRound() *Round {
	rd := &Round{Number: len(g.Rounds) + 1, Turns: []RoundTurn{}, State: RoundPlaying}
	g.Rounds = append(g.Rounds, rd)
	return rd
}

// Duration is the wall time between start and finish, zero while unfinished.
func (g *Game) Duration() time.Duration {
	if g.FinishTime == nil {
		return 0
	}
	return g.FinishTime.Sub(g.StartTime)
}

// Room is the aggregate root. It owns its games, which own their rounds.
type Room struct {
	ID                     string     `json:"id"`
	FirstPlayer            Player     `json:"first_player"`
	SecondPlayer           *Player    `json:"second_player,omitempty"`
	Mode                   Mode       `json:"mode"`
	Games                  []*Game    `json:"games"`
	CreationTime           time.Time  `json:"creation_time"`
	InvitationAcceptedTime *time.Time `json:"invitation_accepted_time,omitempty"`
}

// Rules are the configured inputs the state machine depends on.
type Rules struct {
	// TargetRounds is the number of decisive round wins that ends a game.
	TargetRounds int
}
