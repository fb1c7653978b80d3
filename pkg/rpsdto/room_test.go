package rpsdto

import (
	"errors"
	"testing"
	"time"

	"github.com/park285/rps-room-server/internal/rps"
)

func TestFromRoomProjectsCurrentGame(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := rps.NewRoom("r1", rps.Player{ID: "a", Name: "Ann", State: rps.PlayerReady}, nil, rps.VsFriend, rps.GameWaiting, now)

	d := FromRoom(r)
	if d.SecondPlayer != nil || d.CurrentGame == nil || d.CurrentGame.LastRound != nil {
		t.Fatalf("unexpected projection of a fresh room: %+v", d)
	}

	if err := r.Join(rps.Player{ID: "b", Name: "Ben"}, now); err != nil {
		t.Fatalf("Join: %v", err)
	}
	rules := rps.Rules{TargetRounds: 1}
	if _, err := r.Play(1, "a", rps.Rock, rules, nil, now); err != nil {
		t.Fatalf("Play a: %v", err)
	}
	d = FromRoom(r)
	lr := d.CurrentGame.LastRound
	if lr == nil || !lr.PlayerIsWaiting || !lr.Tie || lr.WinnerName != "" {
		t.Fatalf("waiting round projection: %+v", lr)
	}
	if d.FirstPlayer.PlayerState != "WAITING" {
		t.Fatalf("first player state %q", d.FirstPlayer.PlayerState)
	}

	if _, err := r.Play(1, "b", rps.Paper, rules, nil, now); err != nil {
		t.Fatalf("Play b: %v", err)
	}
	if _, err := r.NewGame("a", now); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	d = FromRoom(r)
	if d.CurrentGame.GameNumber != 2 || d.CurrentGame.LastRound != nil {
		t.Fatalf("current game should be the new one: %+v", d.CurrentGame)
	}

	// the finished game is still reachable on the aggregate
	g1, _ := r.Game(1)
	gd := gameDto(r, g1)
	if gd.WinnerName != "Ben" || gd.ScoreSecondPlayer != 1 || gd.LastRound.Tie {
		t.Fatalf("finished game projection: %+v", gd)
	}
	if gd.LastRound.RoundTurns[1].Choice != "PAPER" {
		t.Fatalf("turn choice %q", gd.LastRound.RoundTurns[1].Choice)
	}
}

func TestFromError(t *testing.T) {
	em := FromError(rps.RoomBusy("r9"))
	if em.Code != "ROOM_BUSY" || !em.Retryable {
		t.Fatalf("busy: %+v", em)
	}
	em = FromError(errors.New("dial tcp: refused"))
	if em.Code != "INTERNAL" || em.Message == "dial tcp: refused" {
		t.Fatalf("infrastructure errors must not leak: %+v", em)
	}
}
