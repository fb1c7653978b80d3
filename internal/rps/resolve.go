package rps

import (
	"fmt"
	"time"
)

// ResolveRound decides a round from each side's most recent turn. It returns
// nil while the turn count is zero or odd.
func ResolveRound(rd *Round, firstID, secondID string) (*RoundResult, error) {
	n := len(rd.Turns)
	if n == 0 || n%2 != 0 {
		return nil, nil
	}
	a, ok := rd.latestTurnOf(firstID)
	if !ok {
		return nil, fmt.Errorf("%w: round %d has no turn for player %s", ErrInvariant, rd.Number, firstID)
	}
	b, ok := rd.latestTurnOf(secondID)
	if !ok {
		return nil, fmt.Errorf("%w: round %d has no turn for player %s", ErrInvariant, rd.Number, secondID)
	}
	switch Resolve(a.Choice, b.Choice) {
	case FirstWins:
		return &RoundResult{WinnerID: firstID}, nil
	case SecondWins:
		return &RoundResult{WinnerID: secondID}, nil
	default:
		return &RoundResult{Tie: true}, nil
	}
}

// resolveGame records the round result and, when decisive, closes the round
// and scores it. Reaching the target closes the game with the round's winner.
func resolveGame(g *Game, rd *Round, res *RoundResult, firstID string, rules Rules, now time.Time) (roundOver, gameOver bool) {
	rd.Result = res
	if res == nil || res.Tie {
		return false, false
	}
	rd.State = RoundOver
	if res.WinnerID == firstID {
		g.Result.ScoreFirst++
	} else {
		g.Result.ScoreSecond++
	}
	target := rules.TargetRounds
	if target <= 0 {
		target = 1
	}
	if g.Result.ScoreFirst >= target || g.Result.ScoreSecond >= target {
		g.State = GameOver
		g.Result.WinnerID = res.WinnerID
		t := now
		g.FinishTime = &t
		return true, true
	}
	return true, false
}
