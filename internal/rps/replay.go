package rps

import "fmt"

// Replay rebuilds a room from its recorded turns, applying each one through
// the same turn logic used during play. Machine turns are taken as recorded.
func Replay(src *Room, rules Rules) (*Room, error) {
	out := &Room{
		ID:                     src.ID,
		FirstPlayer:            Player{ID: src.FirstPlayer.ID, Name: src.FirstPlayer.Name, State: PlayerReady},
		Mode:                   src.Mode,
		Games:                  []*Game{},
		CreationTime:           src.CreationTime,
		InvitationAcceptedTime: src.InvitationAcceptedTime,
	}
	if src.SecondPlayer != nil {
		out.SecondPlayer = &Player{ID: src.SecondPlayer.ID, Name: src.SecondPlayer.Name, State: PlayerReady}
	}

	for _, sg := range src.Games {
		state := sg.State
		if len(sg.Rounds) > 0 {
			state = GameAccepted
		}
		g := out.addGame(state, sg.StartTime)
		now := sg.StartTime
		if sg.FinishTime != nil {
			now = *sg.FinishTime
		}
		for _, sr := range sg.Rounds {
			for _, t := range sr.Turns {
				if out.SecondPlayer == nil {
					return nil, fmt.Errorf("%w: room %s has turns without a second player", ErrInvariant, src.ID)
				}
				if g.State == GameOver {
					return nil, fmt.Errorf("%w: game %d in room %s has turns after it ended", ErrInvariant, g.Number, src.ID)
				}
				if err := out.checkTurnOrder(g, t.PlayerID); err != nil {
					return nil, err
				}
				st, err := out.applyTurn(g, t, rules, now)
				if err != nil {
					return nil, err
				}
				out.updatePlayerStates(st.round, t.PlayerID)
			}
		}
	}
	return out, nil
}

// Verify replays src and reports the first difference in round layout,
// scores or states.
func Verify(src *Room, rules Rules) error {
	re, err := Replay(src, rules)
	if err != nil {
		return err
	}
	if len(re.Games) != len(src.Games) {
		return mismatch(src.ID, "game count %d != %d", len(re.Games), len(src.Games))
	}
	for i, g := range src.Games {
		rg := re.Games[i]
		if rg.State != g.State {
			return mismatch(src.ID, "game %d state %s != %s", g.Number, rg.State, g.State)
		}
		if rg.Result != g.Result {
			return mismatch(src.ID, "game %d result %+v != %+v", g.Number, rg.Result, g.Result)
		}
		if len(rg.Rounds) != len(g.Rounds) {
			return mismatch(src.ID, "game %d round count %d != %d", g.Number, len(rg.Rounds), len(g.Rounds))
		}
		for j, rd := range g.Rounds {
			rr := rg.Rounds[j]
			if rr.Number != rd.Number || rr.State != rd.State || !sameResult(rr.Result, rd.Result) {
				return mismatch(src.ID, "game %d round %d differs", g.Number, rd.Number)
			}
		}
	}
	if re.FirstPlayer.State != src.FirstPlayer.State {
		return mismatch(src.ID, "first player state %s != %s", re.FirstPlayer.State, src.FirstPlayer.State)
	}
	if src.SecondPlayer != nil && re.SecondPlayer.State != src.SecondPlayer.State {
		return mismatch(src.ID, "second player state %s != %s", re.SecondPlayer.State, src.SecondPlayer.State)
	}
	return nil
}

func sameResult(a, b *RoundResult) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func mismatch(roomID, format string, args ...any) error {
	return fmt.Errorf("%w: replay of room %s: %s", ErrInvariant, roomID, fmt.Sprintf(format, args...))
}
