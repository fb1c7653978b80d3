package rps

import "time"

// TurnOutcome describes what a successful Play changed.
type TurnOutcome struct {
	Game  *Game
	Round *Round
	Turn  RoundTurn
	// MachineTurn is set when the machine replied in the same call.
	MachineTurn *RoundTurn
	NewRound    bool
	RoundOver   bool
	GameOver    bool
}

// Play validates and applies one move. All validation happens before any
// mutation, so a returned error leaves the room untouched.
func (r *Room) Play(gameNumber int, playerID string, choice Choice, rules Rules, chooser Chooser, now time.Time) (*TurnOutcome, error) {
	g, err := r.Game(gameNumber)
	if err != nil {
		return nil, err
	}
	if _, err := r.checkMember(playerID); err != nil {
		return nil, err
	}
	if r.Mode == VsMachine && r.SecondPlayer != nil && playerID == r.SecondPlayer.ID {
		return nil, errorf(KindInvalidPlayer, "Player [%s] is the machine in room [%s]", playerID, r.ID)
	}
	if r.SecondPlayer == nil {
		return nil, errorf(KindOpponentMissing, "Room [%s] is still waiting for a second player", r.ID)
	}
	if g.State == GameOver {
		return nil, errorf(KindGameAlreadyOver, "Game [%d] in room [%s] is OVER", g.Number, r.ID)
	}
	if err := r.checkTurnOrder(g, playerID); err != nil {
		return nil, err
	}
	if !choice.Valid() {
		return nil, invalidChoice()
	}

	st, err := r.applyTurn(g, RoundTurn{PlayerID: playerID, Choice: choice}, rules, now)
	if err != nil {
		return nil, err
	}
	out := &TurnOutcome{Game: g, Round: st.round, Turn: st.turn, NewRound: st.newRound}

	if r.Mode == VsMachine {
		if chooser == nil {
			chooser = CryptoChooser{}
		}
		mt := RoundTurn{PlayerID: r.SecondPlayer.ID, Choice: chooser.Choose()}
		mst, err := r.applyTurn(g, mt, rules, now)
		if err != nil {
			return nil, err
		}
		out.MachineTurn = &mt
		st = mst
	}
	out.RoundOver, out.GameOver = st.roundOver, st.gameOver
	r.updatePlayerStates(st.round, playerID)
	return out, nil
}

func (r *Room) checkTurnOrder(g *Game, playerID string) error {
	rd := g.LastRound()
	if rd == nil {
		return nil
	}
	last, ok := rd.LastTurn()
	if ok && last.PlayerID == playerID && rd.Waiting() {
		return errorf(KindIncorrectPlayerTurn, "Player [%s] is playing 2 consecutive turns [game: %d] [room: %s]",
			r.PlayerName(playerID), g.Number, r.ID)
	}
	return nil
}

type turnStep struct {
	round     *Round
	turn      RoundTurn
	newRound  bool
	roundOver bool
	gameOver  bool
}

// applyTurn appends a turn to the current round (opening one when none is
// open) and re-resolves the round and the game.
func (r *Room) applyTurn(g *Game, t RoundTurn, rules Rules, now time.Time) (turnStep, error) {
	g.State = GamePlaying
	st := turnStep{turn: t}
	rd := g.LastRound()
	if rd == nil || rd.State == RoundOver {
		rd = g.addRound()
		st.newRound = true
	}
	rd.Turns = append(rd.Turns, t)
	st.round = rd

	res, err := ResolveRound(rd, r.FirstPlayer.ID, r.SecondPlayer.ID)
	if err != nil {
		return st, err
	}
	st.roundOver, st.gameOver = resolveGame(g, rd, res, r.FirstPlayer.ID, rules, now)
	return st, nil
}

// updatePlayerStates marks the mover WAITING while the opponent owes a reply;
// otherwise both sides are READY.
func (r *Room) updatePlayerStates(rd *Round, moverID string) {
	if rd.Waiting() {
		if p, ok := r.Player(moverID); ok {
			p.State = PlayerWaiting
		}
		if o := r.Opponent(moverID); o != nil {
			o.State = PlayerReady
		}
		return
	}
	r.FirstPlayer.State = PlayerReady
	if r.SecondPlayer != nil {
		r.SecondPlayer.State = PlayerReady
	}
}
