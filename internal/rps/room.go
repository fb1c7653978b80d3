package rps

import "time"

// NewRoom builds a room with its first game in the given state. A present
// second player marks the invitation as accepted at creation.
func NewRoom(id string, first Player, second *Player, mode Mode, gameState GameState, now time.Time) *Room {
	r := &Room{
		ID:           id,
		FirstPlayer:  first,
		SecondPlayer: second,
		Mode:         mode,
		Games:        []*Game{},
		CreationTime: now,
	}
	if second != nil {
		t := now
		r.InvitationAcceptedTime = &t
	}
	r.addGame(gameState, now)
	return r
}

func (r *Room) addGame(state GameState, now time.Time) *Game {
	g := &Game{Number: len(r.Games) + 1, State: state, Rounds: []*Round{}, StartTime: now}
	r.Games = append(r.Games, g)
	return g
}

// Game looks a game up by its 1-based number.
func (r *Room) Game(number int) (*Game, error) {
	for _, g := range r.Games {
		if g.Number == number {
			return g, nil
		}
	}
	return nil, errorf(KindNotFound, "Game [%d] not found in room [%s]", number, r.ID)
}

func (r *Room) LastGame() *Game {
	if len(r.Games) == 0 {
		return nil
	}
	return r.Games[len(r.Games)-1]
}

// Player returns the room's canonical copy of a participant.
func (r *Room) Player(id string) (*Player, bool) {
	if id == "" {
		return nil, false
	}
	if r.FirstPlayer.ID == id {
		return &r.FirstPlayer, true
	}
	if r.SecondPlayer != nil && r.SecondPlayer.ID == id {
		return r.SecondPlayer, true
	}
	return nil, false
}

// Opponent of the given participant, nil while the seat is empty.
func (r *Room) Opponent(id string) *Player {
	if r.FirstPlayer.ID == id {
		return r.SecondPlayer
	}
	if r.SecondPlayer != nil && r.SecondPlayer.ID == id {
		return &r.FirstPlayer
	}
	return nil
}

// PlayerName resolves an id to a display name, empty when unknown.
func (r *Room) PlayerName(id string) string {
	if p, ok := r.Player(id); ok {
		return p.Name
	}
	return ""
}

func (r *Room) checkMember(playerID string) (*Player, error) {
	p, ok := r.Player(playerID)
	if !ok {
		return nil, errorf(KindInvalidPlayer, "Player [%s] is NOT registered in room [%s]", playerID, r.ID)
	}
	return p, nil
}

// Join seats the second player. It succeeds at most once per room; the first
// game moves to ACCEPTED and the acceptance time is stamped.
func (r *Room) Join(second Player, now time.Time) error {
	if r.SecondPlayer != nil {
		return errorf(KindRoomFull, "Room [%s] already has two players", r.ID)
	}
	if second.ID == "" || second.ID == r.FirstPlayer.ID {
		return errorf(KindInvalidPlayer, "Player [%s] can't join room [%s] twice", second.ID, r.ID)
	}
	g, err := r.Game(1)
	if err != nil {
		return err
	}
	second.State = PlayerReady
	r.SecondPlayer = &second
	t := now
	r.InvitationAcceptedTime = &t
	g.State = GameAccepted
	return nil
}

// NewGame appends a WAITING game once the previous one is over.
func (r *Room) NewGame(playerID string, now time.Time) (*Game, error) {
	if _, err := r.checkMember(playerID); err != nil {
		return nil, err
	}
	last := r.LastGame()
	if last != nil && last.State != GameOver {
		return nil, errorf(KindPreviousGameNotFinished,
			"Last Game [%d] in room [%s] is NOT OVER. Can't create a new game in this room", last.Number, r.ID)
	}
	return r.addGame(GameWaiting, now), nil
}
