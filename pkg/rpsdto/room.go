package rpsdto

import "github.com/park285/rps-room-server/internal/rps"

type PlayerDto struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerState string `json:"playerState"`
}

type RoundTurnDto struct {
	PlayerID string `json:"playerId"`
	Choice   string `json:"choice"`
}

type RoundDto struct {
	RoundNumber     int            `json:"roundNumber"`
	State           string         `json:"state"`
	RoundTurns      []RoundTurnDto `json:"roundTurns"`
	PlayerIsWaiting bool           `json:"playerIsWaiting"`
	WinnerName      string         `json:"winnerName,omitempty"`
	Tie             bool           `json:"tie"`
}

type GameDto struct {
	GameNumber        int       `json:"gameNumber"`
	State             string    `json:"state"`
	LastRound         *RoundDto `json:"lastRound,omitempty"`
	WinnerName        string    `json:"winnerName,omitempty"`
	ScoreFirstPlayer  int       `json:"scoreFirstPlayer"`
	ScoreSecondPlayer int       `json:"scoreSecondPlayer"`
}

// RoomDto is the client-facing view of a room: players plus the current game.
type RoomDto struct {
	ID           string     `json:"id"`
	FirstPlayer  PlayerDto  `json:"firstPlayer"`
	SecondPlayer *PlayerDto `json:"secondPlayer,omitempty"`
	Mode         string     `json:"mode"`
	CurrentGame  *GameDto   `json:"currentGame,omitempty"`
}

// FromRoom projects the aggregate. The current game is the last one and its
// last round is the only round exposed.
func FromRoom(r *rps.Room) RoomDto {
	out := RoomDto{
		ID:          r.ID,
		FirstPlayer: playerDto(r.FirstPlayer),
		Mode:        string(r.Mode),
	}
	if r.SecondPlayer != nil {
		p := playerDto(*r.SecondPlayer)
		out.SecondPlayer = &p
	}
	if g := r.LastGame(); g != nil {
		gd := gameDto(r, g)
		out.CurrentGame = &gd
	}
	return out
}

func playerDto(p rps.Player) PlayerDto {
	return PlayerDto{ID: p.ID, Name: p.Name, PlayerState: string(p.State)}
}

func gameDto(r *rps.Room, g *rps.Game) GameDto {
	out := GameDto{
		GameNumber:        g.Number,
		State:             string(g.State),
		WinnerName:        r.PlayerName(g.Result.WinnerID),
		ScoreFirstPlayer:  g.Result.ScoreFirst,
		ScoreSecondPlayer: g.Result.ScoreSecond,
	}
	if rd := g.LastRound(); rd != nil {
		d := roundDto(r, rd)
		out.LastRound = &d
	}
	return out
}

func roundDto(r *rps.Room, rd *rps.Round) RoundDto {
	out := RoundDto{
		RoundNumber:     rd.Number,
		State:           string(rd.State),
		RoundTurns:      make([]RoundTurnDto, 0, len(rd.Turns)),
		PlayerIsWaiting: rd.Waiting(),
		// undecided rounds read as tied, as clients expect
		Tie: true,
	}
	for _, t := range rd.Turns {
		out.RoundTurns = append(out.RoundTurns, RoundTurnDto{PlayerID: t.PlayerID, Choice: t.Choice.String()})
	}
	if rd.Result != nil {
		out.Tie = rd.Result.Tie
		out.WinnerName = r.PlayerName(rd.Result.WinnerID)
	}
	return out
}
