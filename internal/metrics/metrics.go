package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/park285/rps-room-server/internal/rps"
)

// Recorder receives gameplay counters after a room mutation has committed.
type Recorder interface {
	RoomCreated(mode rps.Mode)
	InvitationAccepted(mode rps.Mode, wait time.Duration)
	GameCreated(mode rps.Mode)
	GameOver(mode rps.Mode, gameNumber int, took time.Duration)
	RoundPlayed(mode rps.Mode)
	RoundOver(mode rps.Mode, roundNumber, turns int)
	TurnPlayed(mode rps.Mode, choice rps.Choice, machine bool)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RoomCreated(rps.Mode)                       {}
func (Nop) InvitationAccepted(rps.Mode, time.Duration) {}
func (Nop) GameCreated(rps.Mode)                       {}
func (Nop) GameOver(rps.Mode, int, time.Duration)      {}
func (Nop) RoundPlayed(rps.Mode)                       {}
func (Nop) RoundOver(rps.Mode, int, int)               {}
func (Nop) TurnPlayed(rps.Mode, rps.Choice, bool)      {}

// Prometheus keeps one collector per event family, labelled by room mode.
type Prometheus struct {
	roomsCreated    *prometheus.CounterVec
	invitesAccepted *prometheus.CounterVec
	inviteWait      *prometheus.HistogramVec
	gamesCreated    *prometheus.CounterVec
	gamesOver       *prometheus.CounterVec
	gameDuration    *prometheus.HistogramVec
	roundsPlayed    *prometheus.CounterVec
	roundsOver      *prometheus.CounterVec
	turnsPlayed     *prometheus.CounterVec
}

// NewPrometheus registers the collectors on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	waitBuckets := []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}
	p := &Prometheus{
		roomsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpsgame_rooms_created_count", Help: "Rooms created.",
		}, []string{"mode"}),
		invitesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpsgame_invites_accepted_count", Help: "Second players seated in a room.",
		}, []string{"mode"}),
		inviteWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "rpsgame_invites_accepted_time_seconds", Help: "Time from room creation to second player.", Buckets: waitBuckets,
		}, []string{"mode"}),
		gamesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpsgame_games_created_count", Help: "Games created.",
		}, []string{"mode"}),
		gamesOver: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpsgame_games_over_count", Help: "Games finished.",
		}, []string{"mode", "game"}),
		gameDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "rpsgame_games_over_time_seconds", Help: "Game duration from start to finish.", Buckets: waitBuckets,
		}, []string{"mode", "game"}),
		roundsPlayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpsgame_rounds_played_count", Help: "Rounds opened.",
		}, []string{"mode"}),
		roundsOver: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpsgame_rounds_over_count", Help: "Rounds decided.",
		}, []string{"mode", "round", "turns"}),
		turnsPlayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rpsgame_turns_played_count", Help: "Turns played.",
		}, []string{"mode", "choice", "machine"}),
	}
	for _, c := range []prometheus.Collector{
		p.roomsCreated, p.invitesAccepted, p.inviteWait, p.gamesCreated, p.gamesOver,
		p.gameDuration, p.roundsPlayed, p.roundsOver, p.turnsPlayed,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) RoomCreated(mode rps.Mode) {
	p.roomsCreated.WithLabelValues(string(mode)).Inc()
}

func (p *Prometheus) InvitationAccepted(mode rps.Mode, wait time.Duration) {
	p.invitesAccepted.WithLabelValues(string(mode)).Inc()
	p.inviteWait.WithLabelValues(string(mode)).Observe(wait.Seconds())
}

func (p *Prometheus) GameCreated(mode rps.Mode) {
	p.gamesCreated.WithLabelValues(string(mode)).Inc()
}

func (p *Prometheus) GameOver(mode rps.Mode, gameNumber int, took time.Duration) {
	n := strconv.Itoa(gameNumber)
	p.gamesOver.WithLabelValues(string(mode), n).Inc()
	p.gameDuration.WithLabelValues(string(mode), n).Observe(took.Seconds())
}

func (p *Prometheus) RoundPlayed(mode rps.Mode) {
	p.roundsPlayed.WithLabelValues(string(mode)).Inc()
}

func (p *Prometheus) RoundOver(mode rps.Mode, roundNumber, turns int) {
	p.roundsOver.WithLabelValues(string(mode), strconv.Itoa(roundNumber), strconv.Itoa(turns)).Inc()
}

func (p *Prometheus) TurnPlayed(mode rps.Mode, choice rps.Choice, machine bool) {
	p.turnsPlayed.WithLabelValues(string(mode), choice.String(), strconv.FormatBool(machine)).Inc()
}
