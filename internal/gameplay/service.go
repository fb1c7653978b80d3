package gameplay

import (
    "context"
    "errors"
    "strings"
    "time"

    "go.uber.org/zap"

    "github.com/park285/rps-room-server/internal/metrics"
    "github.com/park285/rps-room-server/internal/notify"
    "github.com/park285/rps-room-server/internal/obslog"
    "github.com/park285/rps-room-server/internal/roomstore"
    "github.com/park285/rps-room-server/internal/rps"
)

// Archiver stores a finished game. Failures are logged by the caller.
type Archiver interface {
    SaveGame(ctx context.Context, room *rps.Room, gameNumber int) error
}

type Settings struct {
    Rules        rps.Rules
    TopicPattern string
}

// Service applies moves and opens follow-up games.
type Service struct {
    store   roomstore.Store
    pub     notify.Publisher
    metrics metrics.Recorder
    archive Archiver
    chooser rps.Chooser
    cfg     Settings
    now     func() time.Time
    log     *zap.Logger

    archiveTimeout time.Duration
}

type Option func(*Service)

func WithArchiver(a Archiver) Option        { return func(s *Service) { s.archive = a } }
func WithChooser(c rps.Chooser) Option      { return func(s *Service) { s.chooser = c } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithLogger(l *zap.Logger) Option       { return func(s *Service) { s.log = l } }

func NewService(store roomstore.Store, pub notify.Publisher, rec metrics.Recorder, cfg Settings, opts ...Option) *Service {
    s := &Service{
        store:          store,
        pub:            pub,
        metrics:        rec,
        chooser:        rps.CryptoChooser{},
        cfg:            cfg,
        now:            time.Now,
        archiveTimeout: 5 * time.Second,
    }
    for _, opt := range opts { opt(s) }
    if s.pub == nil { s.pub = notify.Discard{} }
    if s.metrics == nil { s.metrics = metrics.Nop{} }
    if s.cfg.Rules.TargetRounds <= 0 { s.cfg.Rules.TargetRounds = 3 }
    if s.cfg.TopicPattern == "" { s.cfg.TopicPattern = "/topic/rooms/%s" }
    s.log = obslog.Or(s.log)
    return s
}

// Play submits playerID's move in game gameNumber. The room is validated and
// mutated under the store's per-room serialization; metrics, the archive and
// the notification only see the committed result.
func (s *Service) Play(ctx context.Context, roomID string, gameNumber int, playerID string, choice rps.Choice) (*rps.Room, error) {
    roomID, playerID = strings.TrimSpace(roomID), strings.TrimSpace(playerID)
    var out *rps.TurnOutcome
    room, err := s.store.Update(ctx, roomID, func(r *rps.Room) error {
        o, err := r.Play(gameNumber, playerID, choice, s.cfg.Rules, s.chooser, s.now())
        if err != nil { return err }
        out = o
        return nil
    })
    if errors.Is(err, rps.ErrInvariant) {
        s.log.Error("play_invariant", zap.String("room_id", roomID), zap.Int("game", gameNumber), zap.Error(err))
        return nil, err
    }
    if err != nil {
        s.log.Warn("play_rejected", zap.String("room_id", roomID), zap.Int("game", gameNumber), zap.String("player_id", playerID), zap.Error(err))
        return nil, err
    }
    // the outcome points into the decoded copy that was written
    g, gerr := room.Game(gameNumber)
    if gerr != nil { return nil, gerr }

    mode := room.Mode
    if out.NewRound { s.metrics.RoundPlayed(mode) }
    s.metrics.TurnPlayed(mode, out.Turn.Choice, false)
    if out.MachineTurn != nil { s.metrics.TurnPlayed(mode, out.MachineTurn.Choice, true) }
    if out.RoundOver { s.metrics.RoundOver(mode, out.Round.Number, len(out.Round.Turns)) }
    if out.GameOver {
        s.metrics.GameOver(mode, g.Number, g.Duration())
        s.archiveGame(ctx, room, g.Number)
    }

    s.pub.Publish(notify.RoomEvent(s.cfg.TopicPattern, notify.RoundTurnPlay, room, playerID, s.now()))

    fields := []zap.Field{
        zap.String("room_id", room.ID),
        zap.Int("game", g.Number),
        zap.Int("round", out.Round.Number),
        zap.String("player_id", playerID),
        zap.String("choice", out.Turn.Choice.String()),
        zap.Int("score_first", g.Result.ScoreFirst),
        zap.Int("score_second", g.Result.ScoreSecond),
    }
    s.log.Info("turn_play", fields...)
    if out.MachineTurn != nil {
        s.log.Debug("machine_turn", zap.String("room_id", room.ID), zap.Int("game", g.Number), zap.String("choice", out.MachineTurn.Choice.String()))
    }
    if out.RoundOver {
        s.log.Info("round_over", zap.String("room_id", room.ID), zap.Int("game", g.Number), zap.Int("round", out.Round.Number), zap.String("winner_id", out.Round.Result.WinnerID))
    }
    if out.GameOver {
        s.log.Info("game_over", zap.String("room_id", room.ID), zap.Int("game", g.Number), zap.String("winner_id", g.Result.WinnerID))
    }
    return room, nil
}

// CreateNewGame opens the next game once the previous one is over.
func (s *Service) CreateNewGame(ctx context.Context, roomID, playerID string) (*rps.Room, error) {
    roomID, playerID = strings.TrimSpace(roomID), strings.TrimSpace(playerID)
    var number int
    room, err := s.store.Update(ctx, roomID, func(r *rps.Room) error {
        g, err := r.NewGame(playerID, s.now())
        if err != nil { return err }
        number = g.Number
        return nil
    })
    if err != nil {
        s.log.Warn("new_game_rejected", zap.String("room_id", roomID), zap.String("player_id", playerID), zap.Error(err))
        return nil, err
    }
    s.metrics.GameCreated(room.Mode)
    s.pub.Publish(notify.RoomEvent(s.cfg.TopicPattern, notify.NewGameCreated, room, playerID, s.now()))
    s.log.Info("game_create", zap.String("room_id", room.ID), zap.Int("game", number), zap.String("player_id", playerID))
    return room, nil
}

func (s *Service) archiveGame(ctx context.Context, room *rps.Room, gameNumber int) {
    if s.archive == nil { return }
    actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.archiveTimeout)
    defer cancel()
    if err := s.archive.SaveGame(actx, room, gameNumber); err != nil {
        s.log.Error("archive_error", zap.String("room_id", room.ID), zap.Int("game", gameNumber), zap.Error(err))
    }
}
