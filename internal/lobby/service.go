package lobby

import (
    "context"
    "errors"
    "strings"
    "time"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/park285/rps-room-server/internal/metrics"
    "github.com/park285/rps-room-server/internal/notify"
    "github.com/park285/rps-room-server/internal/obslog"
    "github.com/park285/rps-room-server/internal/roomstore"
    "github.com/park285/rps-room-server/internal/rps"
)

// maxSearches bounds how often a random join re-reads the lobby after every
// candidate it tried was taken.
const maxSearches = 5

type Settings struct {
    MachineName  string
    MaxWait      time.Duration
    TopicPattern string
}

// Service creates rooms, pairs random players and accepts invitations.
type Service struct {
    store   roomstore.Store
    pub     notify.Publisher
    metrics metrics.Recorder
    cfg     Settings
    now     func() time.Time
    newID   func() string
    log     *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithIDs(gen func() string) Option       { return func(s *Service) { s.newID = gen } }
func WithLogger(l *zap.Logger) Option        { return func(s *Service) { s.log = l } }

func NewService(store roomstore.Store, pub notify.Publisher, rec metrics.Recorder, cfg Settings, opts ...Option) *Service {
    s := &Service{store: store, pub: pub, metrics: rec, cfg: cfg, now: time.Now, newID: uuid.NewString}
    for _, opt := range opts { opt(s) }
    if s.pub == nil { s.pub = notify.Discard{} }
    if s.metrics == nil { s.metrics = metrics.Nop{} }
    if strings.TrimSpace(s.cfg.MachineName) == "" { s.cfg.MachineName = "Machine" }
    if s.cfg.TopicPattern == "" { s.cfg.TopicPattern = "/topic/rooms/%s" }
    s.log = obslog.Or(s.log)
    return s
}

// GetRoom returns the stored room or a NotFound error.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*rps.Room, error) {
    return s.store.Load(ctx, strings.TrimSpace(roomID))
}

// CreateRoom opens a room for firstPlayerName. In VS_RANDOM_PLAYER mode the
// player is first seated in the oldest open room still inside the wait
// window; only when none can be claimed is a new room created.
func (s *Service) CreateRoom(ctx context.Context, firstPlayerName, mode string) (*rps.Room, error) {
    m, err := rps.ParseMode(mode)
    if err != nil { return nil, err }
    name := strings.TrimSpace(firstPlayerName)
    if name == "" { return nil, invalidName() }
    player := rps.Player{ID: s.newID(), Name: name, State: rps.PlayerReady}

    switch m {
    case rps.VsMachine:
        machine := &rps.Player{ID: s.newID(), Name: s.cfg.MachineName, State: rps.PlayerReady}
        return s.create(ctx, rps.NewRoom(s.newID(), player, machine, m, rps.GameAccepted, s.now()))
    case rps.VsRandomPlayer:
        room, joined, err := s.joinRandom(ctx, player)
        if err != nil || joined { return room, err }
        return s.create(ctx, rps.NewRoom(s.newID(), player, nil, m, rps.GameWaiting, s.now()))
    default:
        return s.create(ctx, rps.NewRoom(s.newID(), player, nil, m, rps.GameWaiting, s.now()))
    }
}

func (s *Service) create(ctx context.Context, room *rps.Room) (*rps.Room, error) {
    if err := s.store.Create(ctx, room); err != nil {
        s.log.Warn("room_create_error", zap.String("room_id", room.ID), zap.Error(err))
        return nil, err
    }
    s.metrics.RoomCreated(room.Mode)
    // every room opens with game 1
    s.metrics.GameCreated(room.Mode)
    s.log.Info("room_create", zap.String("room_id", room.ID), zap.String("mode", string(room.Mode)), zap.String("first_player_id", room.FirstPlayer.ID))
    return room, nil
}

// joinRandom tries to take the second seat of an open random room. Losing a
// race for one candidate moves on to the next.
func (s *Service) joinRandom(ctx context.Context, player rps.Player) (*rps.Room, bool, error) {
    for search := 0; search < maxSearches; search++ {
        now := s.now()
        candidates, err := s.store.FindAvailable(ctx, rps.VsRandomPlayer, now.Add(-s.cfg.MaxWait))
        if err != nil { return nil, false, err }
        if len(candidates) == 0 { return nil, false, nil }

        for _, c := range candidates {
            room, err := s.store.Update(ctx, c.ID, func(r *rps.Room) error { return r.Join(player, now) })
            switch {
            case err == nil:
                s.accepted(room, player.ID, "random")
                return room, true, nil
            case errors.Is(err, rps.ErrRoomFull), errors.Is(err, rps.ErrNotFound), errors.Is(err, rps.ErrRoomBusy):
                s.log.Debug("random_join_miss", zap.String("room_id", c.ID), zap.Error(err))
                continue
            case ctx.Err() != nil:
                return nil, false, ctx.Err()
            default:
                return nil, false, err
            }
        }
    }
    return nil, false, nil
}

// AcceptRoomInvitation seats secondPlayerName in a VS_FRIEND room.
func (s *Service) AcceptRoomInvitation(ctx context.Context, roomID, secondPlayerName string) (*rps.Room, error) {
    name := strings.TrimSpace(secondPlayerName)
    if name == "" { return nil, invalidName() }
    player := rps.Player{ID: s.newID(), Name: name, State: rps.PlayerReady}
    now := s.now()
    room, err := s.store.Update(ctx, strings.TrimSpace(roomID), func(r *rps.Room) error { return r.Join(player, now) })
    if err != nil {
        s.log.Warn("invite_accept_error", zap.String("room_id", roomID), zap.Error(err))
        return nil, err
    }
    s.accepted(room, player.ID, "invite")
    return room, nil
}

// accepted runs after a join is committed.
func (s *Service) accepted(room *rps.Room, playerID, via string) {
    var wait time.Duration
    if room.InvitationAcceptedTime != nil { wait = room.InvitationAcceptedTime.Sub(room.CreationTime) }
    s.metrics.InvitationAccepted(room.Mode, wait)
    s.pub.Publish(notify.RoomEvent(s.cfg.TopicPattern, notify.InvitationAccepted, room, playerID, s.now()))
    event := "room_join"
    if via == "invite" { event = "invite_accept" }
    s.log.Info(event,
        zap.String("room_id", room.ID),
        zap.String("mode", string(room.Mode)),
        zap.String("second_player_id", playerID),
        zap.Duration("wait", wait),
    )
}

func invalidName() error {
    return &rps.Error{Kind: rps.KindInvalidPlayer, Msg: "Player name must not be empty"}
}
