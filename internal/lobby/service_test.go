package lobby

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"
    "golang.org/x/sync/errgroup"

    "github.com/park285/rps-room-server/internal/metrics"
    "github.com/park285/rps-room-server/internal/notify"
    "github.com/park285/rps-room-server/internal/roomstore"
    "github.com/park285/rps-room-server/internal/rps"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
    mu     sync.Mutex
    events []notify.Event
}

func (p *recordingPublisher) Publish(ev notify.Event) bool {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.events = append(p.events, ev)
    return true
}

func (p *recordingPublisher) all() []notify.Event {
    p.mu.Lock()
    defer p.mu.Unlock()
    return append([]notify.Event(nil), p.events...)
}

type countingMetrics struct {
    metrics.Nop
    created  atomic.Int32
    games    atomic.Int32
    accepted atomic.Int32
}

func (m *countingMetrics) RoomCreated(rps.Mode)                       { m.created.Add(1) }
func (m *countingMetrics) GameCreated(rps.Mode)                       { m.games.Add(1) }
func (m *countingMetrics) InvitationAccepted(rps.Mode, time.Duration) { m.accepted.Add(1) }

type fixture struct {
    svc   *Service
    store roomstore.Store
    pub   *recordingPublisher
    rec   *countingMetrics
    clock *atomic.Int64
}

func newFixture(t *testing.T, store roomstore.Store) *fixture {
    t.Helper()
    var seq atomic.Int64
    clock := &atomic.Int64{}
    clock.Store(t0.UnixNano())
    f := &fixture{store: store, pub: &recordingPublisher{}, rec: &countingMetrics{}, clock: clock}
    f.svc = NewService(store, f.pub, f.rec,
        Settings{MachineName: "Machine", MaxWait: 5 * time.Minute, TopicPattern: "/topic/rooms/%s"},
        WithClock(func() time.Time { return time.Unix(0, clock.Load()).UTC() }),
        WithIDs(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
    )
    return f
}

func (f *fixture) advance(d time.Duration) { f.clock.Add(int64(d)) }

func newRedisStore(t *testing.T) roomstore.Store {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return roomstore.NewRedisStore(rdb, roomstore.Options{})
}

func TestFriendInvitation(t *testing.T) {
    f := newFixture(t, roomstore.NewMemoryStore(roomstore.Options{}))
    ctx := context.Background()

    room, err := f.svc.CreateRoom(ctx, "Alice", "VS_FRIEND")
    if err != nil {
        t.Fatalf("CreateRoom: %v", err)
    }
    if room.SecondPlayer != nil || room.Games[0].State != rps.GameWaiting {
        t.Fatalf("unexpected new room %+v", room)
    }

    f.advance(90 * time.Second)
    joined, err := f.svc.AcceptRoomInvitation(ctx, room.ID, "Bob")
    if err != nil {
        t.Fatalf("Accept: %v", err)
    }
    if joined.SecondPlayer == nil || joined.SecondPlayer.Name != "Bob" || joined.Games[0].State != rps.GameAccepted {
        t.Fatalf("unexpected joined room %+v", joined)
    }
    if joined.InvitationAcceptedTime == nil || joined.InvitationAcceptedTime.Sub(joined.CreationTime) != 90*time.Second {
        t.Fatalf("accepted time %v", joined.InvitationAcceptedTime)
    }

    evs := f.pub.all()
    if len(evs) != 1 || evs[0].Type != notify.InvitationAccepted || evs[0].Data.PlayerID != joined.SecondPlayer.ID {
        t.Fatalf("unexpected events %+v", evs)
    }
    if evs[0].Destination != "/topic/rooms/"+room.ID {
        t.Fatalf("destination %q", evs[0].Destination)
    }

    _, err = f.svc.AcceptRoomInvitation(ctx, room.ID, "Carol")
    if !errors.Is(err, rps.ErrRoomFull) {
        t.Fatalf("expected RoomFull, got %v", err)
    }
    if len(f.pub.all()) != 1 || f.rec.accepted.Load() != 1 {
        t.Fatalf("failed accept must not notify or count")
    }

    got, err := f.svc.GetRoom(ctx, room.ID)
    if err != nil || got.SecondPlayer.Name != "Bob" {
        t.Fatalf("GetRoom: %+v %v", got, err)
    }
}

func TestMachineRoomIsReady(t *testing.T) {
    f := newFixture(t, roomstore.NewMemoryStore(roomstore.Options{}))
    room, err := f.svc.CreateRoom(context.Background(), "Alice", "VS_MACHINE")
    if err != nil {
        t.Fatalf("CreateRoom: %v", err)
    }
    if room.SecondPlayer == nil || room.SecondPlayer.Name != "Machine" || room.Games[0].State != rps.GameAccepted {
        t.Fatalf("unexpected machine room %+v", room)
    }
    _, err = f.svc.AcceptRoomInvitation(context.Background(), room.ID, "Bob")
    if !errors.Is(err, rps.ErrRoomFull) {
        t.Fatalf("expected RoomFull, got %v", err)
    }
}

func TestCreateRoomValidation(t *testing.T) {
    f := newFixture(t, roomstore.NewMemoryStore(roomstore.Options{}))
    ctx := context.Background()
    if _, err := f.svc.CreateRoom(ctx, "Alice", "VS_ALIENS"); !errors.Is(err, rps.ErrInvalidMode) {
        t.Fatalf("expected InvalidMode, got %v", err)
    }
    if _, err := f.svc.CreateRoom(ctx, "  ", "VS_FRIEND"); !errors.Is(err, rps.ErrInvalidPlayer) {
        t.Fatalf("expected InvalidPlayer, got %v", err)
    }
    if _, err := f.svc.AcceptRoomInvitation(ctx, "nope", "Bob"); !errors.Is(err, rps.ErrNotFound) {
        t.Fatalf("expected NotFound, got %v", err)
    }
    if f.rec.created.Load() != 0 {
        t.Fatalf("rejected requests must not count rooms")
    }
}

func TestRandomPairing(t *testing.T) {
    f := newFixture(t, newRedisStore(t))
    ctx := context.Background()

    first, err := f.svc.CreateRoom(ctx, "Alice", "VS_RANDOM_PLAYER")
    if err != nil {
        t.Fatalf("first: %v", err)
    }
    if first.SecondPlayer != nil {
        t.Fatalf("first random player should wait")
    }

    f.advance(time.Minute)
    second, err := f.svc.CreateRoom(ctx, "Bob", "VS_RANDOM_PLAYER")
    if err != nil {
        t.Fatalf("second: %v", err)
    }
    if second.ID != first.ID || second.SecondPlayer == nil || second.SecondPlayer.Name != "Bob" {
        t.Fatalf("Bob should join Alice's room: %+v", second)
    }
    evs := f.pub.all()
    if len(evs) != 1 || evs[0].Data.PlayerID != second.SecondPlayer.ID {
        t.Fatalf("unexpected events %+v", evs)
    }

    third, err := f.svc.CreateRoom(ctx, "Carol", "VS_RANDOM_PLAYER")
    if err != nil {
        t.Fatalf("third: %v", err)
    }
    if third.ID == first.ID || third.SecondPlayer != nil {
        t.Fatalf("Carol should open a new room: %+v", third)
    }
}

func TestRandomSkipsRoomsPastWaitWindow(t *testing.T) {
    f := newFixture(t, roomstore.NewMemoryStore(roomstore.Options{}))
    ctx := context.Background()
    old, err := f.svc.CreateRoom(ctx, "Alice", "VS_RANDOM_PLAYER")
    if err != nil {
        t.Fatalf("first: %v", err)
    }
    f.advance(6 * time.Minute)
    fresh, err := f.svc.CreateRoom(ctx, "Bob", "VS_RANDOM_PLAYER")
    if err != nil {
        t.Fatalf("second: %v", err)
    }
    if fresh.ID == old.ID || fresh.SecondPlayer != nil {
        t.Fatalf("stale room must not be matched")
    }
    // friend rooms never take random players
    friend, _ := f.svc.CreateRoom(ctx, "Dan", "VS_FRIEND")
    r, err := f.svc.CreateRoom(ctx, "Eve", "VS_RANDOM_PLAYER")
    if err != nil || r.ID == friend.ID {
        t.Fatalf("random player landed in a friend room: %v", err)
    }
}

func TestConcurrentRandomJoins(t *testing.T) {
    f := newFixture(t, newRedisStore(t))
    ctx := context.Background()
    const n = 12

    rooms := make([]*rps.Room, n)
    var g errgroup.Group
    for i := 0; i < n; i++ {
        g.Go(func() error {
            r, err := f.svc.CreateRoom(ctx, fmt.Sprintf("player-%d", i), "VS_RANDOM_PLAYER")
            rooms[i] = r
            return err
        })
    }
    if err := g.Wait(); err != nil {
        t.Fatalf("CreateRoom: %v", err)
    }

    seats := map[string]string{}
    distinct := map[string]bool{}
    for _, r := range rooms {
        distinct[r.ID] = true
    }
    for id := range distinct {
        r, err := f.store.Load(ctx, id)
        if err != nil {
            t.Fatalf("Load: %v", err)
        }
        for _, p := range []*rps.Player{&r.FirstPlayer, r.SecondPlayer} {
            if p == nil {
                continue
            }
            if prev, ok := seats[p.Name]; ok {
                t.Fatalf("%s seated in %s and %s", p.Name, prev, id)
            }
            seats[p.Name] = id
        }
    }
    if len(seats) != n {
        t.Fatalf("seated %d players, want %d", len(seats), n)
    }
    if int(f.rec.created.Load()) != len(distinct) {
        t.Fatalf("created %d rooms but %d distinct", f.rec.created.Load(), len(distinct))
    }
    if f.rec.games.Load() != f.rec.created.Load() {
        t.Fatalf("every new room opens game 1: %d games for %d rooms", f.rec.games.Load(), f.rec.created.Load())
    }
    if int(f.rec.accepted.Load())+len(distinct) != n {
        t.Fatalf("joins %d + rooms %d != %d", f.rec.accepted.Load(), len(distinct), n)
    }
}

func TestSweepOnce(t *testing.T) {
    store := roomstore.NewMemoryStore(roomstore.Options{})
    f := newFixture(t, store)
    ctx := context.Background()
    if _, err := f.svc.CreateRoom(ctx, "Alice", "VS_RANDOM_PLAYER"); err != nil {
        t.Fatalf("create: %v", err)
    }
    if _, err := f.svc.CreateRoom(ctx, "Dan", "VS_FRIEND"); err != nil {
        t.Fatalf("create: %v", err)
    }

    w := NewSweeper(store, 5*time.Minute)
    w.now = func() time.Time { return t0.Add(time.Minute) }
    if n, err := w.SweepOnce(ctx); err != nil || n != 0 {
        t.Fatalf("early sweep removed %d (%v)", n, err)
    }
    w.now = func() time.Time { return t0.Add(10 * time.Minute) }
    if n, err := w.SweepOnce(ctx); err != nil || n != 2 {
        t.Fatalf("late sweep removed %d (%v)", n, err)
    }
    open, err := store.FindAvailable(ctx, rps.VsRandomPlayer, t0.Add(-time.Hour))
    if err != nil || len(open) != 0 {
        t.Fatalf("swept room still listed: %d %v", len(open), err)
    }
}

func TestSweeperStartStop(t *testing.T) {
    w := NewSweeper(roomstore.NewMemoryStore(roomstore.Options{}), time.Minute)
    if err := w.Start(time.Hour); err != nil {
        t.Fatalf("Start: %v", err)
    }
    if err := w.Stop(); err != nil {
        t.Fatalf("Stop: %v", err)
    }
}
