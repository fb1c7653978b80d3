package gameplay

import (
    "context"
    "errors"
    "sync"
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

func (p *recordingPublisher) types() []notify.EventType {
    p.mu.Lock()
    defer p.mu.Unlock()
    out := make([]notify.EventType, len(p.events))
    for i, ev := range p.events {
        out[i] = ev.Type
    }
    return out
}

type tally struct {
    metrics.Nop
    mu           sync.Mutex
    rounds       int
    roundsOver   int
    humanTurns   int
    machineTurns int
    gamesOver    int
    gamesCreated int
}

func (t *tally) RoundPlayed(rps.Mode) {
    t.mu.Lock()
    t.rounds++
    t.mu.Unlock()
}

func (t *tally) RoundOver(rps.Mode, int, int) {
    t.mu.Lock()
    t.roundsOver++
    t.mu.Unlock()
}

func (t *tally) GameCreated(rps.Mode) {
    t.mu.Lock()
    t.gamesCreated++
    t.mu.Unlock()
}

func (t *tally) GameOver(rps.Mode, int, time.Duration) {
    t.mu.Lock()
    t.gamesOver++
    t.mu.Unlock()
}

func (t *tally) TurnPlayed(_ rps.Mode, _ rps.Choice, machine bool) {
    t.mu.Lock()
    defer t.mu.Unlock()
    if machine {
        t.machineTurns++
    } else {
        t.humanTurns++
    }
}

type fakeArchive struct {
    mu    sync.Mutex
    saved []int
    err   error
}

func (a *fakeArchive) SaveGame(_ context.Context, room *rps.Room, n int) error {
    a.mu.Lock()
    defer a.mu.Unlock()
    a.saved = append(a.saved, n)
    return a.err
}

type fixture struct {
    svc     *Service
    store   roomstore.Store
    pub     *recordingPublisher
    tally   *tally
    archive *fakeArchive
}

func newFixture(t *testing.T, store roomstore.Store, opts ...Option) *fixture {
    t.Helper()
    f := &fixture{store: store, pub: &recordingPublisher{}, tally: &tally{}, archive: &fakeArchive{}}
    opts = append([]Option{
        WithArchiver(f.archive),
        WithChooser(rps.Fixed(rps.Scissors)),
        WithClock(func() time.Time { return t0.Add(time.Minute) }),
    }, opts...)
    f.svc = NewService(store, f.pub, f.tally, Settings{Rules: rps.Rules{TargetRounds: 3}, TopicPattern: "/topic/rooms/%s"}, opts...)
    return f
}

func seedFriendRoom(t *testing.T, store roomstore.Store, id string) {
    t.Helper()
    r := rps.NewRoom(id, rps.Player{ID: "p1", Name: "Alice", State: rps.PlayerReady}, nil, rps.VsFriend, rps.GameWaiting, t0)
    if err := r.Join(rps.Player{ID: "p2", Name: "Bob"}, t0); err != nil {
        t.Fatalf("Join: %v", err)
    }
    if err := store.Create(context.Background(), r); err != nil {
        t.Fatalf("Create: %v", err)
    }
}

func newRedisStore(t *testing.T) roomstore.Store {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return roomstore.NewRedisStore(rdb, roomstore.Options{MaxAttempts: 50, Timeout: 5 * time.Second})
}

func TestTiedRoundThenSecondPlayerWins(t *testing.T) {
    f := newFixture(t, roomstore.NewMemoryStore(roomstore.Options{}))
    seedFriendRoom(t, f.store, "r1")
    ctx := context.Background()

    moves := []struct {
        player string
        choice rps.Choice
    }{{"p1", rps.Rock}, {"p2", rps.Rock}, {"p1", rps.Rock}, {"p2", rps.Paper}}
    var room *rps.Room
    for _, m := range moves {
        var err error
        room, err = f.svc.Play(ctx, "r1", 1, m.player, m.choice)
        if err != nil {
            t.Fatalf("Play %s: %v", m.player, err)
        }
    }
    g := room.Games[0]
    if len(g.Rounds) != 1 || g.Rounds[0].Result.WinnerID != "p2" {
        t.Fatalf("unexpected rounds %+v", g.Rounds)
    }
    if g.Result.ScoreFirst != 0 || g.Result.ScoreSecond != 1 || g.State != rps.GamePlaying {
        t.Fatalf("unexpected game %+v", g.Result)
    }
    if got := f.pub.types(); len(got) != 4 || got[3] != notify.RoundTurnPlay {
        t.Fatalf("events %v", got)
    }
    if f.tally.rounds != 1 || f.tally.roundsOver != 1 || f.tally.humanTurns != 4 {
        t.Fatalf("metrics %+v", f.tally)
    }
}

func TestMachineTurnIsAppended(t *testing.T) {
    f := newFixture(t, roomstore.NewMemoryStore(roomstore.Options{}))
    r := rps.NewRoom("m1", rps.Player{ID: "h", Name: "Human", State: rps.PlayerReady},
        &rps.Player{ID: "cpu", Name: "Machine", State: rps.PlayerReady}, rps.VsMachine, rps.GameAccepted, t0)
    if err := f.store.Create(context.Background(), r); err != nil {
        t.Fatalf("Create: %v", err)
    }
    room, err := f.svc.Play(context.Background(), "m1", 1, "h", rps.Rock)
    if err != nil {
        t.Fatalf("Play: %v", err)
    }
    rd := room.Games[0].Rounds[0]
    if len(rd.Turns) != 2 || rd.Turns[1].PlayerID != "cpu" || rd.Turns[1].Choice != rps.Scissors {
        t.Fatalf("machine turn %+v", rd.Turns)
    }
    if f.tally.machineTurns != 1 || f.tally.humanTurns != 1 {
        t.Fatalf("metrics %+v", f.tally)
    }
}

func TestGameOverArchivesAndAllowsNewGame(t *testing.T) {
    f := newFixture(t, roomstore.NewMemoryStore(roomstore.Options{}))
    f.archive.err = errors.New("db down")
    seedFriendRoom(t, f.store, "r1")
    ctx := context.Background()

    if _, err := f.svc.CreateNewGame(ctx, "r1", "p1"); !errors.Is(err, rps.ErrPreviousGameNotFinished) {
        t.Fatalf("expected PreviousGameNotFinished, got %v", err)
    }
    for i := 0; i < 3; i++ {
        if _, err := f.svc.Play(ctx, "r1", 1, "p1", rps.Paper); err != nil {
            t.Fatalf("Play: %v", err)
        }
        if _, err := f.svc.Play(ctx, "r1", 1, "p2", rps.Rock); err != nil {
            t.Fatalf("archive failure must not fail the move: %v", err)
        }
    }
    if len(f.archive.saved) != 1 || f.archive.saved[0] != 1 || f.tally.gamesOver != 1 {
        t.Fatalf("archive %v gamesOver %d", f.archive.saved, f.tally.gamesOver)
    }

    _, err := f.svc.Play(ctx, "r1", 1, "p1", rps.Rock)
    if !errors.Is(err, rps.ErrGameAlreadyOver) {
        t.Fatalf("expected GameAlreadyOver, got %v", err)
    }

    room, err := f.svc.CreateNewGame(ctx, "r1", "p2")
    if err != nil {
        t.Fatalf("CreateNewGame: %v", err)
    }
    if len(room.Games) != 2 || room.Games[1].State != rps.GameWaiting {
        t.Fatalf("unexpected games %+v", room.Games)
    }
    got := f.pub.types()
    if got[len(got)-1] != notify.NewGameCreated || f.tally.gamesCreated != 1 {
        t.Fatalf("events %v created %d", got, f.tally.gamesCreated)
    }
    if _, err := f.svc.Play(ctx, "r1", 2, "p1", rps.Rock); err != nil {
        t.Fatalf("Play in game 2: %v", err)
    }
}

func TestRejectedMovesDoNotNotify(t *testing.T) {
    f := newFixture(t, roomstore.NewMemoryStore(roomstore.Options{}))
    seedFriendRoom(t, f.store, "r1")
    ctx := context.Background()
    if _, err := f.svc.Play(ctx, "r1", 1, "p1", rps.Rock); err != nil {
        t.Fatalf("Play: %v", err)
    }

    cases := []struct {
        room, player string
        game         int
        choice       rps.Choice
        want         error
    }{
        {"r1", "p1", 1, rps.Paper, rps.ErrIncorrectPlayerTurn},
        {"nope", "p1", 1, rps.Paper, rps.ErrNotFound},
        {"r1", "p2", 4, rps.Paper, rps.ErrNotFound},
        {"r1", "intruder", 1, rps.Paper, rps.ErrInvalidPlayer},
    }
    for _, c := range cases {
        if _, err := f.svc.Play(ctx, c.room, c.game, c.player, c.choice); !errors.Is(err, c.want) {
            t.Fatalf("%+v: got %v", c, err)
        }
    }
    if len(f.pub.types()) != 1 || f.tally.humanTurns != 1 {
        t.Fatalf("rejected moves leaked side effects")
    }
}

func TestConcurrentPlayersKeepTurnOrder(t *testing.T) {
    f := newFixture(t, newRedisStore(t))
    seedFriendRoom(t, f.store, "r1")
    ctx := context.Background()

    var g errgroup.Group
    for _, pid := range []string{"p1", "p2"} {
        g.Go(func() error {
            for n := 0; n < 40; n++ {
                _, err := f.svc.Play(ctx, "r1", 1, pid, rps.Choices[n%3])
                if err == nil || errors.Is(err, rps.ErrIncorrectPlayerTurn) || errors.Is(err, rps.ErrRoomBusy) {
                    continue
                }
                if errors.Is(err, rps.ErrGameAlreadyOver) {
                    return nil
                }
                return err
            }
            return nil
        })
    }
    if err := g.Wait(); err != nil {
        t.Fatalf("play: %v", err)
    }
    room, err := f.store.Load(ctx, "r1")
    if err != nil {
        t.Fatalf("Load: %v", err)
    }
    if err := rps.Verify(room, rps.Rules{TargetRounds: 3}); err != nil {
        t.Fatalf("Verify: %v", err)
    }
}
