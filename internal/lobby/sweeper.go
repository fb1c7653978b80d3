package lobby

import (
    "context"
    "time"

    "github.com/go-co-op/gocron/v2"
    "go.uber.org/zap"

    "github.com/park285/rps-room-server/internal/obslog"
    "github.com/park285/rps-room-server/internal/roomstore"
    "github.com/park285/rps-room-server/internal/rps"
)

// Sweeper drops matchmaking entries that fell out of the random-player wait
// window. Room documents stay readable.
type Sweeper struct {
    store   roomstore.Store
    maxWait time.Duration
    now     func() time.Time
    sched   gocron.Scheduler
}

func NewSweeper(store roomstore.Store, maxWait time.Duration) *Sweeper {
    return &Sweeper{store: store, maxWait: maxWait, now: time.Now}
}

// SweepOnce prunes every mode's lobby and returns the number of entries removed.
func (w *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
    cutoff := w.now().Add(-w.maxWait)
    var total int64
    for _, m := range rps.Modes {
        n, err := w.store.PruneLobby(ctx, m, cutoff)
        if err != nil { return total, err }
        total += n
    }
    return total, nil
}

// Start runs SweepOnce every interval until Stop.
func (w *Sweeper) Start(interval time.Duration) error {
    sched, err := gocron.NewScheduler()
    if err != nil { return err }
    _, err = sched.NewJob(
        gocron.DurationJob(interval),
        gocron.NewTask(func() {
            ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
            defer cancel()
            n, err := w.SweepOnce(ctx)
            if err != nil {
                obslog.L().Warn("lobby_sweep_error", zap.Error(err))
                return
            }
            if n > 0 { obslog.L().Info("lobby_sweep", zap.Int64("removed", n)) }
        }),
        gocron.WithSingletonMode(gocron.LimitModeReschedule),
    )
    if err != nil {
        _ = sched.Shutdown()
        return err
    }
    sched.Start()
    w.sched = sched
    return nil
}

func (w *Sweeper) Stop() error {
    if w.sched == nil { return nil }
    return w.sched.Shutdown()
}
