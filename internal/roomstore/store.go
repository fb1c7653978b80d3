package roomstore

import (
    "context"
    "math/rand/v2"
    "time"

    "github.com/park285/rps-room-server/internal/rps"
)

// Store persists rooms. Every mutation of an existing room goes through
// Update, which serializes writers per room id.
type Store interface {
    // Create inserts a new room; open rooms (no second player) are indexed for matchmaking.
    Create(ctx context.Context, room *rps.Room) error
    // Load returns a NotFound error when the room does not exist.
    Load(ctx context.Context, id string) (*rps.Room, error)
    // Update loads the room, applies fn and writes the result against the
    // version it read. fn may run more than once and must not have side effects
    // beyond the room it is given. An error from fn aborts without writing.
    Update(ctx context.Context, id string, fn func(*rps.Room) error) (*rps.Room, error)
    // FindAvailable lists rooms of the mode without a second player created
    // after notOlderThan, oldest first.
    FindAvailable(ctx context.Context, mode rps.Mode, notOlderThan time.Time) ([]*rps.Room, error)
    // PruneLobby drops matchmaking index entries created before olderThan.
    // Room documents are kept.
    PruneLobby(ctx context.Context, mode rps.Mode, olderThan time.Time) (int64, error)
}

// Options bound how long a single Update may keep retrying or waiting.
type Options struct {
    MaxAttempts int
    Timeout     time.Duration
    // TTL of room documents; zero keeps them forever.
    TTL time.Duration
    // FindLimit caps FindAvailable results.
    FindLimit int64
}

func (o Options) withDefaults() Options {
    if o.MaxAttempts <= 0 { o.MaxAttempts = 10 }
    if o.Timeout <= 0 { o.Timeout = 2 * time.Second }
    if o.FindLimit <= 0 { o.FindLimit = 20 }
    return o
}

// retryDelay grows linearly with a little jitter so that colliding writers spread out.
func retryDelay(attempt int) time.Duration {
    if attempt < 1 { attempt = 1 }
    if attempt > 8 { attempt = 8 }
    base := time.Duration(attempt) * 5 * time.Millisecond
    return base + time.Duration(rand.Int64N(int64(5*time.Millisecond)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}
