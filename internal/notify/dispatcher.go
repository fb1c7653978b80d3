package notify

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/park285/rps-room-server/internal/obslog"
	"go.uber.org/zap"
)

// Sink delivers one event. Returning a Permanent error stops retries.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks a delivery failure that retrying cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Dispatcher delivers events on background workers with bounded retries.
// Events for one room always land on the same worker, so they are delivered
// in publish order.
type Dispatcher struct {
	sink Sink
	log  *zap.Logger

	maxAttempts    int
	backoff        time.Duration
	maxBackoff     time.Duration
	attemptTimeout time.Duration
	queueSize      int
	workers        int

	mu     sync.RWMutex
	closed bool
	queues []chan Event
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Dispatcher)

func WithMaxAttempts(n int) Option { return func(d *Dispatcher) { d.maxAttempts = n } }

// WithBackoff sets the first retry delay; later delays double up to max.
func WithBackoff(first, max time.Duration) Option {
	return func(d *Dispatcher) { d.backoff, d.maxBackoff = first, max }
}

func WithAttemptTimeout(t time.Duration) Option { return func(d *Dispatcher) { d.attemptTimeout = t } }
func WithQueueSize(n int) Option                { return func(d *Dispatcher) { d.queueSize = n } }
func WithWorkers(n int) Option                  { return func(d *Dispatcher) { d.workers = n } }
func WithLogger(l *zap.Logger) Option           { return func(d *Dispatcher) { d.log = l } }

func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:           sink,
		maxAttempts:    5,
		backoff:        time.Second,
		maxBackoff:     10 * time.Second,
		attemptTimeout: 5 * time.Second,
		queueSize:      256,
		workers:        4,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = obslog.Or(d.log)
	if d.maxAttempts <= 0 {
		d.maxAttempts = 1
	}
	if d.workers <= 0 {
		d.workers = 1
	}
	if d.queueSize <= 0 {
		d.queueSize = 1
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.queues = make([]chan Event, d.workers)
	for i := range d.queues {
		d.queues[i] = make(chan Event, d.queueSize)
		d.wg.Add(1)
		go d.run(d.queues[i])
	}
	return d
}

// Publish queues ev without blocking. A full queue or a closed dispatcher
// drops the event.
func (d *Dispatcher) Publish(ev Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queues[d.shard(ev.ID)] <- ev:
		return true
	default:
		d.log.Warn("notify_drop", zap.String("room_id", ev.ID), zap.String("type", string(ev.Type)), zap.String("reason", "queue_full"))
		return false
	}
}

func (d *Dispatcher) shard(roomID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return int(h.Sum32() % uint32(len(d.queues)))
}

// Close stops accepting events and waits for queued ones. When ctx ends
// first, pending retries are abandoned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run(q <-chan Event) {
	defer d.wg.Done()
	for ev := range q {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(d.ctx, d.attemptTimeout)
		err = d.sink.Send(actx, ev)
		cancel()
		if err == nil {
			d.log.Debug("notify_sent", zap.String("room_id", ev.ID), zap.String("type", string(ev.Type)), zap.Int("attempt", attempt))
			return
		}
		if IsPermanent(err) || attempt == d.maxAttempts {
			break
		}
		d.log.Warn("notify_retry", zap.String("room_id", ev.ID), zap.String("type", string(ev.Type)), zap.Int("attempt", attempt), zap.Error(err))
		if sleepErr := sleepWithContext(d.ctx, d.backoffDuration(attempt)); sleepErr != nil {
			break
		}
	}
	d.log.Error("notify_failed", zap.String("room_id", ev.ID), zap.String("type", string(ev.Type)), zap.String("destination", ev.Destination), zap.Error(err))
}

func (d *Dispatcher) backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		attempt = 16
	}
	delay := time.Duration(1<<uint(attempt-1)) * d.backoff
	if d.maxBackoff > 0 && delay > d.maxBackoff {
		return d.maxBackoff
	}
	return delay
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
