package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ip-workflow-service/internal/service"
)

var (
	ErrQueueFull = errors.New("notification queue is full")
	ErrClosed    = errors.New("notifier is closed")
)

// Async queues events for a fixed set of workers so delivery never holds
// up the request that committed them. Each delivery gets its own timeout,
// independent of the request context.
type Async struct {
	next    service.Notifier
	timeout time.Duration
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan service.Event
	wg     sync.WaitGroup
}

func NewAsync(next service.Notifier, cfg AsyncConfig, log zerolog.Logger) *Async {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	a := &Async{
		next:    next,
		timeout: cfg.Timeout,
		log:     log.With().Str("component", "notify").Logger(),
		queue:   make(chan service.Event, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		a.wg.Add(1)
		go a.work()
	}
	return a
}

type AsyncConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Notify enqueues ev and returns immediately. A full queue drops the event.
func (a *Async) Notify(_ context.Context, ev service.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) work() {
	defer a.wg.Done()
	for ev := range a.queue {
		a.deliver(ev)
	}
}

func (a *Async) deliver(ev service.Event) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if err := a.next.Notify(ctx, ev); err != nil {
		a.log.Warn().
			Err(err).
			Str("event", string(ev.Kind)).
			Str("submission_id", ev.SubmissionID.String()).
			Msg("notification delivery failed")
	}
}

// Close stops accepting events and waits for queued ones until ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
