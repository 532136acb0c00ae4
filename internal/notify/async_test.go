package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ip-workflow-service/internal/service"
)

// gatedNotifier blocks every delivery until release is closed.
type gatedNotifier struct {
	release chan struct{}
	err     error

	mu        sync.Mutex
	delivered []service.EventKind
	deadlines []bool
}

func (g *gatedNotifier) Notify(ctx context.Context, ev service.Event) error {
	<-g.release
	_, hasDeadline := ctx.Deadline()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delivered = append(g.delivered, ev.Kind)
	g.deadlines = append(g.deadlines, hasDeadline)
	return g.err
}

func TestAsyncReturnsBeforeDelivery(t *testing.T) {
	inner := &gatedNotifier{release: make(chan struct{})}
	async := NewAsync(inner, AsyncConfig{Workers: 1, QueueSize: 4, Timeout: time.Second}, zerolog.Nop())

	reqCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- async.Notify(reqCtx, submittedEvent()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on delivery")
	}
	cancel()

	close(inner.release)
	require.NoError(t, async.Close(context.Background()))
	assert.Equal(t, []service.EventKind{service.KindSubmitted}, inner.delivered)
	assert.Equal(t, []bool{true}, inner.deadlines, "delivery runs on its own deadline")
}

func TestAsyncDropsWhenQueueIsFull(t *testing.T) {
	inner := &gatedNotifier{release: make(chan struct{})}
	async := NewAsync(inner, AsyncConfig{Workers: 1, QueueSize: 1}, zerolog.Nop())
	ctx := context.Background()

	var full int
	for i := 0; i < 5; i++ {
		if err := async.Notify(ctx, submittedEvent()); errors.Is(err, ErrQueueFull) {
			full++
		}
	}
	// One event is held by the worker, one sits in the queue.
	assert.GreaterOrEqual(t, full, 3)

	close(inner.release)
	require.NoError(t, async.Close(ctx))
	assert.ErrorIs(t, async.Notify(ctx, submittedEvent()), ErrClosed)
}

func TestAsyncLogsDeliveryFailure(t *testing.T) {
	var buf bytes.Buffer
	inner := &gatedNotifier{release: make(chan struct{}), err: errors.New("smtp down")}
	close(inner.release)
	async := NewAsync(inner, AsyncConfig{Workers: 2, QueueSize: 2}, zerolog.New(&buf))

	require.NoError(t, async.Notify(context.Background(), submittedEvent()))
	require.NoError(t, async.Close(context.Background()))
	assert.Contains(t, buf.String(), "notification delivery failed")
	assert.Contains(t, buf.String(), "smtp down")
}

func TestAsyncCloseHonoursDeadline(t *testing.T) {
	inner := &gatedNotifier{release: make(chan struct{})}
	async := NewAsync(inner, AsyncConfig{Workers: 1, QueueSize: 1}, zerolog.Nop())
	require.NoError(t, async.Notify(context.Background(), submittedEvent()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, async.Close(ctx), context.DeadlineExceeded)
	close(inner.release)
}
