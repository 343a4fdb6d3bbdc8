package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"paper-backend/internal/shared/metrics"
	"paper-backend/internal/shared/telemetry"
)

// Local runs units on an in-process worker pool.
type Local struct {
	handler Handler
	timeout time.Duration
	queue   chan Unit

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocal starts workers goroutines draining a queue of size buffer.
// Each unit runs with its own timeout when timeout > 0.
func NewLocal(h Handler, workers, buffer int, timeout time.Duration) *Local {
	if workers <= 0 {
		workers = 1
	}
	if buffer < workers {
		buffer = workers
	}
	l := &Local{
		handler: h,
		timeout: timeout,
		queue:   make(chan Unit, buffer),
	}
	l.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go l.work()
	}
	return l
}

// Submit enqueues u, blocking while the queue is full until ctx is done.
func (l *Local) Submit(ctx context.Context, u Unit) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.EnqueuedAt.IsZero() {
		u.EnqueuedAt = time.Now().UTC()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	select {
	case l.queue <- u:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit %s: %w", u.Kind, ctx.Err())
	}
}

// Close stops accepting units and waits for queued ones to finish or ctx to end.
func (l *Local) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) work() {
	defer l.wg.Done()
	for u := range l.queue {
		l.run(u)
	}
}

func (l *Local) run(u Unit) {
	metrics.IncJobsReceived("local")
	defer func() {
		if rec := recover(); rec != nil {
			metrics.IncJobsFailed("local")
			telemetry.Error("jobs.local.panic", map[string]any{
				"kind":        u.Kind,
				"document_id": u.DocumentID,
				"panic":       fmt.Sprint(rec),
			})
		}
	}()

	ctx := context.Background()
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if err := l.handler.Handle(ctx, u); err != nil {
		metrics.IncJobsFailed("local")
		telemetry.Warn("jobs.local.failed", map[string]any{
			"kind":        u.Kind,
			"document_id": u.DocumentID,
			"request_id":  u.RequestID,
			"permanent":   IsPermanent(err),
			"err":         err.Error(),
		})
		return
	}
	metrics.IncJobsCompleted("local")
}

var _ Submitter = (*Local)(nil)
