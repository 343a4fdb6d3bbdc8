package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"paper-backend/internal/shared/metrics"
	"paper-backend/internal/shared/telemetry"
)

// AsynqSubmitter enqueues units as Redis-backed asynq tasks.
type AsynqSubmitter struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
	queue    string
}

// NewAsynqSubmitter connects an asynq client.
func NewAsynqSubmitter(opt asynq.RedisClientOpt, maxRetry int, timeout time.Duration) *AsynqSubmitter {
	if maxRetry < 0 {
		maxRetry = 0
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &AsynqSubmitter{
		client:   asynq.NewClient(opt),
		maxRetry: maxRetry,
		timeout:  timeout,
		queue:    "default",
	}
}

func (s *AsynqSubmitter) Submit(ctx context.Context, u Unit) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.EnqueuedAt.IsZero() {
		u.EnqueuedAt = time.Now().UTC()
	}
	task, err := newTask(u)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(s.maxRetry),
		asynq.Timeout(s.timeout),
		asynq.Queue(s.queue),
	); err != nil {
		return fmt.Errorf("enqueue %s: %w", u.Kind, err)
	}
	return nil
}

func (s *AsynqSubmitter) Close() error {
	return s.client.Close()
}

func newTask(u Unit) (*asynq.Task, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("marshal unit: %w", err)
	}
	return asynq.NewTask(u.Kind, data), nil
}

// NewAsynqMux registers h for every kind. Decode failures and permanent
// handler errors skip asynq's retry schedule.
func NewAsynqMux(h Handler, kinds ...string) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, kind := range kinds {
		mux.HandleFunc(kind, func(ctx context.Context, t *asynq.Task) error {
			metrics.IncJobsReceived("asynq")
			var u Unit
			if err := json.Unmarshal(t.Payload(), &u); err != nil {
				metrics.IncJobsDropped("asynq")
				telemetry.Error("jobs.asynq.decode_failed", map[string]any{"kind": t.Type(), "err": err.Error()})
				return fmt.Errorf("decode unit: %v: %w", err, asynq.SkipRetry)
			}
			if u.Kind == "" {
				u.Kind = t.Type()
			}
			if err := h.Handle(ctx, u); err != nil {
				metrics.IncJobsFailed("asynq")
				if IsPermanent(err) {
					return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
				}
				return err
			}
			metrics.IncJobsCompleted("asynq")
			return nil
		})
	}
	return mux
}

// asynqLogger routes asynq's internal logging through telemetry.
type asynqLogger struct{}

// exit ends the process after a Fatal log line; asynq expects Fatal not to return.
var exit = os.Exit

// NewAsynqLogger returns an asynq.Logger backed by telemetry.
func NewAsynqLogger() asynq.Logger { return asynqLogger{} }

func (asynqLogger) Debug(args ...interface{}) {
	telemetry.Debug("asynq", map[string]any{"detail": fmt.Sprint(args...)})
}
func (asynqLogger) Info(args ...interface{}) {
	telemetry.Info("asynq", map[string]any{"detail": fmt.Sprint(args...)})
}
func (asynqLogger) Warn(args ...interface{}) {
	telemetry.Warn("asynq", map[string]any{"detail": fmt.Sprint(args...)})
}
func (asynqLogger) Error(args ...interface{}) {
	telemetry.Error("asynq", map[string]any{"detail": fmt.Sprint(args...)})
}
func (asynqLogger) Fatal(args ...interface{}) {
	telemetry.Error("asynq.fatal", map[string]any{"detail": fmt.Sprint(args...)})
	exit(1)
}

var _ Submitter = (*AsynqSubmitter)(nil)
