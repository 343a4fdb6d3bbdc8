package jobs

import (
	"context"
	"fmt"
	"time"

	"paper-backend/internal/queue"
)

// QueueSubmitter schedules units as queue messages for the worker binary.
type QueueSubmitter struct {
	Client queue.Client
}

func (s *QueueSubmitter) Submit(ctx context.Context, u Unit) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if s.Client == nil {
		return fmt.Errorf("queue client not configured")
	}
	if u.EnqueuedAt.IsZero() {
		u.EnqueuedAt = time.Now().UTC()
	}
	return s.Client.Send(ctx, queue.Message{
		Kind:       u.Kind,
		DocumentID: u.DocumentID,
		RequestID:  u.RequestID,
		EnqueuedAt: u.EnqueuedAt.Format(time.RFC3339),
		Version:    queue.MessageVersion,
	})
}

// UnitFromMessage converts a decoded queue message back into a unit.
func UnitFromMessage(msg queue.Message) Unit {
	u := Unit{
		Kind:       msg.Kind,
		DocumentID: msg.DocumentID,
		RequestID:  msg.RequestID,
	}
	if u.Kind == "" {
		u.Kind = KindExtract
	}
	if ts, err := time.Parse(time.RFC3339, msg.EnqueuedAt); err == nil {
		u.EnqueuedAt = ts
	}
	return u
}

var _ Submitter = (*QueueSubmitter)(nil)
