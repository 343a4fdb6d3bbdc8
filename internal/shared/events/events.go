package events

import (
	"context"
	"time"
)

// Subjects published for the document lifecycle.
const (
	SubjectUploaded = "documents.uploaded"
	SubjectReady    = "documents.ready"
	SubjectFailed   = "documents.failed"
	SubjectDeleted  = "documents.deleted"
)

// Event is the payload published on every lifecycle subject.
type Event struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	FileType   string    `json:"fileType,omitempty"`
	RequestID  string    `json:"requestId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, subject string, evt Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(ctx context.Context, subject string, evt Event) error {
	return nil
}
