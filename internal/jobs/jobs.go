package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// KindExtract is the unit kind that runs document extraction.
const KindExtract = "document.extract"

var (
	ErrUnknownKind = errors.New("unknown job kind")
	ErrClosed      = errors.New("job runner closed")
	ErrInvalidUnit = errors.New("invalid job unit")
)

// Unit is one schedulable piece of background work.
type Unit struct {
	Kind       string    `json:"kind"`
	DocumentID string    `json:"documentId"`
	RequestID  string    `json:"requestId,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Validate reports whether u can be scheduled.
func (u Unit) Validate() error {
	if u.Kind == "" {
		return fmt.Errorf("%w: kind is required", ErrInvalidUnit)
	}
	if u.DocumentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidUnit)
	}
	return nil
}

// Handler runs a unit to completion.
type Handler interface {
	Handle(ctx context.Context, u Unit) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u Unit) error

func (f HandlerFunc) Handle(ctx context.Context, u Unit) error { return f(ctx, u) }

// Submitter schedules units for asynchronous execution.
type Submitter interface {
	Submit(ctx context.Context, u Unit) error
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var p *permanentError
	if errors.As(err, &p) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Mux dispatches units to handlers by kind.
type Mux struct {
	handlers map[string]Handler
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

func (m *Mux) Register(kind string, h Handler) {
	m.handlers[kind] = h
}

// Kinds lists registered kinds.
func (m *Mux) Kinds() []string {
	out := make([]string, 0, len(m.handlers))
	for k := range m.handlers {
		out = append(out, k)
	}
	return out
}

// Handle routes u to its handler. Unknown kinds are permanent failures.
func (m *Mux) Handle(ctx context.Context, u Unit) error {
	h, ok := m.handlers[u.Kind]
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrUnknownKind, u.Kind))
	}
	return h.Handle(ctx, u)
}
