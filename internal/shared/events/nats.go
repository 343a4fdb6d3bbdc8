package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"paper-backend/internal/shared/telemetry"
)

// NATSPublisher publishes events to a JetStream stream.
type NATSPublisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// ConnectNATS connects to NATS, enables JetStream and ensures the stream
// covering documents.* exists.
func ConnectNATS(url, stream string) (*NATSPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url is empty")
	}
	if strings.TrimSpace(stream) == "" {
		stream = "DOCUMENTS"
	}

	nc, err := nats.Connect(url,
		nats.Name("paper-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			fields := map[string]any{}
			if err != nil {
				fields["err"] = err.Error()
			}
			telemetry.Warn("nats.disconnected", fields)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			telemetry.Info("nats.reconnected", map[string]any{"url": nc.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if err := ensureStream(js, stream); err != nil {
		telemetry.Warn("nats.stream_ensure_failed", map[string]any{"stream": stream, "err": err.Error()})
	}
	return &NATSPublisher{nc: nc, js: js}, nil
}

func ensureStream(js nats.JetStreamContext, name string) error {
	if _, err := js.StreamInfo(name); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{"documents.*"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
	})
	return err
}

// Publish sends evt with its ID as the JetStream dedup key.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, evt Event) error {
	if p == nil || p.js == nil {
		return errors.New("jetstream not initialized")
	}
	evt = stamp(evt, time.Now)
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(subject, data, nats.MsgId(evt.ID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

func stamp(evt Event, now func() time.Time) Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = now().UTC()
	}
	return evt
}

var _ Publisher = (*NATSPublisher)(nil)
var _ Publisher = Noop{}

// Ping reports whether the connection is currently usable.
func (p *NATSPublisher) Ping(ctx context.Context) error {
	if p == nil || p.nc == nil {
		return errors.New("nats not connected")
	}
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats status %s", p.nc.Status())
	}
	return p.nc.FlushWithContext(ctx)
}
