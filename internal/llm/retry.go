package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"paper-backend/internal/shared/telemetry"
)

var retryBaseDelay = 300 * time.Millisecond

func withRetry[T any](ctx context.Context, op string, call func(context.Context) (T, error)) (T, error) {
	resp, err := call(ctx)
	if err == nil || !shouldRetry(err) {
		return resp, err
	}

	telemetry.Warn("llm.retry", map[string]any{"op": op, "attempt": 1, "err": err.Error()})
	select {
	case <-time.After(retryBaseDelay):
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	return call(ctx)
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "status code: 5") || strings.Contains(msg, "server_error") || strings.Contains(msg, "overloaded") {
		return true
	}
	if strings.Contains(msg, "status code: 429") || strings.Contains(msg, "rate limit") {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}
