package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	clamd "github.com/dutchcoders/go-clamd"
)

// ErrInfected is returned when the scanner reports a signature match.
var ErrInfected = errors.New("malware detected")

// Scanner inspects an upload before it is stored.
type Scanner interface {
	Scan(ctx context.Context, r io.Reader) error
}

// ClamdScanner streams uploads to a clamd daemon.
type ClamdScanner struct {
	client *clamd.Clamd
}

// NewClamd returns a scanner for addr, e.g. "tcp://clamav:3310".
func NewClamd(addr string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

// Scan returns nil for clean input, an error wrapping ErrInfected when a
// signature matches, or a plain error when the daemon fails.
func (s *ClamdScanner) Scan(ctx context.Context, r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("clamd scan: %w", err)
	}

	var collected []*clamd.ScanResult
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				return verdict(collected)
			}
			collected = append(collected, res)
		}
	}
}

func verdict(results []*clamd.ScanResult) error {
	for _, res := range results {
		if res == nil {
			continue
		}
		switch res.Status {
		case clamd.RES_FOUND:
			return fmt.Errorf("%w: %s", ErrInfected, strings.TrimSpace(res.Description))
		case clamd.RES_ERROR, clamd.RES_PARSE_ERROR:
			return fmt.Errorf("clamd scan: %s", strings.TrimSpace(res.Raw))
		}
	}
	return nil
}

var _ Scanner = (*ClamdScanner)(nil)
