package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestInfoWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })

	Info("document ready", map[string]any{"document_id": "doc-1", "duration_ms": 12})

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", line, err)
	}
	if entry["level"] != "info" || entry["msg"] != "document ready" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["document_id"] != "doc-1" {
		t.Fatalf("expected document_id field, got %v", entry["document_id"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", entry)
	}
}

func TestErrorFieldsAreStrings(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })

	Error("extraction failed", map[string]any{"err": errors.New("boom")})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["level"] != "error" || entry["err"] != "boom" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("info")
	t.Cleanup(func() {
		SetLevel("debug")
		SetOutput(nil)
	})

	Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected debug suppressed, got %q", buf.String())
	}
	Warn("shown", nil)
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
}
