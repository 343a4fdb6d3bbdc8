package contentaddr

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"paper-backend/internal/paper"
)

var fixedNow = time.Date(2025, 7, 9, 10, 30, 5, 0, time.UTC)

func TestValidateAndHashDeterministic(t *testing.T) {
	data := []byte("identical bytes")
	a, err := ValidateAndHash(data, "paper.pdf", 1024, nil, fixedNow)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	b, err := ValidateAndHash(append([]byte(nil), data...), "other.pdf", 1024, nil, fixedNow)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if a.ContentHash != b.ContentHash {
		t.Fatalf("expected identical hashes, got %s and %s", a.ContentHash, b.ContentHash)
	}

	c, err := ValidateAndHash([]byte("different bytes"), "paper.pdf", 1024, nil, fixedNow)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.ContentHash == a.ContentHash {
		t.Fatalf("expected different hashes for different bytes")
	}
}

func TestValidateAndHashStorageName(t *testing.T) {
	addr, err := ValidateAndHash([]byte("hello"), "My Paper.PDF", 1024, nil, fixedNow)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := "20250709_103005_" + addr.ContentHash[:8] + "_My Paper.PDF"
	if addr.StorageName != want {
		t.Fatalf("storage name = %q, want %q", addr.StorageName, want)
	}
	if addr.FileType != paper.FileTypePDF {
		t.Fatalf("file type = %q, want pdf", addr.FileType)
	}
	if len(addr.ContentHash) != 64 {
		t.Fatalf("expected 64-char hash, got %d", len(addr.ContentHash))
	}
}

func TestValidateAndHashUnsupportedType(t *testing.T) {
	for _, name := range []string{"paper.exe", "paper", "paper.doc"} {
		_, err := ValidateAndHash([]byte("x"), name, 1024, nil, fixedNow)
		if !errors.Is(err, ErrUnsupportedType) {
			t.Fatalf("%s: expected ErrUnsupportedType, got %v", name, err)
		}
	}
}

func TestValidateAndHashRespectsConfiguredExtensions(t *testing.T) {
	if _, err := ValidateAndHash([]byte("x"), "paper.pdf", 1024, []string{"txt"}, fixedNow); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected pdf rejected when only txt allowed, got %v", err)
	}
	if _, err := ValidateAndHash([]byte("x"), "notes.TXT", 1024, []string{"txt"}, fixedNow); err != nil {
		t.Fatalf("expected txt accepted, got %v", err)
	}
}

func TestValidateAndHashSizeBoundary(t *testing.T) {
	const max = 64
	exact := bytes.Repeat([]byte("a"), max)
	if _, err := ValidateAndHash(exact, "a.txt", max, nil, fixedNow); err != nil {
		t.Fatalf("file at max size should pass: %v", err)
	}
	over := bytes.Repeat([]byte("a"), max+1)
	if _, err := ValidateAndHash(over, "a.txt", max, nil, fixedNow); !errors.Is(err, ErrSizeExceeded) {
		t.Fatalf("expected ErrSizeExceeded, got %v", err)
	}
}

func TestValidateAndHashTypeCheckedBeforeSize(t *testing.T) {
	over := bytes.Repeat([]byte("a"), 10)
	_, err := ValidateAndHash(over, "a.exe", 5, nil, fixedNow)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType first, got %v", err)
	}
}

func TestValidateAndHashRejectsTraversal(t *testing.T) {
	_, err := ValidateAndHash([]byte("x"), "../../secret.txt", 1024, nil, fixedNow)
	if !errors.Is(err, ErrInvalidFileName) {
		t.Fatalf("expected ErrInvalidFileName, got %v", err)
	}
	if strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("unexpected error classification: %v", err)
	}
}

func TestValidateAndHashAllowsDotsInsideName(t *testing.T) {
	addr, err := ValidateAndHash([]byte("x"), "Smith et al.. 2020.pdf", 1024, nil, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(addr.StorageName, "_Smith et al.. 2020.pdf") {
		t.Fatalf("unexpected storage name %q", addr.StorageName)
	}
}
