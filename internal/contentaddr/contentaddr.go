// Package contentaddr validates uploads and derives content hashes and storage names.
package contentaddr

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"paper-backend/internal/paper"
	"paper-backend/internal/shared/util"
)

const storageTimeLayout = "20060102_150405"

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrSizeExceeded    = errors.New("file size exceeds limit")
	ErrInvalidFileName = errors.New("invalid file name")
)

// DefaultAllowedExtensions lists the formats accepted when none are configured.
var DefaultAllowedExtensions = []string{".pdf", ".docx", ".txt"}

// DefaultMaxSize is the default upload ceiling (200 MiB).
const DefaultMaxSize int64 = 200 << 20

// Address is the result of validating and hashing an upload.
type Address struct {
	ContentHash string
	StorageName string
	FileType    paper.FileType
}

// ValidateAndHash checks the extension and size of an upload and derives its
// content hash and storage name. It performs no I/O.
func ValidateAndHash(data []byte, filename string, maxSize int64, allowed []string, now time.Time) (Address, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if !extensionAllowed(ext, allowed) {
		return Address{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	fileType, ok := paper.FileTypeFromName(filename)
	if !ok {
		return Address{}, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if int64(len(data)) > maxSize {
		return Address{}, fmt.Errorf("%w: %d bytes > %d bytes", ErrSizeExceeded, len(data), maxSize)
	}

	safeName, err := util.SanitizeFileName(filename)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidFileName, filename)
	}

	hash := util.HashBytes(data)
	return Address{
		ContentHash: hash,
		StorageName: StorageName(now, hash, safeName),
		FileType:    fileType,
	}, nil
}

// StorageName builds "<UTC timestamp>_<hash prefix>_<name>".
func StorageName(now time.Time, contentHash, safeName string) string {
	prefix := contentHash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s_%s_%s", now.UTC().Format(storageTimeLayout), prefix, safeName)
}

func extensionAllowed(ext string, allowed []string) bool {
	if ext == "" {
		return false
	}
	if len(allowed) == 0 {
		allowed = DefaultAllowedExtensions
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if !strings.HasPrefix(a, ".") {
			a = "." + a
		}
		if a == ext {
			return true
		}
	}
	return false
}
