package util

import (
	"errors"
	"strings"
	"unicode"
)

const maxFileNameBytes = 200

// ErrInvalidFileName is returned when a name cannot be made safe for storage.
var ErrInvalidFileName = errors.New("invalid file name")

// SanitizeFileName removes path separators and control characters and rejects
// names with a ".." path segment.
func SanitizeFileName(name string) (string, error) {
	for _, seg := range strings.FieldsFunc(name, isPathSeparator) {
		if strings.TrimSpace(seg) == ".." {
			return "", ErrInvalidFileName
		}
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len(s) > maxFileNameBytes {
		s = truncateKeepExt(s, maxFileNameBytes)
	}
	if s == "" {
		return "", ErrInvalidFileName
	}
	return s, nil
}

func isPathSeparator(r rune) bool { return r == '/' || r == '\\' }

// truncateKeepExt shortens s to at most limit bytes, keeping the extension and valid UTF-8.
func truncateKeepExt(s string, limit int) string {
	ext := ""
	if i := strings.LastIndex(s, "."); i > 0 && len(s)-i <= 10 {
		ext = s[i:]
	}
	base := s[:len(s)-len(ext)]
	budget := limit - len(ext)
	var b strings.Builder
	for _, r := range base {
		if b.Len()+len(string(r)) > budget {
			break
		}
		b.WriteRune(r)
	}
	return b.String() + ext
}
