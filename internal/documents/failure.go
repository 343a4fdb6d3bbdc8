package documents

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"paper-backend/internal/extract"
	"paper-backend/internal/shared/storage/object"
)

const maxErrorMessageLen = 500

// classifyFailure buckets an extraction failure for metrics and logs.
func classifyFailure(err error) string {
	switch {
	case err == nil:
		return FailureInternal
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case extract.IsExtractionError(err):
		return FailureParse
	case errors.Is(err, object.ErrNotFound), errors.Is(err, object.ErrInvalidKey):
		return FailureStorage
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "storage") || strings.Contains(msg, "open object") || strings.Contains(msg, "read:") {
		return FailureStorage
	}
	if strings.Contains(msg, "timeout") {
		return FailureTimeout
	}
	return FailureInternal
}

// sanitizeError flattens err into a single bounded line for the document record.
func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
		for !utf8.ValidString(msg) {
			msg = msg[:len(msg)-1]
		}
	}
	if msg == "" {
		msg = "unknown error"
	}
	return msg
}
