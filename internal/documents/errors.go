package documents

import (
	"errors"

	"paper-backend/internal/contentaddr"
	"paper-backend/internal/shared/scan"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotReady             = errors.New("document not ready")
	ErrExtractionInProgress = errors.New("extraction already in progress")
	ErrDeleted              = errors.New("document deleted")
	ErrVersionConflict      = errors.New("version conflict")
	ErrScheduleFailed       = errors.New("failed to schedule processing")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrBatchTooLarge        = errors.New("too many files in batch")
	ErrNoEmbedding          = errors.New("document has no embedding")
	ErrLeaseLost            = errors.New("processing lease taken over")

	ErrUnsupportedType = contentaddr.ErrUnsupportedType
	ErrSizeExceeded    = contentaddr.ErrSizeExceeded
	ErrInvalidFileName = contentaddr.ErrInvalidFileName
	ErrInfected        = scan.ErrInfected
)

// Failure classes recorded in metrics for failed extractions.
const (
	FailureParse    = "parse"
	FailureStorage  = "storage"
	FailureTimeout  = "timeout"
	FailureInternal = "internal"
)
