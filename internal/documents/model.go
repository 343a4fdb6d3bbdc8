package documents

import (
	"time"

	"paper-backend/internal/paper"
)

// Status is the lifecycle state of a document.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
	StatusDeleted    Status = "deleted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusReady, StatusFailed, StatusDeleted:
		return true
	}
	return false
}

// CanTransition reports whether a document may move from s to next.
// Deleted is reachable from every live state and is terminal. Ready and
// failed documents may re-enter processing through Reprocess.
func (s Status) CanTransition(next Status) bool {
	if s == StatusDeleted {
		return false
	}
	if next == StatusDeleted {
		return true
	}
	switch s {
	case StatusUploading:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusReady || next == StatusFailed
	case StatusReady, StatusFailed:
		return next == StatusProcessing
	}
	return false
}

// Document represents an uploaded paper owned by a user.
type Document struct {
	ID               string
	UserID           string
	FileName         string
	OriginalFilename string
	FileType         paper.FileType
	MimeType         string
	FileSize         int64
	ContentHash      string
	FilePath         string
	StorageProvider  string

	Content  *string
	Metadata paper.Metadata
	Status   Status

	UploadDate            time.Time
	ProcessedDate         *time.Time
	LastAccessed          *time.Time
	ProcessingTimeSeconds *float64
	ErrorMessage          *string

	// ProcessingStartedAt is the lease start of the latest extraction attempt.
	ProcessingStartedAt *time.Time

	Tags       []string
	Notes      *string
	IsFavorite bool

	Embedding []float32
	Version   int64
}

// ListQuery filters and paginates List.
type ListQuery struct {
	Page     int
	PageSize int
	Status   Status
}

func (q ListQuery) normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	return q
}

func (q ListQuery) offset() int {
	return (q.Page - 1) * q.PageSize
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Match is a similarity search hit.
type Match struct {
	Document   Document
	Similarity float64
}

// Analytics summarises a processed paper.
type Analytics struct {
	DocumentID         string
	WordCount          int
	PageCount          int
	SectionCount       int
	ReadingTimeMinutes float64
	KeyConcepts        []string
}
