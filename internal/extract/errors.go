package extract

import (
	"errors"
	"fmt"

	"paper-backend/internal/paper"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrInvalidEncoding = errors.New("text is not valid utf-8")
	ErrNoDocumentXML   = errors.New("word/document.xml not found in archive")
	ErrEmptyInput      = errors.New("empty input")
)

// ExtractionError reports that a file could not be opened or parsed at all.
type ExtractionError struct {
	FileType paper.FileType
	Op       string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("extract %s: %v", e.FileType, e.Err)
	}
	return fmt.Sprintf("extract %s: %s: %v", e.FileType, e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsExtractionError reports whether err wraps an *ExtractionError.
func IsExtractionError(err error) bool {
	var target *ExtractionError
	return errors.As(err, &target)
}
