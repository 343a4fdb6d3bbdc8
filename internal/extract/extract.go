package extract

import (
	"context"
	"fmt"
	"io"

	"paper-backend/internal/paper"
	"paper-backend/internal/shared/storage/object"
)

// Extractor turns raw PDF, DOCX and TXT bytes into full text plus structural
// metadata. Libraries used: github.com/ledongthuc/pdf (layout pass) and
// github.com/pdfcpu/pdfcpu (content-stream fallback).
type Extractor struct {
	// MaxReadBytes bounds ExtractObject reads. Zero means unbounded.
	MaxReadBytes int64
}

// New returns an Extractor with default settings.
func New() *Extractor {
	return &Extractor{}
}

// ExtractObject reads storageKey from store and extracts it.
func (x *Extractor) ExtractObject(ctx context.Context, store object.ObjectStore, storageKey string, fileType paper.FileType) (string, paper.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return "", paper.Metadata{}, err
	}

	body, err := store.Open(ctx, storageKey)
	if err != nil {
		return "", paper.Metadata{}, fmt.Errorf("extract key=%s type=%s: %w", storageKey, fileType, err)
	}
	defer body.Close()

	var r io.Reader = body
	if x.MaxReadBytes > 0 {
		r = io.LimitReader(body, x.MaxReadBytes)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", paper.Metadata{}, fmt.Errorf("extract key=%s type=%s: read: %w", storageKey, fileType, err)
	}
	return x.Extract(ctx, raw, fileType)
}

// Extract dispatches on fileType. A file that cannot be opened or parsed at
// all yields an *ExtractionError; partial results are returned otherwise.
func (x *Extractor) Extract(ctx context.Context, data []byte, fileType paper.FileType) (string, paper.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return "", paper.Metadata{}, err
	}
	switch fileType {
	case paper.FileTypePDF:
		return x.extractPDF(ctx, data)
	case paper.FileTypeDOCX:
		return x.extractDOCX(data)
	case paper.FileTypeTXT:
		return x.extractTXT(data)
	default:
		return "", paper.Metadata{}, &ExtractionError{FileType: fileType, Op: "detect", Err: ErrUnsupportedType}
	}
}
