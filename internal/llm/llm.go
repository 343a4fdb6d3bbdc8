package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"paper-backend/internal/paper"
)

const (
	// MetadataInputRunes bounds the text sent for metadata extraction.
	MetadataInputRunes = 3000
	// EmbeddingInputRunes bounds the text sent for embeddings.
	EmbeddingInputRunes = 8000
)

// ErrNotConfigured is returned when no provider is wired.
var ErrNotConfigured = errors.New("llm provider not configured")

// MetadataClient extracts descriptive metadata from paper text.
type MetadataClient interface {
	ExtractMetadata(ctx context.Context, text string) (paper.Metadata, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Enrichment is the optional AI output attached to a ready document.
type Enrichment struct {
	Metadata  paper.Metadata
	Embedding []float32
}

// Enricher produces enrichment for extracted text.
type Enricher interface {
	Enrich(ctx context.Context, text string) (Enrichment, error)
}

// Pipeline runs metadata extraction and embedding with one retry each.
// Either collaborator may be nil. Partial results are returned alongside
// the joined error.
type Pipeline struct {
	Metadata MetadataClient
	Embedder Embedder
}

func (p *Pipeline) Enrich(ctx context.Context, text string) (Enrichment, error) {
	if p == nil || (p.Metadata == nil && p.Embedder == nil) {
		return Enrichment{}, ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return Enrichment{}, nil
	}

	var out Enrichment
	var errs []error
	if p.Metadata != nil {
		meta, err := withRetry(ctx, "metadata", func(ctx context.Context) (paper.Metadata, error) {
			return p.Metadata.ExtractMetadata(ctx, text)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("llm metadata: %w", err))
		} else {
			out.Metadata = meta
		}
	}
	if p.Embedder != nil {
		vec, err := withRetry(ctx, "embedding", func(ctx context.Context) ([]float32, error) {
			return p.Embedder.Embed(ctx, TruncateRunes(text, EmbeddingInputRunes))
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("llm embedding: %w", err))
		} else {
			out.Embedding = vec
		}
	}
	return out, errors.Join(errs...)
}

type metadataJSON struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Abstract    string   `json:"abstract"`
	Keywords    []string `json:"keywords"`
	MainTopics  []string `json:"main_topics"`
	KeyFindings []string `json:"key_findings"`
	Methodology string   `json:"methodology"`
	Language    string   `json:"language"`
}

// ParseMetadata decodes a provider's JSON answer. Surrounding prose or a
// fenced code block around the object is tolerated.
func ParseMetadata(raw string) (paper.Metadata, error) {
	body := strings.TrimSpace(raw)
	if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end > start {
			body = body[start : end+1]
		}
	}
	var parsed metadataJSON
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return paper.Metadata{}, fmt.Errorf("llm output parse: %w", err)
	}
	return paper.Metadata{
		Title:       strings.TrimSpace(parsed.Title),
		Authors:     compact(parsed.Authors),
		Abstract:    strings.TrimSpace(parsed.Abstract),
		Keywords:    compact(parsed.Keywords),
		MainTopics:  compact(parsed.MainTopics),
		KeyFindings: compact(parsed.KeyFindings),
		Methodology: strings.TrimSpace(parsed.Methodology),
		Language:    strings.TrimSpace(parsed.Language),
	}, nil
}

// TruncateRunes returns at most n runes of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func compact(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
