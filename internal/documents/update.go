package documents

import (
	"time"

	"paper-backend/internal/paper"
)

// Update is an explicit sparse partial update. Nil fields are left as is.
// A successful update increments Version. When ExpectVersion is set the
// update only applies if the stored version still matches.
type Update struct {
	Status                *Status
	Content               *string
	ClearContent          bool
	Metadata              *paper.Metadata
	ProcessedDate         *time.Time
	ProcessingTimeSeconds *float64
	ProcessingStartedAt   *time.Time
	ErrorMessage          *string
	ClearError            bool
	Tags                  *[]string
	Notes                 *string
	IsFavorite            *bool
	Embedding             []float32

	ExpectVersion *int64
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.Status == nil &&
		u.Content == nil && !u.ClearContent &&
		u.Metadata == nil &&
		u.ProcessedDate == nil &&
		u.ProcessingTimeSeconds == nil &&
		u.ProcessingStartedAt == nil &&
		u.ErrorMessage == nil && !u.ClearError &&
		u.Tags == nil &&
		u.Notes == nil &&
		u.IsFavorite == nil &&
		u.Embedding == nil
}

func (u Update) applyTo(doc *Document) {
	if u.Status != nil {
		doc.Status = *u.Status
	}
	if u.ClearContent {
		doc.Content = nil
	}
	if u.Content != nil {
		v := *u.Content
		doc.Content = &v
	}
	if u.Metadata != nil {
		doc.Metadata = cloneMetadata(*u.Metadata)
	}
	if u.ProcessedDate != nil {
		v := *u.ProcessedDate
		doc.ProcessedDate = &v
	}
	if u.ProcessingTimeSeconds != nil {
		v := *u.ProcessingTimeSeconds
		doc.ProcessingTimeSeconds = &v
	}
	if u.ProcessingStartedAt != nil {
		v := *u.ProcessingStartedAt
		doc.ProcessingStartedAt = &v
	}
	if u.ClearError {
		doc.ErrorMessage = nil
	}
	if u.ErrorMessage != nil {
		v := *u.ErrorMessage
		doc.ErrorMessage = &v
	}
	if u.Tags != nil {
		doc.Tags = append([]string(nil), (*u.Tags)...)
	}
	if u.Notes != nil {
		v := *u.Notes
		doc.Notes = &v
	}
	if u.IsFavorite != nil {
		doc.IsFavorite = *u.IsFavorite
	}
	if u.Embedding != nil {
		doc.Embedding = append([]float32(nil), u.Embedding...)
	}
	doc.Version++
}

func cloneMetadata(m paper.Metadata) paper.Metadata {
	out := m
	out.Authors = append([]string(nil), m.Authors...)
	out.Keywords = append([]string(nil), m.Keywords...)
	out.MainTopics = append([]string(nil), m.MainTopics...)
	out.KeyFindings = append([]string(nil), m.KeyFindings...)
	if m.Sections != nil {
		out.Sections = make([]paper.Section, len(m.Sections))
		for i, s := range m.Sections {
			s.PageNumbers = append([]int(nil), s.PageNumbers...)
			out.Sections[i] = s
		}
	}
	return out
}

func cloneDocument(doc Document) Document {
	out := doc
	out.Metadata = cloneMetadata(doc.Metadata)
	out.Tags = append([]string(nil), doc.Tags...)
	out.Embedding = append([]float32(nil), doc.Embedding...)
	if doc.Content != nil {
		v := *doc.Content
		out.Content = &v
	}
	if doc.ProcessedDate != nil {
		v := *doc.ProcessedDate
		out.ProcessedDate = &v
	}
	if doc.LastAccessed != nil {
		v := *doc.LastAccessed
		out.LastAccessed = &v
	}
	if doc.ProcessingTimeSeconds != nil {
		v := *doc.ProcessingTimeSeconds
		out.ProcessingTimeSeconds = &v
	}
	if doc.ProcessingStartedAt != nil {
		v := *doc.ProcessingStartedAt
		out.ProcessingStartedAt = &v
	}
	if doc.ErrorMessage != nil {
		v := *doc.ErrorMessage
		out.ErrorMessage = &v
	}
	if doc.Notes != nil {
		v := *doc.Notes
		out.Notes = &v
	}
	return out
}

func ptr[T any](v T) *T { return &v }
