package documents

import (
	"time"

	"paper-backend/internal/paper"
)

const failedMessage = "processing failed"

// DocumentResponse is the outward-facing representation of a document.
// Content and embeddings are served by dedicated endpoints only.
type DocumentResponse struct {
	DocumentID            string           `json:"documentId"`
	FileName              string           `json:"fileName"`
	OriginalFilename      string           `json:"originalFilename"`
	FileType              string           `json:"fileType"`
	MimeType              string           `json:"mimeType"`
	SizeBytes             int64            `json:"sizeBytes"`
	ContentHash           string           `json:"contentHash"`
	Status                string           `json:"status"`
	UploadedAt            time.Time        `json:"uploadedAt"`
	ProcessedAt           *time.Time       `json:"processedAt,omitempty"`
	LastAccessedAt        *time.Time       `json:"lastAccessedAt,omitempty"`
	ProcessingTimeSeconds *float64         `json:"processingTimeSeconds,omitempty"`
	Error                 string           `json:"error,omitempty"`
	Metadata              MetadataResponse `json:"metadata"`
	Tags                  []string         `json:"tags"`
	Notes                 string           `json:"notes,omitempty"`
	IsFavorite            bool             `json:"isFavorite"`
	HasEmbedding          bool             `json:"hasEmbedding"`
}

// MetadataResponse mirrors paper.Metadata for API responses.
type MetadataResponse struct {
	Title       string            `json:"title,omitempty"`
	Authors     []string          `json:"authors"`
	Abstract    string            `json:"abstract,omitempty"`
	Keywords    []string          `json:"keywords"`
	TotalPages  int               `json:"totalPages"`
	TotalWords  int               `json:"totalWords"`
	Language    string            `json:"language,omitempty"`
	MainTopics  []string          `json:"mainTopics,omitempty"`
	Methodology string            `json:"methodology,omitempty"`
	KeyFindings []string          `json:"keyFindings,omitempty"`
	Sections    []SectionResponse `json:"sections"`
}

// SectionResponse is one detected section.
type SectionResponse struct {
	Title       string `json:"title"`
	PageNumbers []int  `json:"pageNumbers"`
	WordCount   int    `json:"wordCount"`
}

// UploadResponse is returned by the upload endpoints.
type UploadResponse struct {
	DocumentID string `json:"documentId"`
	Status     string `json:"status"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	SizeBytes  int64  `json:"sizeBytes"`
}

// BatchItemResponse is one entry of a batch upload response.
type BatchItemResponse struct {
	FileName string          `json:"fileName"`
	Document *UploadResponse `json:"document,omitempty"`
	Error    *BatchItemError `json:"error,omitempty"`
}

// BatchItemError reports why one file of a batch was rejected.
type BatchItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListResponse is a page of documents.
type ListResponse struct {
	Items    []DocumentResponse `json:"items"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
}

// ContentResponse carries the extracted text of a ready document.
type ContentResponse struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	WordCount  int    `json:"wordCount"`
}

// MatchResponse is one similarity hit.
type MatchResponse struct {
	Document   DocumentResponse `json:"document"`
	Similarity float64          `json:"similarity"`
}

// AnalyticsResponse is the analytics summary of a document.
type AnalyticsResponse struct {
	DocumentID         string   `json:"documentId"`
	WordCount          int      `json:"wordCount"`
	PageCount          int      `json:"pageCount"`
	SectionCount       int      `json:"sectionCount"`
	ReadingTimeMinutes float64  `json:"readingTimeMinutes"`
	KeyConcepts        []string `json:"keyConcepts"`
}

func toResponse(doc Document) DocumentResponse {
	resp := DocumentResponse{
		DocumentID:            doc.ID,
		FileName:              doc.FileName,
		OriginalFilename:      doc.OriginalFilename,
		FileType:              string(doc.FileType),
		MimeType:              doc.MimeType,
		SizeBytes:             doc.FileSize,
		ContentHash:           doc.ContentHash,
		Status:                string(doc.Status),
		UploadedAt:            doc.UploadDate,
		ProcessedAt:           doc.ProcessedDate,
		LastAccessedAt:        doc.LastAccessed,
		ProcessingTimeSeconds: doc.ProcessingTimeSeconds,
		Metadata:              toMetadataResponse(doc.Metadata),
		Tags:                  nonNil(doc.Tags),
		IsFavorite:            doc.IsFavorite,
		HasEmbedding:          len(doc.Embedding) > 0,
	}
	if doc.Status == StatusFailed {
		resp.Error = failedMessage
	}
	if doc.Notes != nil {
		resp.Notes = *doc.Notes
	}
	return resp
}

func toMetadataResponse(m paper.Metadata) MetadataResponse {
	sections := make([]SectionResponse, 0, len(m.Sections))
	for _, s := range m.Sections {
		sections = append(sections, SectionResponse{
			Title:       s.Title,
			PageNumbers: nonNilInts(s.PageNumbers),
			WordCount:   s.Words(),
		})
	}
	return MetadataResponse{
		Title:       m.Title,
		Authors:     nonNil(m.Authors),
		Abstract:    m.Abstract,
		Keywords:    nonNil(m.Keywords),
		TotalPages:  m.TotalPages,
		TotalWords:  m.TotalWords,
		Language:    m.Language,
		MainTopics:  m.MainTopics,
		Methodology: m.Methodology,
		KeyFindings: m.KeyFindings,
		Sections:    sections,
	}
}

func toUploadResponse(doc Document) UploadResponse {
	return UploadResponse{
		DocumentID: doc.ID,
		Status:     string(doc.Status),
		FileName:   doc.OriginalFilename,
		FileType:   string(doc.FileType),
		SizeBytes:  doc.FileSize,
	}
}

func toAnalyticsResponse(a Analytics) AnalyticsResponse {
	return AnalyticsResponse{
		DocumentID:         a.DocumentID,
		WordCount:          a.WordCount,
		PageCount:          a.PageCount,
		SectionCount:       a.SectionCount,
		ReadingTimeMinutes: a.ReadingTimeMinutes,
		KeyConcepts:        nonNil(a.KeyConcepts),
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilInts(in []int) []int {
	if in == nil {
		return []int{}
	}
	return in
}
