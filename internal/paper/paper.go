package paper

import (
	"path/filepath"
	"strings"
)

// FileType identifies a supported upload format.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
	FileTypeTXT  FileType = "txt"
)

// FileTypeFromName maps a file name's extension to a FileType.
func FileTypeFromName(name string) (FileType, bool) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	switch ext {
	case ".pdf":
		return FileTypePDF, true
	case ".docx":
		return FileTypeDOCX, true
	case ".txt":
		return FileTypeTXT, true
	default:
		return "", false
	}
}

// MimeType returns the canonical content type for the file type.
func (t FileType) MimeType() string {
	switch t {
	case FileTypePDF:
		return "application/pdf"
	case FileTypeDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FileTypeTXT:
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Section is a titled span of document text bounded by detected headers.
type Section struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	PageNumbers []int  `json:"page_numbers"`
	WordCount   int    `json:"word_count"`
}

// Words returns WordCount, deriving it from Content when unset.
func (s Section) Words() int {
	if s.WordCount > 0 {
		return s.WordCount
	}
	return len(strings.Fields(s.Content))
}

// Metadata aggregates the structural and descriptive fields of a paper.
type Metadata struct {
	Title       string    `json:"title,omitempty"`
	Authors     []string  `json:"authors"`
	Abstract    string    `json:"abstract,omitempty"`
	Keywords    []string  `json:"keywords"`
	Sections    []Section `json:"sections"`
	TotalPages  int       `json:"total_pages,omitempty"`
	TotalWords  int       `json:"total_words"`
	Language    string    `json:"language,omitempty"`
	MainTopics  []string  `json:"main_topics,omitempty"`
	Methodology string    `json:"methodology,omitempty"`
	KeyFindings []string  `json:"key_findings,omitempty"`
}

// FillFrom copies descriptive fields from src that are empty on m.
// Populated fields on m are never overwritten.
func (m *Metadata) FillFrom(src Metadata) {
	if strings.TrimSpace(m.Title) == "" {
		m.Title = src.Title
	}
	if strings.TrimSpace(m.Abstract) == "" {
		m.Abstract = src.Abstract
	}
	if len(m.Authors) == 0 {
		m.Authors = cloneStrings(src.Authors)
	}
	if len(m.Keywords) == 0 {
		m.Keywords = cloneStrings(src.Keywords)
	}
	if strings.TrimSpace(m.Language) == "" {
		m.Language = src.Language
	}
	if len(m.MainTopics) == 0 {
		m.MainTopics = cloneStrings(src.MainTopics)
	}
	if strings.TrimSpace(m.Methodology) == "" {
		m.Methodology = src.Methodology
	}
	if len(m.KeyFindings) == 0 {
		m.KeyFindings = cloneStrings(src.KeyFindings)
	}
}

// MergeExtraction folds a fresh extraction result into m. Descriptive
// fields follow FillFrom; structural fields are replaced by the new run.
func (m *Metadata) MergeExtraction(extracted Metadata) {
	m.FillFrom(extracted)
	m.Sections = extracted.Sections
	m.TotalPages = extracted.TotalPages
	m.TotalWords = extracted.TotalWords
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
