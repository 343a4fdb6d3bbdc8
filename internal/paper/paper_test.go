package paper

import "testing"

func TestFileTypeFromName(t *testing.T) {
	tests := []struct {
		name string
		want FileType
		ok   bool
	}{
		{name: "paper.pdf", want: FileTypePDF, ok: true},
		{name: "Paper.PDF", want: FileTypePDF, ok: true},
		{name: "notes.docx", want: FileTypeDOCX, ok: true},
		{name: "readme.txt", want: FileTypeTXT, ok: true},
		{name: "archive.zip", ok: false},
		{name: "noext", ok: false},
	}
	for _, tt := range tests {
		got, ok := FileTypeFromName(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("FileTypeFromName(%q) = %q,%v want %q,%v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSectionWordsDerivesFromContent(t *testing.T) {
	s := Section{Title: "Results", Content: "three short words"}
	if got := s.Words(); got != 3 {
		t.Fatalf("expected 3 words, got %d", got)
	}
	s.WordCount = 10
	if got := s.Words(); got != 10 {
		t.Fatalf("expected explicit word count 10, got %d", got)
	}
}

func TestFillFromNeverOverwrites(t *testing.T) {
	m := Metadata{Title: "Extracted Title", Authors: []string{"A. Author"}}
	m.FillFrom(Metadata{
		Title:      "AI Title",
		Abstract:   "AI abstract",
		Authors:    []string{"Someone Else"},
		Keywords:   []string{"graphs"},
		MainTopics: []string{"ml"},
	})

	if m.Title != "Extracted Title" {
		t.Fatalf("title overwritten: %q", m.Title)
	}
	if len(m.Authors) != 1 || m.Authors[0] != "A. Author" {
		t.Fatalf("authors overwritten: %v", m.Authors)
	}
	if m.Abstract != "AI abstract" {
		t.Fatalf("expected abstract filled, got %q", m.Abstract)
	}
	if len(m.Keywords) != 1 || len(m.MainTopics) != 1 {
		t.Fatalf("expected empty lists filled, got %v %v", m.Keywords, m.MainTopics)
	}
}

func TestMergeExtractionReplacesStructure(t *testing.T) {
	m := Metadata{
		Title:      "Kept",
		TotalWords: 5,
		Sections:   []Section{{Title: "Old"}},
	}
	m.MergeExtraction(Metadata{
		Title:      "New",
		TotalWords: 42,
		TotalPages: 3,
		Sections:   []Section{{Title: "Introduction", Content: "body"}},
	})
	if m.Title != "Kept" {
		t.Fatalf("expected title kept, got %q", m.Title)
	}
	if m.TotalWords != 42 || m.TotalPages != 3 {
		t.Fatalf("expected structure replaced, got words=%d pages=%d", m.TotalWords, m.TotalPages)
	}
	if len(m.Sections) != 1 || m.Sections[0].Title != "Introduction" {
		t.Fatalf("unexpected sections: %+v", m.Sections)
	}
}
