package extract

import (
	"strings"

	"paper-backend/internal/paper"
)

// sectionBuilder accumulates lines into sections as headers are encountered.
// Text seen before the first header belongs to no section.
type sectionBuilder struct {
	sections []paper.Section
	open     bool
	title    string
	body     []string
	pages    []int
}

// header closes the open section and starts a new one titled title.
// page is 1-based; zero means the format has no pages.
func (b *sectionBuilder) header(title string, page int) {
	b.flush()
	b.open = true
	b.title = title
	b.body = b.body[:0]
	b.pages = nil
	b.touch(page)
}

func (b *sectionBuilder) line(text string, page int) {
	if !b.open {
		return
	}
	b.body = append(b.body, text)
	b.touch(page)
}

// feed classifies a single line and routes it to header or line.
func (b *sectionBuilder) feed(text string, page int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if IsSectionHeader(text) {
		b.header(text, page)
		return
	}
	b.line(text, page)
}

func (b *sectionBuilder) touch(page int) {
	if page <= 0 {
		return
	}
	for _, p := range b.pages {
		if p == page {
			return
		}
	}
	b.pages = append(b.pages, page)
}

func (b *sectionBuilder) flush() {
	if !b.open {
		return
	}
	content := strings.TrimSpace(strings.Join(b.body, "\n"))
	if content != "" {
		pages := make([]int, len(b.pages))
		copy(pages, b.pages)
		b.sections = append(b.sections, paper.Section{
			Title:       b.title,
			Content:     content,
			PageNumbers: pages,
			WordCount:   CountWords(content),
		})
	}
	b.open = false
}

func (b *sectionBuilder) finish() []paper.Section {
	b.flush()
	if b.sections == nil {
		return []paper.Section{}
	}
	return b.sections
}
