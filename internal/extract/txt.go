package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"paper-backend/internal/paper"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func (x *Extractor) extractTXT(data []byte) (string, paper.Metadata, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", paper.Metadata{}, &ExtractionError{FileType: paper.FileTypeTXT, Op: "decode", Err: ErrInvalidEncoding}
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	var sb sectionBuilder
	for _, line := range strings.Split(text, "\n") {
		sb.feed(line, 0)
	}

	meta := paper.Metadata{
		Title:      firstNonEmptyLine(text),
		Abstract:   ExtractAbstract(text),
		Sections:   sb.finish(),
		TotalWords: CountWords(text),
	}
	return text, meta, nil
}
