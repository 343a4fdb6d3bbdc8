package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"paper-backend/internal/paper"
)

type docxParagraph struct {
	style string
	text  string
}

type coreProperties struct {
	Title    string `xml:"title"`
	Creator  string `xml:"creator"`
	Keywords string `xml:"keywords"`
}

func (x *Extractor) extractDOCX(data []byte) (string, paper.Metadata, error) {
	if len(data) == 0 {
		return "", paper.Metadata{}, &ExtractionError{FileType: paper.FileTypeDOCX, Op: "open", Err: ErrEmptyInput}
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", paper.Metadata{}, &ExtractionError{FileType: paper.FileTypeDOCX, Op: "open", Err: err}
	}

	docFile := findZipFile(zr, "word/document.xml")
	if docFile == nil {
		return "", paper.Metadata{}, &ExtractionError{FileType: paper.FileTypeDOCX, Op: "open", Err: ErrNoDocumentXML}
	}
	paragraphs, err := readDOCXParagraphs(docFile)
	if err != nil {
		return "", paper.Metadata{}, &ExtractionError{FileType: paper.FileTypeDOCX, Op: "parse", Err: err}
	}

	var (
		sb         sectionBuilder
		parts      []string
		styleTitle string
	)
	for _, p := range paragraphs {
		if p.text == "" {
			continue
		}
		parts = append(parts, p.text)
		switch strings.ToLower(strings.TrimSpace(p.style)) {
		case "title":
			if styleTitle == "" {
				styleTitle = p.text
			}
			continue
		case "subtitle":
			sb.line(p.text, 0)
			continue
		}
		if docxHeadingLevel(p.style) > 0 || IsSectionHeader(p.text) {
			sb.header(p.text, 0)
			continue
		}
		sb.line(p.text, 0)
	}

	full := strings.Join(parts, "\n\n")
	meta := paper.Metadata{
		Title:      ExtractTitle(full),
		Abstract:   ExtractAbstract(full),
		Sections:   sb.finish(),
		TotalWords: CountWords(full),
	}
	if styleTitle != "" {
		meta.Title = truncateRunes(styleTitle, titleMaxRunes)
	}

	// Core properties are optional; a broken core.xml does not fail extraction.
	if props, ok := readCoreProperties(zr); ok {
		if props.Creator != "" {
			meta.Authors = splitList(props.Creator, ";")
		}
		if props.Keywords != "" {
			meta.Keywords = splitList(props.Keywords, ",;")
		}
		if meta.Title == "" {
			meta.Title = strings.TrimSpace(props.Title)
		}
	}
	return full, meta, nil
}

func findZipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == name {
			return f
		}
	}
	return nil
}

func readDOCXParagraphs(f *zip.File) ([]docxParagraph, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var (
		paragraphs  []docxParagraph
		current     strings.Builder
		style       string
		inParagraph bool
		inText      bool
	)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Name, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				current.Reset()
				style = ""
			case "pStyle":
				if inParagraph {
					for _, attr := range t.Attr {
						if attr.Name.Local == "val" {
							style = attr.Value
						}
					}
				}
			case "t":
				inText = inParagraph
			case "tab":
				if inParagraph {
					current.WriteByte(' ')
				}
			case "br", "cr":
				if inParagraph {
					current.WriteByte(' ')
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if inParagraph {
					paragraphs = append(paragraphs, docxParagraph{
						style: style,
						text:  strings.Join(strings.Fields(current.String()), " "),
					})
				}
				inParagraph = false
			}
		}
	}
	return paragraphs, nil
}

func readCoreProperties(zr *zip.Reader) (coreProperties, bool) {
	f := findZipFile(zr, "docProps/core.xml")
	if f == nil {
		return coreProperties{}, false
	}
	rc, err := f.Open()
	if err != nil {
		return coreProperties{}, false
	}
	defer rc.Close()

	var props coreProperties
	if err := xml.NewDecoder(rc).Decode(&props); err != nil {
		return coreProperties{}, false
	}
	return props, true
}

// docxHeadingLevel maps a Heading style to its level, zero if none.
// e.g. "Heading1" -> 1, "Heading 2" -> 2. Title styles are not headings.
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(strings.TrimSpace(style))
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		rest := strings.TrimSpace(lower[len(prefix):])
		if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
			return int(rest[0] - '0')
		}
	}
	return 0
}

func splitList(s, seps string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(seps, r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
