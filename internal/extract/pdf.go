package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"paper-backend/internal/paper"
	"paper-backend/internal/shared/telemetry"
)

type pdfPage struct {
	number int
	lines  []string
}

type pdfResult struct {
	pages      []pdfPage
	totalPages int
}

func (r pdfResult) hasText() bool {
	for _, p := range r.pages {
		if len(p.lines) > 0 {
			return true
		}
	}
	return false
}

func (x *Extractor) extractPDF(ctx context.Context, data []byte) (string, paper.Metadata, error) {
	if len(data) == 0 {
		return "", paper.Metadata{}, &ExtractionError{FileType: paper.FileTypePDF, Op: "open", Err: ErrEmptyInput}
	}

	primary, primaryErr := readPDFLayout(data)
	if primaryErr == nil && primary.hasText() {
		full, meta := assemblePDF(primary)
		return full, meta, nil
	}
	if err := ctx.Err(); err != nil {
		return "", paper.Metadata{}, err
	}

	fields := map[string]any{"pages": primary.totalPages}
	if primaryErr != nil {
		fields["err"] = primaryErr.Error()
	}
	telemetry.Warn("pdf layout pass produced no text, trying content streams", fields)

	fallback, fallbackErr := readPDFContentStreams(data)
	switch {
	case fallbackErr == nil && (fallback.hasText() || primaryErr != nil):
		full, meta := assemblePDF(fallback)
		return full, meta, nil
	case primaryErr == nil:
		// Parsed but textless, e.g. scanned pages.
		full, meta := assemblePDF(primary)
		return full, meta, nil
	default:
		return "", paper.Metadata{}, &ExtractionError{
			FileType: paper.FileTypePDF,
			Op:       "parse",
			Err:      errors.Join(primaryErr, fallbackErr),
		}
	}
}

func assemblePDF(res pdfResult) (string, paper.Metadata) {
	var (
		sb    sectionBuilder
		parts []string
	)
	for _, page := range res.pages {
		if len(page.lines) == 0 {
			continue
		}
		for _, line := range page.lines {
			sb.feed(line, page.number)
		}
		parts = append(parts, strings.Join(page.lines, "\n"))
	}
	full := strings.Join(parts, "\n\n")
	return full, paper.Metadata{
		Title:      ExtractTitle(full),
		Abstract:   ExtractAbstract(full),
		Sections:   sb.finish(),
		TotalPages: res.totalPages,
		TotalWords: CountWords(full),
	}
}

// readPDFLayout groups text runs into rows per page, top-down with cells
// ordered left to right.
func readPDFLayout(data []byte) (res pdfResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return pdfResult{}, fmt.Errorf("open pdf: %w", err)
	}
	res.totalPages = reader.NumPage()
	for i := 1; i <= res.totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, rowErr := page.GetTextByRow()
		if rowErr != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			cells := append(pdf.TextHorizontal(nil), row.Content...)
			sort.SliceStable(cells, func(a, b int) bool { return cells[a].X < cells[b].X })
			parts := make([]string, 0, len(cells))
			for _, cell := range cells {
				if s := strings.TrimSpace(cell.S); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				lines = append(lines, strings.Join(parts, " "))
			}
		}
		if len(lines) <= 1 {
			// Writers that position with Td only collapse into a single row.
			if plain, plainErr := page.GetPlainText(nil); plainErr == nil {
				if split := nonEmptyLines(plain); len(split) > len(lines) {
					lines = split
				}
			}
		}
		res.pages = append(res.pages, pdfPage{number: i, lines: lines})
	}
	return res, nil
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// readPDFContentStreams walks each page's content stream and collects text
// shown by Tj, TJ, ' and " operators.
func readPDFContentStreams(data []byte) (res pdfResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return pdfResult{}, fmt.Errorf("pdfcpu read: %w", err)
	}
	res.totalPages = pctx.PageCount
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		r, pageErr := pdfcpu.ExtractPageContent(pctx, pageNr)
		if pageErr != nil || r == nil {
			continue
		}
		content, readErr := io.ReadAll(r)
		if readErr != nil || len(content) == 0 {
			continue
		}
		res.pages = append(res.pages, pdfPage{number: pageNr, lines: contentStreamLines(content)})
	}
	return res, nil
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

func contentStreamLines(data []byte) []string {
	var (
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			lines = append(lines, s)
		}
		cur.Reset()
	}
	show := func(op []byte) {
		for _, m := range pdfStringRe.FindAllSubmatch(op, -1) {
			cur.WriteString(decodePDFString(m[1]))
		}
	}

	for _, raw := range bytes.Split(data, []byte{'\n'}) {
		op := bytes.TrimSpace(raw)
		switch {
		case len(op) == 0:
		case bytes.HasSuffix(op, []byte("Tj")), bytes.HasSuffix(op, []byte("TJ")):
			show(op)
		case (bytes.HasSuffix(op, []byte("'")) || bytes.HasSuffix(op, []byte(`"`))) && bytes.Contains(op, []byte("(")):
			flush()
			show(op)
		case bytes.HasSuffix(op, []byte("Td")), bytes.HasSuffix(op, []byte("TD")),
			bytes.Equal(op, []byte("T*")), bytes.Equal(op, []byte("ET")):
			flush()
		}
	}
	flush()
	return lines
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			sb.WriteByte(raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			val := int(raw[i] - '0')
			for j := 0; j < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; j++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return sb.String()
}
