// Package extracttest builds small PDF and DOCX fixtures for tests.
package extracttest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// TextPDF builds a valid PDF with one page per entry of pages. Each line is
// shown by its own text object positioned with Tm.
func TextPDF(pages [][]string) []byte {
	return PaddedTextPDF(pages, 0)
}

// PaddedTextPDF is TextPDF grown to exactly size bytes with a header comment.
// Sizes smaller than the unpadded document are ignored.
func PaddedTextPDF(pages [][]string, size int) []byte {
	base := buildPDF(pages, "")
	pad := size - len(base)
	if pad < 2 {
		return base
	}
	// Padding shifts every offset, so the xref digits can grow; rebuild
	// until the length settles.
	out := base
	for range 4 {
		out = buildPDF(pages, "%"+strings.Repeat("x", pad-2)+"\n")
		diff := len(out) - size
		if diff == 0 || pad-diff < 2 {
			break
		}
		pad -= diff
	}
	return out
}

func buildPDF(pages [][]string, padding string) []byte {
	n := len(pages)
	size := 4 + 2*n
	offsets := make([]int, size)

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	b.WriteString(padding)

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n)

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, lines := range pages {
		pageObj := 4 + 2*i
		contentObj := pageObj + 1

		offsets[pageObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n", pageObj, contentObj)

		stream := contentStream(lines)
		offsets[contentObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", contentObj, len(stream), stream)
	}

	xrefOffset := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", size)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i < size; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xrefOffset)
	return []byte(b.String())
}

func contentStream(lines []string) string {
	var b strings.Builder
	y := 720
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "BT\n/F1 12 Tf\n1 0 0 1 72 %d Tm\n(%s) Tj\nET", y, escapePDF(line))
		y -= 16
	}
	return b.String()
}

func escapePDF(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	return strings.ReplaceAll(s, ")", `\)`)
}

// Paragraph is one DOCX paragraph with an optional style id such as "Heading1".
type Paragraph struct {
	Style string
	Text  string
}

// CoreProps are the docProps/core.xml fields written by DOCX.
type CoreProps struct {
	Title    string
	Creator  string
	Keywords string
}

// DOCX builds a minimal word-processing package. A zero CoreProps omits core.xml.
func DOCX(paragraphs []Paragraph, props CoreProps) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	writeZipFile(zw, "[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`+
		`<Default Extension="xml" ContentType="application/xml"/>`+
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>`+
		`</Types>`)

	var doc strings.Builder
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		doc.WriteString("<w:p>")
		if p.Style != "" {
			fmt.Fprintf(&doc, `<w:pPr><w:pStyle w:val="%s"/></w:pPr>`, escapeXML(p.Style))
		}
		fmt.Fprintf(&doc, `<w:r><w:t xml:space="preserve">%s</w:t></w:r>`, escapeXML(p.Text))
		doc.WriteString("</w:p>")
	}
	doc.WriteString(`</w:body></w:document>`)
	writeZipFile(zw, "word/document.xml", doc.String())

	if props != (CoreProps{}) {
		writeZipFile(zw, "docProps/core.xml", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
			`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">`+
			`<dc:title>%s</dc:title><dc:creator>%s</dc:creator><cp:keywords>%s</cp:keywords>`+
			`</cp:coreProperties>`, escapeXML(props.Title), escapeXML(props.Creator), escapeXML(props.Keywords)))
	}

	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func writeZipFile(zw *zip.Writer, name, content string) {
	w, err := zw.Create(name)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		panic(err)
	}
}

func escapeXML(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		panic(err)
	}
	return b.String()
}
