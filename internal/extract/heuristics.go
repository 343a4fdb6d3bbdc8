package extract

import (
	"strings"
	"unicode/utf8"
)

const (
	titleScanLines   = 10
	titleMinRunes    = 10
	titleMaxRunes    = 200
	abstractMaxWords = 300
	abstractMinRunes = 50
)

var sectionVocabulary = []string{
	"abstract", "introduction", "methodology", "methods",
	"results", "discussion", "conclusion", "references",
	"acknowledgments", "appendix",
}

var abstractEndMarkers = []string{"introduction", "keywords", "1.", "\n\n\n"}

// IsSectionHeader reports whether line opens a new section: a short line naming
// a conventional section, or a numbered heading such as "2." or "3. Results".
func IsSectionHeader(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if len(strings.Fields(line)) <= 3 {
		lower := strings.ToLower(line)
		for _, word := range sectionVocabulary {
			if strings.Contains(lower, word) {
				return true
			}
		}
	}
	dot := strings.IndexByte(line, '.')
	if dot <= 0 {
		return false
	}
	return allDigits(line[:dot])
}

// ExtractTitle returns the first of the leading lines that looks like a title.
func ExtractTitle(text string) string {
	lines := strings.SplitN(text, "\n", titleScanLines+1)
	if len(lines) > titleScanLines {
		lines = lines[:titleScanLines]
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		n := utf8.RuneCountInString(line)
		if n < titleMinRunes || n > titleMaxRunes {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "abstract") || strings.HasPrefix(lower, "keywords") {
			continue
		}
		return line
	}
	return ""
}

// ExtractAbstract locates the abstract paragraph and bounds it by the next
// introduction, keywords, "1." or triple newline.
func ExtractAbstract(text string) string {
	lower := asciiLower(text)
	start := strings.Index(lower, "abstract")
	if start < 0 {
		return ""
	}
	bodyStart := start + len("abstract")
	end := len(text)
	for _, marker := range abstractEndMarkers {
		if i := strings.Index(lower[bodyStart:], marker); i >= 0 && bodyStart+i < end {
			end = bodyStart + i
		}
	}

	abstract := strings.TrimSpace(text[bodyStart:end])
	abstract = strings.TrimLeft(abstract, ":.- \t\r\n")

	words := strings.Fields(abstract)
	if len(words) > abstractMaxWords {
		abstract = strings.Join(words[:abstractMaxWords], " ") + "..."
	}
	if utf8.RuneCountInString(abstract) < abstractMinRunes {
		return ""
	}
	return abstract
}

// CountWords counts whitespace-delimited tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return truncateRunes(line, titleMaxRunes)
		}
	}
	return ""
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// asciiLower lower-cases ASCII letters only, so byte offsets match the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
