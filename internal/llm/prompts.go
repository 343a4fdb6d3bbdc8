package llm

import (
	_ "embed"
	"strings"
)

// MetadataSystemPrompt frames every metadata request.
const MetadataSystemPrompt = "You are a research paper metadata extractor. Extract accurate metadata and return it as valid JSON only."

var (
	//go:embed prompts/metadata_v1.txt
	metadataPromptV1 string
)

// PromptTemplate returns the prompt template text and whether the version was recognized.
func PromptTemplate(version string) (string, bool) {
	switch version {
	case "metadata_v1", "":
		return metadataPromptV1, true
	default:
		return metadataPromptV1, false
	}
}

// BuildMetadataPrompt renders the metadata prompt over the leading
// MetadataInputRunes of text.
func BuildMetadataPrompt(text string) string {
	tmpl, _ := PromptTemplate("metadata_v1")
	return strings.ReplaceAll(tmpl, "{{CONTENT}}", TruncateRunes(text, MetadataInputRunes))
}
