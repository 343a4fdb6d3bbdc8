package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"paper-backend/internal/bootstrap"
	"paper-backend/internal/extract"
	"paper-backend/internal/llm"
	"paper-backend/internal/paper"
	"paper-backend/internal/shared/config"
)

type report struct {
	File       string          `json:"file"`
	FileType   string          `json:"fileType"`
	Words      int             `json:"words"`
	Extracted  paper.Metadata  `json:"extracted"`
	Enriched   *paper.Metadata `json:"enriched,omitempty"`
	Dimensions int             `json:"embeddingDimensions,omitempty"`
	Error      string          `json:"enrichmentError,omitempty"`
}

func main() {
	cfg := config.Load()

	paperPath := flag.String("paper", "", "Path to paper file (pdf, docx or txt)")
	outPath := flag.String("out", "", "Path to write JSON output (optional)")
	provider := flag.String("provider", cfg.LLMProvider, "LLM provider (openai, anthropic or none)")
	model := flag.String("model", cfg.LLMModel, "LLM model")
	showPrompt := flag.Bool("prompt", false, "Print the metadata prompt instead of calling the provider")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	if strings.TrimSpace(*paperPath) == "" {
		exitErr("paper path is required")
	}
	fileType, ok := paper.FileTypeFromName(*paperPath)
	if !ok {
		exitErr(fmt.Sprintf("unsupported paper file type: %s", filepath.Ext(*paperPath)))
	}
	data, err := os.ReadFile(*paperPath)
	if err != nil {
		exitErr(fmt.Sprintf("read paper: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	text, meta, err := extract.New().Extract(ctx, data, fileType)
	if err != nil {
		exitErr(fmt.Sprintf("extract paper text: %v", err))
	}

	if *showPrompt {
		fmt.Println(llm.BuildMetadataPrompt(text))
		return
	}

	out := report{
		File:      filepath.Base(*paperPath),
		FileType:  string(fileType),
		Words:     len(strings.Fields(text)),
		Extracted: meta,
	}

	cfg.LLMProvider = *provider
	cfg.LLMModel = *model
	enricher, err := bootstrap.BuildEnricher(cfg)
	if err != nil {
		exitErr(err.Error())
	}
	if enricher != nil {
		enrichment, err := enricher.Enrich(ctx, text)
		if err != nil {
			out.Error = err.Error()
		}
		if !isEmpty(enrichment.Metadata) {
			out.Enriched = &enrichment.Metadata
		}
		out.Dimensions = len(enrichment.Embedding)
	}

	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		exitErr(fmt.Sprintf("format json: %v", err))
	}
	pretty = append(pretty, '\n')

	if *outPath != "" {
		if err := os.WriteFile(*outPath, pretty, 0o644); err != nil {
			exitErr(fmt.Sprintf("write output: %v", err))
		}
	}
	if _, err := os.Stdout.Write(pretty); err != nil {
		exitErr(fmt.Sprintf("write stdout: %v", err))
	}
}

func isEmpty(m paper.Metadata) bool {
	return m.Title == "" && m.Abstract == "" && len(m.Authors) == 0 && len(m.Keywords) == 0 &&
		len(m.MainTopics) == 0 && m.Methodology == "" && len(m.KeyFindings) == 0
}

func exitErr(msg string) {
	_, _ = fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
