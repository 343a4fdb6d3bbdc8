package bootstrap

import (
	"context"
	"io"
	"testing"

	"paper-backend/internal/documents"
	"paper-backend/internal/jobs"
	"paper-backend/internal/llm"
	"paper-backend/internal/shared/config"
	"paper-backend/internal/shared/events"
	"paper-backend/internal/shared/telemetry"
)

func init() {
	telemetry.SetOutput(io.Discard)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:           "test",
		LocalStoreDir: t.TempDir(),
		Ingestion: config.Ingestion{
			AllowedExtensions: []string{".pdf", ".docx", ".txt"},
			MaxUploadBytes:    1 << 20,
			BatchLimit:        5,
		},
	}
}

func TestBuildDevDefaults(t *testing.T) {
	app, err := Build(testConfig(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	if app.DB != nil {
		t.Fatalf("expected no database")
	}
	if _, ok := app.DocumentsRepo.(*documents.MemoryRepo); !ok {
		t.Fatalf("expected memory repo, got %T", app.DocumentsRepo)
	}
	if _, ok := app.Jobs.(*jobs.Local); !ok {
		t.Fatalf("expected local jobs, got %T", app.Jobs)
	}
	if _, ok := app.Events.(events.Noop); !ok {
		t.Fatalf("expected noop events, got %T", app.Events)
	}
	if app.Store.Provider() != "local" {
		t.Fatalf("store provider = %q", app.Store.Provider())
	}
	if app.DocumentsService.Jobs == nil || app.DocumentsService.Enricher != nil {
		t.Fatalf("unexpected service wiring: %+v", app.DocumentsService)
	}
	if app.Router == nil {
		t.Fatalf("expected router")
	}
}

func TestBuildRequiresDatabaseOutsideDev(t *testing.T) {
	cfg := testConfig(t)
	cfg.Env = "production"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestBuildValidatesBackends(t *testing.T) {
	cfg := testConfig(t)
	cfg.ObjectStoreType = "s3"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error for s3 without bucket")
	}

	cfg = testConfig(t)
	cfg.JobBackend = "asynq"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error for asynq without redis")
	}

	cfg = testConfig(t)
	cfg.LLMProvider = "openai"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected error for openai without key")
	}
}

func TestBuildEnricherProviders(t *testing.T) {
	enricher, err := BuildEnricher(config.Config{LLMProvider: "none"})
	if err != nil || enricher != nil {
		t.Fatalf("none: got %v, %v", enricher, err)
	}

	enricher, err = BuildEnricher(config.Config{
		LLMProvider:     "anthropic",
		LLMModel:        "claude-sonnet-4-5",
		AnthropicAPIKey: "a-key",
		OpenAIAPIKey:    "o-key",
	})
	if err != nil {
		t.Fatalf("anthropic: %v", err)
	}
	pipeline, ok := enricher.(*llm.Pipeline)
	if !ok {
		t.Fatalf("expected pipeline, got %T", enricher)
	}
	if pipeline.Metadata == nil || pipeline.Embedder == nil {
		t.Fatalf("expected metadata and embedder, got %+v", pipeline)
	}

	enricher, err = BuildEnricher(config.Config{
		LLMProvider:     "anthropic",
		LLMModel:        "claude-sonnet-4-5",
		AnthropicAPIKey: "a-key",
	})
	if err != nil {
		t.Fatalf("anthropic without openai: %v", err)
	}
	if enricher.(*llm.Pipeline).Embedder != nil {
		t.Fatalf("expected no embedder")
	}
}

func TestCloseRunsInReverse(t *testing.T) {
	var order []int
	app := &App{}
	app.onClose(func(context.Context) error { order = append(order, 1); return nil })
	app.onClose(func(context.Context) error { order = append(order, 2); return nil })
	if err := app.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("order = %v", order)
	}
	if err := app.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
