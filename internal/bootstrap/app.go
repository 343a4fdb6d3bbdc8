package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"paper-backend/internal/documents"
	"paper-backend/internal/extract"
	"paper-backend/internal/jobs"
	"paper-backend/internal/llm"
	anthropicllm "paper-backend/internal/llm/anthropic"
	openaillm "paper-backend/internal/llm/openai"
	"paper-backend/internal/queue"
	"paper-backend/internal/services/health"
	"paper-backend/internal/shared/cache"
	"paper-backend/internal/shared/config"
	"paper-backend/internal/shared/events"
	"paper-backend/internal/shared/scan"
	"paper-backend/internal/shared/server"
	"paper-backend/internal/shared/storage/db"
	"paper-backend/internal/shared/storage/object"
	localstore "paper-backend/internal/shared/storage/object/local"
	miniostore "paper-backend/internal/shared/storage/object/minio"
	s3store "paper-backend/internal/shared/storage/object/s3"
	"paper-backend/internal/shared/telemetry"
)

const (
	cachePrefix       = "paper"
	localQueueBuffer  = 64
	defaultWorkerPool = 4
)

// App holds shared dependencies for the API and worker binaries.
type App struct {
	Config           config.Config
	Router           *gin.Engine
	DB               *sql.DB
	Store            object.ObjectStore
	DocumentsRepo    documents.Repo
	Jobs             jobs.Submitter
	Events           events.Publisher
	Health           *health.Service
	DocumentsService *documents.Service
	DocumentsHandler *documents.Handler

	closers []func(context.Context) error
}

// Build wires the configured backends into the document service and router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	if strings.TrimSpace(cfg.JobBackend) == "" {
		cfg.JobBackend = "local"
	}
	ctx := context.Background()

	app := &App{Config: cfg, Health: health.NewService()}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sqlDB != nil {
		app.DB = sqlDB
		app.onClose(func(context.Context) error { return sqlDB.Close() })
		app.Health.Register("db", sqlDB.PingContext)
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.Store = store

	app.DocumentsRepo = app.buildRepo(ctx)
	app.Events = app.buildEvents()

	svc := &documents.Service{
		Repo:      app.DocumentsRepo,
		Store:     store,
		Extractor: extract.New(),
		Events:    app.Events,
		Settings:  cfg.Ingestion,
	}
	if strings.TrimSpace(cfg.ClamdAddr) != "" {
		svc.Scanner = scan.NewClamd(cfg.ClamdAddr)
	}
	enricher, err := BuildEnricher(cfg)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	svc.Enricher = enricher

	submitter, err := app.buildJobs(ctx, svc)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	svc.Jobs = submitter
	app.Jobs = submitter

	app.DocumentsService = svc
	app.DocumentsHandler = documents.NewHandler(svc)
	app.Router = server.NewRouter(server.RouterDeps{
		Config:          cfg,
		DocumentHandler: app.DocumentsHandler,
		Health:          app.Health,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"store":        store.Provider(),
		"job_backend":  cfg.JobBackend,
		"database":     sqlDB != nil,
		"llm_provider": cfg.LLMProvider,
	})
	return app, nil
}

// Close releases backends in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_missing", map[string]any{"fallback": "memory"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
		if err != nil {
			_ = sqlDB.Close()
		}
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.database_unavailable", map[string]any{"fallback": "memory", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "minio":
		return miniostore.New(ctx, miniostore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

// buildRepo picks Postgres or memory and fronts it with Redis when configured.
// A Redis outage at startup only disables the cache.
func (a *App) buildRepo(ctx context.Context) documents.Repo {
	var repo documents.Repo
	if a.DB != nil {
		repo = &documents.PGRepo{DB: a.DB}
	} else {
		repo = documents.NewMemoryRepo()
	}

	if strings.TrimSpace(a.Config.RedisAddr) == "" || a.Config.CacheTTL <= 0 {
		return repo
	}
	client, err := cache.Connect(ctx, a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB)
	if err != nil {
		telemetry.Warn("bootstrap.cache_unavailable", map[string]any{"error": err.Error()})
		return repo
	}
	c := cache.New(client, cachePrefix)
	a.onClose(func(context.Context) error { return c.Close() })
	a.Health.Register("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	return &documents.CachedRepo{Repo: repo, Cache: c, TTL: a.Config.CacheTTL}
}

func (a *App) buildEvents() events.Publisher {
	if strings.TrimSpace(a.Config.NATSURL) == "" {
		return events.Noop{}
	}
	pub, err := events.ConnectNATS(a.Config.NATSURL, a.Config.EventsStream)
	if err != nil {
		telemetry.Warn("bootstrap.events_unavailable", map[string]any{"error": err.Error()})
		return events.Noop{}
	}
	a.onClose(func(context.Context) error { return pub.Close() })
	a.Health.Register("nats", pub.Ping)
	return pub
}

// BuildEnricher returns the configured AI enrichment pipeline, or nil when
// LLM_PROVIDER is none.
func BuildEnricher(cfg config.Config) (llm.Enricher, error) {
	pipeline := &llm.Pipeline{}
	switch cfg.LLMProvider {
	case "openai":
		client, err := openaillm.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		pipeline.Metadata = client
		pipeline.Embedder = client
	case "anthropic":
		client, err := anthropicllm.NewClient(cfg.AnthropicAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, err
		}
		pipeline.Metadata = client
		// Anthropic has no embeddings endpoint; borrow OpenAI's when a key exists.
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			embedder, err := openaillm.NewEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
			if err != nil {
				return nil, err
			}
			pipeline.Embedder = embedder
		}
	default:
		return nil, nil
	}
	return pipeline, nil
}

func (a *App) buildJobs(ctx context.Context, svc *documents.Service) (jobs.Submitter, error) {
	cfg := a.Config
	switch cfg.JobBackend {
	case "asynq":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("JOB_BACKEND=asynq requires REDIS_ADDR")
		}
		sub := jobs.NewAsynqSubmitter(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.AsynqMaxRetry, cfg.Ingestion.ExtractionTimeout)
		a.onClose(func(context.Context) error { return sub.Close() })
		return sub, nil
	case "sqs":
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			return nil, err
		}
		return &jobs.QueueSubmitter{Client: client}, nil
	default:
		workers := cfg.WorkerConcurrency
		if workers <= 0 {
			workers = defaultWorkerPool
		}
		mux := jobs.NewMux()
		mux.Register(jobs.KindExtract, svc)
		local := jobs.NewLocal(mux, workers, localQueueBuffer, cfg.Ingestion.ExtractionTimeout)
		a.onClose(local.Close)
		return local, nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}
