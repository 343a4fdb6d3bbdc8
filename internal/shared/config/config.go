package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"paper-backend/internal/shared/telemetry"
)

const (
	defaultMaxUploadBytes int64 = 200 << 20
	defaultExtractTimeout       = 5 * time.Minute
)

var defaultAllowedExtensions = []string{".pdf", ".docx", ".txt"}

// Config holds application configuration.
type Config struct {
	Port            string
	MetricsPort     string
	CORSAllowOrigin []string
	Env             string
	LogLevel        string
	DatabaseURL     string
	JWTSecret       string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool

	Ingestion Ingestion

	JobBackend        string
	WorkerConcurrency int
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	AsynqMaxRetry     int
	SQSQueueURL       string

	CacheTTL time.Duration

	NATSURL      string
	EventsStream string

	ClamdAddr string

	// Requests per minute per principal; zero disables the group.
	UploadRatePerMinute int
	ReadRatePerMinute   int

	LLMProvider     string
	LLMModel        string
	EmbeddingModel  string
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// Ingestion groups the upload validation and extraction settings.
type Ingestion struct {
	AllowedExtensions []string
	MaxUploadBytes    int64
	ExtractionTimeout time.Duration
	BatchLimit        int
}

// Load reads configuration from environment variables with sensible defaults.
// A YAML file named by CONFIG_FILE is applied before the environment, so
// environment variables win.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")
	if env == "production" && dbURL == "" {
		telemetry.Warn("DATABASE_URL is required in production", nil)
	}

	cfg := Config{
		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DatabaseURL:     dbURL,
		JWTSecret:       getEnv("JWT_SECRET", ""),

		ObjectStoreType: "local",
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data/uploads"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:     getEnv("MINIO_BUCKET", "papers"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),

		Ingestion: Ingestion{
			AllowedExtensions: append([]string(nil), defaultAllowedExtensions...),
			MaxUploadBytes:    defaultMaxUploadBytes,
			ExtractionTimeout: defaultExtractTimeout,
			BatchLimit:        5,
		},

		JobBackend:        "local",
		WorkerConcurrency: 4,
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		AsynqMaxRetry:     getEnvInt("ASYNQ_MAX_RETRY", 3),
		SQSQueueURL:       getEnv("SQS_QUEUE_URL", ""),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		NATSURL:      getEnv("NATS_URL", ""),
		EventsStream: getEnv("EVENTS_STREAM", "DOCUMENTS"),

		ClamdAddr: getEnv("CLAMD_ADDR", ""),

		UploadRatePerMinute: getEnvInt("RATE_LIMIT_UPLOADS_PER_MIN", 30),
		ReadRatePerMinute:   getEnvInt("RATE_LIMIT_READS_PER_MIN", 600),

		LLMProvider:     normalizeLLMProvider(getEnv("LLM_PROVIDER", "none")),
		LLMModel:        getEnv("LLM_MODEL", ""),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			telemetry.Warn("config file ignored", map[string]any{"path": path, "err": err.Error()})
		}
	}
	applyEnvOverrides(&cfg)
	return cfg
}

// applyEnvOverrides applies settings that may also come from the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OBJECT_STORE"); v != "" {
		cfg.ObjectStoreType = v
	}
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	if v := os.Getenv("ALLOWED_EXTENSIONS"); v != "" {
		cfg.Ingestion.AllowedExtensions = normalizeExtensions(splitAndTrim(v))
	}
	if v := getEnvInt64("MAX_UPLOAD_BYTES", 0); v > 0 {
		cfg.Ingestion.MaxUploadBytes = v
	}
	if v := getEnvDuration("EXTRACTION_TIMEOUT", 0); v > 0 {
		cfg.Ingestion.ExtractionTimeout = v
	}
	if v := os.Getenv("JOB_BACKEND"); v != "" {
		cfg.JobBackend = v
	}
	cfg.JobBackend = normalizeJobBackend(cfg.JobBackend)
	if v := getEnvInt("WORKER_CONCURRENCY", 0); v > 0 {
		cfg.WorkerConcurrency = v
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func getEnvInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return v
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "test":
		return "test"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "minio":
		return "minio"
	default:
		return "local"
	}
}

func normalizeJobBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "asynq", "redis":
		return "asynq"
	case "sqs":
		return "sqs"
	default:
		return "local"
	}
}

func normalizeLLMProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	case "anthropic", "claude":
		return "anthropic"
	default:
		return "none"
	}
}
