package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML overlay named by CONFIG_FILE.
type fileConfig struct {
	Ingestion struct {
		AllowedExtensions []string `yaml:"allowed_extensions"`
		MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
		ExtractionTimeout string   `yaml:"extraction_timeout"`
		BatchLimit        int      `yaml:"batch_limit"`
	} `yaml:"ingestion"`
	Storage struct {
		Type string `yaml:"type"`
	} `yaml:"storage"`
	Jobs struct {
		Backend     string `yaml:"backend"`
		Concurrency int    `yaml:"concurrency"`
		MaxRetry    int    `yaml:"max_retry"`
	} `yaml:"jobs"`
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if len(fc.Ingestion.AllowedExtensions) > 0 {
		cfg.Ingestion.AllowedExtensions = normalizeExtensions(fc.Ingestion.AllowedExtensions)
	}
	if fc.Ingestion.MaxUploadBytes > 0 {
		cfg.Ingestion.MaxUploadBytes = fc.Ingestion.MaxUploadBytes
	}
	if fc.Ingestion.ExtractionTimeout != "" {
		d, err := time.ParseDuration(fc.Ingestion.ExtractionTimeout)
		if err != nil {
			return fmt.Errorf("parse extraction_timeout: %w", err)
		}
		cfg.Ingestion.ExtractionTimeout = d
	}
	if fc.Ingestion.BatchLimit > 0 {
		cfg.Ingestion.BatchLimit = fc.Ingestion.BatchLimit
	}
	if fc.Storage.Type != "" {
		cfg.ObjectStoreType = fc.Storage.Type
	}
	if fc.Jobs.Backend != "" {
		cfg.JobBackend = fc.Jobs.Backend
	}
	if fc.Jobs.Concurrency > 0 {
		cfg.WorkerConcurrency = fc.Jobs.Concurrency
	}
	if fc.Jobs.MaxRetry > 0 {
		cfg.AsynqMaxRetry = fc.Jobs.MaxRetry
	}
	return nil
}
