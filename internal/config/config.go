// Package config loads capturecore runtime settings from the environment and
// the optional YAML fixture file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting of the service.
type Config struct {
	HTTPAddr        string        `env:"CAPTURECORE_HTTP_ADDR"        envDefault:"0.0.0.0:5000"`
	PublicBaseURL   string        `env:"CAPTURECORE_PUBLIC_BASE_URL"`
	ShutdownTimeout time.Duration `env:"CAPTURECORE_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	StorageDriver string `env:"CAPTURECORE_STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath    string `env:"CAPTURECORE_SQLITE_PATH"    envDefault:"capturecore.db"`
	PostgresDSN   string `env:"CAPTURECORE_POSTGRES_DSN"`

	BlobDriver string   `env:"CAPTURECORE_BLOB_DRIVER"  envDefault:"fs"`
	BlobFSRoot string   `env:"CAPTURECORE_BLOB_FS_ROOT" envDefault:"uploads"`
	S3         S3Config `envPrefix:"CAPTURECORE_BLOB_S3_"`

	DirectUploads bool          `env:"CAPTURECORE_DIRECT_UPLOADS"  envDefault:"false"`
	PresignExpiry time.Duration `env:"CAPTURECORE_PRESIGN_EXPIRY"  envDefault:"15m"`
	MaxChunkBytes int64         `env:"CAPTURECORE_MAX_CHUNK_BYTES" envDefault:"33554432"`

	SeedFile string `env:"CAPTURECORE_SEED_FILE"`

	LogLevel  string `env:"CAPTURECORE_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"CAPTURECORE_LOG_FORMAT" envDefault:"text"`

	OTelEndpoint string `env:"CAPTURECORE_OTEL_ENDPOINT"`
}

// S3Config carries the bucket settings used when BlobDriver is s3.
type S3Config struct {
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"ENDPOINT"`
	PathStyle       bool   `env:"PATH_STYLE"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	SessionToken    string `env:"SESSION_TOKEN"`
}

// Load parses the environment into a validated Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and cross-field requirements.
func (c Config) Validate() error {
	var problems []string
	if c.HTTPAddr == "" {
		problems = append(problems, "http address is required")
	}
	switch c.StorageDriver {
	case "memory", "sqlite":
	case "postgres":
		if c.PostgresDSN == "" {
			problems = append(problems, "postgres storage requires CAPTURECORE_POSTGRES_DSN")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage driver %q", c.StorageDriver))
	}
	switch c.BlobDriver {
	case "fs", "memory":
	case "s3":
		if c.S3.Bucket == "" {
			problems = append(problems, "s3 blob driver requires CAPTURECORE_BLOB_S3_BUCKET")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown blob driver %q", c.BlobDriver))
	}
	if c.MaxChunkBytes <= 0 {
		problems = append(problems, "max chunk bytes must be positive")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.LogFormat))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
