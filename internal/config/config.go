// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/melodeon/melodeon/internal/storage"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	DatabaseURL string

	// Auth
	JWTSecret string

	// Initial admin account, seeded at startup if the user does not exist.
	InitUsername string
	InitPassword string

	// Initial storage backend ("fs" or "s3"). Registered under the name
	// "init" on first startup; existing registrations win.
	InitBackendType string
	FSRoot          string

	// S3 settings for the initial backend.
	S3Endpoint             string
	S3Bucket               string
	S3AccessKey            string
	S3SecretKey            string
	S3Region               string
	S3DisableAmbientConfig bool

	// Ingestion
	MaxIngestMessageSize int64

	// Runtime
	WorkerThreads int
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:  envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		DatabaseURL: envOr("DATABASE_URL", ""),
		JWTSecret:   envOr("JWT_SECRET", ""),

		InitUsername: envOr("INIT_USERNAME", "admin"),
		InitPassword: envOr("INIT_PASSWORD", ""),

		InitBackendType: envOr("INIT_BACKEND_TYPE", "fs"),
		FSRoot:          envOr("FS_ROOT", "/data/melodeon"),

		S3Endpoint:             envOr("S3_ENDPOINT", ""),
		S3Bucket:               envOr("S3_BUCKET", "melodeon"),
		S3AccessKey:            envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:            envOr("S3_SECRET_KEY", ""),
		S3Region:               envOr("S3_REGION", "us-east-1"),
		S3DisableAmbientConfig: envBool("S3_DISABLE_AMBIENT_CONFIG", false),

		MaxIngestMessageSize: envInt64("MAX_INGEST_MESSAGE_SIZE", 128<<20),

		WorkerThreads: envInt("WORKER_THREADS", 0),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.InitBackendType != "fs" && cfg.InitBackendType != "s3" {
		return nil, fmt.Errorf("INIT_BACKEND_TYPE must be \"fs\" or \"s3\", got %q", cfg.InitBackendType)
	}

	return cfg, nil
}

// InitBackendConfig builds the storage configuration for the initial backend.
func (c *Config) InitBackendConfig() storage.BackendConfig {
	if c.InitBackendType == "s3" {
		return storage.BackendConfig{S3: &storage.S3Config{
			AccessKeyID:          c.S3AccessKey,
			SecretAccessKey:      c.S3SecretKey,
			Region:               c.S3Region,
			Bucket:               c.S3Bucket,
			Endpoint:             c.S3Endpoint,
			DisableAmbientConfig: c.S3DisableAmbientConfig,
		}}
	}
	return storage.BackendConfig{FS: &storage.FSConfig{Root: c.FSRoot}}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
