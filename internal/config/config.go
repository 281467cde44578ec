package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     string
	DBPath   string
	LogLevel string

	// Worker
	PollInterval time.Duration
	EvalEndpoint string
	EvalAPIKey   string
	EvalTimeout  time.Duration

	// Task defaults
	DefaultModelURI     string
	DefaultNumTestCases int

	// Upload / storage
	MaxUploadSize  int64
	StorageBackend string // "local" or "s3"
	StorageRoot    string

	// S3 (used when StorageBackend is "s3")
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3UseSSL          bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              getEnv("DB_PATH", ".data/evaluations.db"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		PollInterval:        time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)) * time.Second,
		EvalEndpoint:        getEnv("EVAL_ENDPOINT", ""),
		EvalAPIKey:          getEnv("EVAL_API_KEY", ""),
		EvalTimeout:         time.Duration(getEnvInt("EVAL_TIMEOUT_SECONDS", 0)) * time.Second,
		DefaultModelURI:     getEnv("DEFAULT_MODEL_URI", "openai/gpt-4o-mini"),
		DefaultNumTestCases: getEnvInt("DEFAULT_NUM_TEST_CASES", 50),
		MaxUploadSize:       int64(getEnvInt("MAX_UPLOAD_SIZE_MB", 100)) << 20,
		StorageBackend:      getEnv("STORAGE_BACKEND", "local"),
		StorageRoot:         getEnv("STORAGE_ROOT", ".data/uploads"),
		S3Endpoint:          getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKeyID:       getEnv("S3_ACCESS_KEY_ID", "minioadmin"),
		S3SecretAccessKey:   getEnv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		S3BucketName:        getEnv("S3_BUCKET_NAME", "documents"),
		S3UseSSL:            getEnv("S3_USE_SSL", "false") == "true",
	}

	if cfg.StorageBackend != "local" && cfg.StorageBackend != "s3" {
		return nil, fmt.Errorf("STORAGE_BACKEND must be \"local\" or \"s3\", got %q", cfg.StorageBackend)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
