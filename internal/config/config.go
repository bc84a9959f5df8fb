/**
 * Configuration for the Scan-OCR Worker
 *
 * Loads configuration from environment variables matching .env.scanocr
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/adverant/nexus/scanocr-worker/internal/textproc"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL  string
	QueueName string

	// PostgreSQL configuration, empty disables persistence
	DatabaseURL string

	// Page index, disabled without a VoyageAI key
	QdrantURL           string
	QdrantCollection    string
	VoyageAPIKey        string
	EmbeddingRatePerSec float64

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout int // milliseconds

	// OCR configuration
	TessdataPrefix    string
	TuningFile        string
	DefaultOCRQuality types.Quality

	// Output
	OutputDir    string
	OutputFormat textproc.OutputFormat

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://nexus-redis:6379"),
		QueueName:           getEnvOrDefault("QUEUE_NAME", "scanocr"),
		DatabaseURL:         getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:           getEnvOrDefault("QDRANT_URL", "nexus-qdrant:6334"),
		QdrantCollection:    getEnvOrDefault("QDRANT_COLLECTION", "scanocr_pages"),
		VoyageAPIKey:        getEnvOrDefault("VOYAGE_API_KEY", ""),
		EmbeddingRatePerSec: getEnvAsFloatOrDefault("EMBEDDING_RATE_PER_SEC", 2),
		WorkerConcurrency:   getEnvAsIntOrDefault("WORKER_CONCURRENCY", 2),
		MaxFileSize:         getEnvAsInt64OrDefault("MAX_FILE_SIZE", 536870912), // 512MB
		ProcessingTimeout:   getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 1800000), // 30 minutes
		TessdataPrefix:      getEnvOrDefault("TESSDATA_PREFIX", ""),
		TuningFile:          getEnvOrDefault("TUNING_FILE", ""),
		OutputDir:           getEnvOrDefault("OUTPUT_DIR", "/tmp/scanocr"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "text"),
	}

	quality, err := types.ParseQuality(getEnvOrDefault("DEFAULT_OCR_QUALITY", "balanced"))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_OCR_QUALITY: %w", err)
	}
	cfg.DefaultOCRQuality = quality

	format, err := textproc.ParseFormat(getEnvOrDefault("OUTPUT_FORMAT", "md"))
	if err != nil {
		return nil, fmt.Errorf("OUTPUT_FORMAT: %w", err)
	}
	cfg.OutputFormat = format

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 10737418240 { // 1KB to 10GB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 10GB, got %d", c.MaxFileSize)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.EmbeddingRatePerSec < 0 {
		return fmt.Errorf("EMBEDDING_RATE_PER_SEC must not be negative, got %v", c.EmbeddingRatePerSec)
	}

	if c.IndexEnabled() && c.QdrantURL == "" {
		return fmt.Errorf("QDRANT_URL is required when VOYAGE_API_KEY is set")
	}

	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}

	return nil
}

// PersistenceEnabled reports whether job results go to PostgreSQL
func (c *Config) PersistenceEnabled() bool {
	return c.DatabaseURL != ""
}

// IndexEnabled reports whether pages are embedded into Qdrant
func (c *Config) IndexEnabled() bool {
	return c.VoyageAPIKey != ""
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}
