package config

import (
	"testing"

	"github.com/adverant/nexus/scanocr-worker/internal/textproc"
	"github.com/adverant/nexus/scanocr-worker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"REDIS_URL", "QUEUE_NAME", "DATABASE_URL", "QDRANT_URL", "QDRANT_COLLECTION", "VOYAGE_API_KEY",
	"EMBEDDING_RATE_PER_SEC", "WORKER_CONCURRENCY", "MAX_FILE_SIZE", "PROCESSING_TIMEOUT",
	"TESSDATA_PREFIX", "TUNING_FILE", "OUTPUT_DIR", "OUTPUT_FORMAT", "DEFAULT_OCR_QUALITY",
	"LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://nexus-redis:6379", cfg.RedisURL)
	assert.Equal(t, "scanocr", cfg.QueueName)
	assert.Equal(t, 2, cfg.WorkerConcurrency)
	assert.Equal(t, 1800000, cfg.ProcessingTimeout)
	assert.Equal(t, types.QualityBalanced, cfg.DefaultOCRQuality)
	assert.Equal(t, textproc.FormatMarkdown, cfg.OutputFormat)
	assert.Equal(t, 2.0, cfg.EmbeddingRatePerSec)
	assert.False(t, cfg.PersistenceEnabled())
	assert.False(t, cfg.IndexEnabled())
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db/scans")
	t.Setenv("VOYAGE_API_KEY", "key")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("OUTPUT_FORMAT", "html")
	t.Setenv("DEFAULT_OCR_QUALITY", "Accurate")
	t.Setenv("EMBEDDING_RATE_PER_SEC", "0.5")
	t.Setenv("MAX_FILE_SIZE", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.WorkerConcurrency)
	assert.Equal(t, textproc.FormatHTML, cfg.OutputFormat)
	assert.Equal(t, types.QualityAccurate, cfg.DefaultOCRQuality)
	assert.Equal(t, 0.5, cfg.EmbeddingRatePerSec)
	assert.Equal(t, int64(536870912), cfg.MaxFileSize)
	assert.True(t, cfg.PersistenceEnabled())
	assert.True(t, cfg.IndexEnabled())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"WORKER_CONCURRENCY":  "0",
		"MAX_FILE_SIZE":       "10",
		"PROCESSING_TIMEOUT":  "5",
		"OUTPUT_FORMAT":       "docx",
		"DEFAULT_OCR_QUALITY": "best",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
