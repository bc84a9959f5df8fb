/**
 * Scan-OCR Worker - Main Entry Point
 *
 * Converts scanned PDFs to Markdown, plain text or HTML.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed job queue
 * - Per-page pipeline: render, enhance, sample OCR, classify, configure, recognize
 * - Redis progress tracking for job status polling
 * - Optional PostgreSQL persistence of page results
 * - Optional VoyageAI + Qdrant page index for semantic search
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/config"
	"github.com/adverant/nexus/scanocr-worker/internal/index"
	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/adverant/nexus/scanocr-worker/internal/processor"
	"github.com/adverant/nexus/scanocr-worker/internal/progress"
	"github.com/adverant/nexus/scanocr-worker/internal/queue"
	"github.com/adverant/nexus/scanocr-worker/internal/storage"
	"github.com/adverant/nexus/scanocr-worker/internal/tuning"
	"github.com/joho/godotenv"
)

func main() {
	log := logging.NewLogger("worker")

	if err := godotenv.Load(".env.scanocr"); err != nil {
		log.Warn(".env.scanocr not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Warn("Invalid logging configuration, keeping defaults", "error", err)
	}

	log.Info("Scan-OCR Worker starting",
		"redis", cfg.RedisURL,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"persistence", cfg.PersistenceEnabled(),
		"index", cfg.IndexEnabled())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t, err := tuning.LoadOrDefault(cfg.TuningFile)
	if err != nil {
		log.Error("Failed to load tuning", "file", cfg.TuningFile, "error", err)
		os.Exit(1)
	}

	proc, err := processor.NewTesseractProcessor(t, cfg.TessdataPrefix, logging.NewLogger("processor"))
	if err != nil {
		log.Error("Failed to initialize scan processor", "error", err)
		os.Exit(1)
	}

	var jobs storage.JobStore
	if cfg.PersistenceEnabled() {
		db, err := storage.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("Failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			log.Error("Failed to prepare schema", "error", err)
			os.Exit(1)
		}
		jobs = db
		log.Info("PostgreSQL persistence enabled")
	}

	var indexer storage.DocumentIndexer
	if cfg.IndexEnabled() {
		embedder, err := index.NewEmbeddingClient(index.EmbeddingConfig{
			APIKey:        cfg.VoyageAPIKey,
			RatePerSecond: cfg.EmbeddingRatePerSec,
		}, logging.NewLogger("embedding"))
		if err != nil {
			log.Error("Failed to initialize embedding client", "error", err)
			os.Exit(1)
		}
		store, err := index.NewQdrantStore(ctx, cfg.QdrantURL, cfg.QdrantCollection, index.Dimensions)
		if err != nil {
			log.Error("Failed to connect to Qdrant", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		indexer = index.NewPageIndexer(embedder, store, logging.NewLogger("index"))
		log.Info("Page index enabled", "collection", cfg.QdrantCollection)
	}

	tracker, err := progress.NewRedisTracker(ctx, cfg.RedisURL, cfg.QueueName, logging.NewLogger("progress"))
	if err != nil {
		log.Error("Failed to connect progress tracker", "error", err)
		os.Exit(1)
	}
	defer tracker.Close()

	handler, err := queue.NewJobHandler(&queue.HandlerConfig{
		Converter:         proc,
		Loader:            processor.NewLoader(cfg.MaxFileSize, logging.NewLogger("loader")),
		Tracker:           tracker,
		Storage:           storage.NewStorageManager(jobs, indexer, logging.NewLogger("storage")),
		OutputDir:         cfg.OutputDir,
		OutputFormat:      cfg.OutputFormat,
		DefaultQuality:    cfg.DefaultOCRQuality,
		ProcessingTimeout: time.Duration(cfg.ProcessingTimeout) * time.Millisecond,
		Logger:            logging.NewLogger("job"),
	})
	if err != nil {
		log.Error("Failed to initialize job handler", "error", err)
		os.Exit(1)
	}

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.QueueName,
		Concurrency: cfg.WorkerConcurrency,
		Handler:     handler,
		Logger:      logging.NewLogger("queue"),
	})
	if err != nil {
		log.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}

	if err := consumer.Start(); err != nil {
		log.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}
	log.Info("Scan-OCR Worker is ready, waiting for jobs", "output_dir", cfg.OutputDir, "format", cfg.OutputFormat)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	consumer.Stop()

	log.Info("Shutdown complete")
}
