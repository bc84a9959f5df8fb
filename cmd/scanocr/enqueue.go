package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adverant/nexus/scanocr-worker/internal/queue"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [file...]",
	Short: "Submit PDFs to the scan-OCR worker queue",
	Long: `Submit PDFs to the worker queue. By default the worker reads the file
from the given path, so the path must be visible to the worker; use --inline
to send the file contents with the job instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	enqueueCmd.Flags().String("redis", redisURL, "Redis URL of the worker queue")
	enqueueCmd.Flags().String("queue", "scanocr", "queue name")
	enqueueCmd.Flags().Bool("inline", false, "send file contents instead of the path")
	enqueueCmd.Flags().Duration("timeout", 0, "task timeout enforced by the queue (0: worker default)")
	addConversionFlags(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	s, err := readSettings(cmd)
	if err != nil {
		return err
	}
	redisURL, _ := cmd.Flags().GetString("redis")
	queueName, _ := cmd.Flags().GetString("queue")
	inline, _ := cmd.Flags().GetBool("inline")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	producer, err := queue.NewProducer(redisURL, queueName)
	if err != nil {
		return err
	}
	defer producer.Close()

	out := cmd.OutOrStdout()
	for _, path := range args {
		job, err := jobFor(path, s, inline)
		if err != nil {
			return err
		}
		info, err := producer.EnqueueConversion(cmd.Context(), job, timeout)
		if err != nil {
			return err
		}
		colorGreen.Fprintf(out, "%s", job.JobID)
		fmt.Fprintf(out, "  %s (queue %s)\n", path, info.Queue)
	}
	return nil
}

func jobFor(path string, s *settings, inline bool) (*queue.JobData, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	opts := s.opts
	job := &queue.JobData{
		JobID:        uuid.NewString(),
		Filename:     filepath.Base(abs),
		Options:      &opts,
		OutputFormat: string(s.format),
	}
	if inline {
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		job.FileBuffer = data
	} else {
		if _, err := os.Stat(abs); err != nil {
			return nil, err
		}
		job.FilePath = abs
	}
	return job, nil
}
