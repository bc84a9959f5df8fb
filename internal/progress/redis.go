package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/adverant/nexus/scanocr-worker/internal/logging"
	"github.com/redis/go-redis/v9"
)

// finishedTTL is how long completed and failed job hashes stay readable
const finishedTTL = 24 * time.Hour

// RedisTracker stores one hash per job under <prefix>:job:<id> and keeps
// <prefix>:processing, <prefix>:completed and <prefix>:failed sets. Every
// change is published on <prefix>:events.
type RedisTracker struct {
	client *redis.Client
	prefix string
	logger *logging.Logger
}

// NewRedisTracker connects to redisURL and verifies the connection
func NewRedisTracker(ctx context.Context, redisURL, prefix string, logger *logging.Logger) (*RedisTracker, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisTrackerFromClient(client, prefix, logger), nil
}

// NewRedisTrackerFromClient wraps an existing client
func NewRedisTrackerFromClient(client *redis.Client, prefix string, logger *logging.Logger) *RedisTracker {
	if prefix == "" {
		prefix = "scanocr"
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &RedisTracker{client: client, prefix: prefix, logger: logger}
}

func (r *RedisTracker) jobKey(jobID string) string { return r.prefix + ":job:" + jobID }
func (r *RedisTracker) setKey(s Status) string { return r.prefix + ":" + string(s) }
func (r *RedisTracker) eventsChannel() string { return r.prefix + ":events" }

// Start implements Tracker
func (r *RedisTracker) Start(ctx context.Context, jobID string) error {
	now := time.Now()
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.jobKey(jobID))
	pipe.HSet(ctx, r.jobKey(jobID), map[string]interface{}{
		"jobId":     jobID,
		"status":    string(StatusProcessing),
		"progress":  "0",
		"updatedAt": now.Format(time.RFC3339Nano),
	})
	pipe.SRem(ctx, r.setKey(StatusCompleted), jobID)
	pipe.SRem(ctx, r.setKey(StatusFailed), jobID)
	pipe.SAdd(ctx, r.setKey(StatusProcessing), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to start job %s: %w", jobID, err)
	}
	r.publish(ctx, jobID, "job:processing", nil)
	return nil
}

// Update implements Tracker
func (r *RedisTracker) Update(ctx context.Context, jobID string, percent float64, stage string, page, total int) error {
	exists, err := r.client.Exists(ctx, r.jobKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	if exists == 0 {
		return nil
	}

	percent = Clamp(percent)
	err = r.client.HSet(ctx, r.jobKey(jobID), map[string]interface{}{
		"progress":   strconv.FormatFloat(percent, 'f', 2, 64),
		"stage":      stage,
		"page":       page,
		"totalPages": total,
		"updatedAt":  time.Now().Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	r.publish(ctx, jobID, "job:progress", map[string]interface{}{
		"progress":   percent,
		"stage":      stage,
		"page":       page,
		"totalPages": total,
	})
	return nil
}

// Complete implements Tracker
func (r *RedisTracker) Complete(ctx context.Context, jobID string) error {
	return r.finish(ctx, jobID, StatusCompleted, map[string]interface{}{"progress": "100"})
}

// Fail implements Tracker
func (r *RedisTracker) Fail(ctx context.Context, jobID string, reason string) error {
	return r.finish(ctx, jobID, StatusFailed, map[string]interface{}{"error": reason})
}

func (r *RedisTracker) finish(ctx context.Context, jobID string, status Status, fields map[string]interface{}) error {
	fields["status"] = string(status)
	fields["updatedAt"] = time.Now().Format(time.RFC3339Nano)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.jobKey(jobID), fields)
	pipe.Expire(ctx, r.jobKey(jobID), finishedTTL)
	pipe.SRem(ctx, r.setKey(StatusProcessing), jobID)
	pipe.SAdd(ctx, r.setKey(status), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark job %s %s: %w", jobID, status, err)
	}

	var extra map[string]interface{}
	if reason, ok := fields["error"]; ok {
		extra = map[string]interface{}{"error": reason}
	}
	r.publish(ctx, jobID, "job:"+string(status), extra)
	return nil
}

// Get implements Tracker
func (r *RedisTracker) Get(ctx context.Context, jobID string) (*JobProgress, error) {
	fields, err := r.client.HGetAll(ctx, r.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return parseHash(jobID, fields), nil
}

// Remove implements Tracker
func (r *RedisTracker) Remove(ctx context.Context, jobID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.jobKey(jobID))
	for _, s := range []Status{StatusProcessing, StatusCompleted, StatusFailed} {
		pipe.SRem(ctx, r.setKey(s), jobID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove job %s: %w", jobID, err)
	}
	return nil
}

// Stats returns the number of jobs per status
func (r *RedisTracker) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64, 3)
	for _, s := range []Status{StatusProcessing, StatusCompleted, StatusFailed} {
		n, err := r.client.SCard(ctx, r.setKey(s)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count %s jobs: %w", s, err)
		}
		stats[string(s)] = n
	}
	return stats, nil
}

// Close closes the Redis connection
func (r *RedisTracker) Close() error {
	return r.client.Close()
}

// publish sends an event for streaming clients. Failures are logged only.
func (r *RedisTracker) publish(ctx context.Context, jobID, event string, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"event":     event,
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for k, v := range extra {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := r.client.Publish(ctx, r.eventsChannel(), data).Err(); err != nil {
		r.logger.Debug("Failed to publish progress event", "job_id", jobID, "event", event, "error", err)
	}
}

func parseHash(jobID string, fields map[string]string) *JobProgress {
	p := &JobProgress{
		JobID:  jobID,
		Status: Status(fields["status"]),
		Stage:  fields["stage"],
		Error:  fields["error"],
	}
	p.Progress, _ = strconv.ParseFloat(fields["progress"], 64)
	p.Page, _ = strconv.Atoi(fields["page"])
	p.TotalPages, _ = strconv.Atoi(fields["totalPages"])
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updatedAt"])
	return p
}
