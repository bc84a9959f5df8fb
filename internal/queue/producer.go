package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Producer enqueues conversion jobs
type Producer struct {
	client    *asynq.Client
	queueName string
}

// NewProducer creates a producer for queueName
func NewProducer(redisURL, queueName string) (*Producer, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Producer{client: asynq.NewClient(redisOpt), queueName: queueName}, nil
}

// EnqueueConversion submits a job. The task id is the job id, so a job
// cannot be queued twice while it is pending.
func (p *Producer) EnqueueConversion(ctx context.Context, job *JobData, timeout time.Duration) (*asynq.TaskInfo, error) {
	opts := []asynq.Option{
		asynq.Queue(p.queueName),
		asynq.TaskID(job.JobID),
		asynq.MaxRetry(3),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	task, err := NewConvertTask(job, opts...)
	if err != nil {
		return nil, err
	}
	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", job.JobID, err)
	}
	return info, nil
}

// Close closes the underlying client
func (p *Producer) Close() error {
	return p.client.Close()
}
