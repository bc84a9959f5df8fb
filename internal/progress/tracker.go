/**
 * Job progress tracking
 *
 * Tracks processing/completed/failed state and percent complete per job.
 * MemoryTracker serves the CLI and tests; RedisTracker shares state with
 * the API process and streams events over pub/sub.
 */

package progress

import (
	"context"
	stderrors "errors"
	"sync"
	"time"
)

// Status of a tracked job
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrNotFound is returned by Get for unknown jobs
var ErrNotFound = stderrors.New("job not found")

// JobProgress is the tracked state of one job
type JobProgress struct {
	JobID      string    `json:"jobId"`
	Status     Status    `json:"status"`
	Progress   float64   `json:"progress"`
	Stage      string    `json:"stage,omitempty"`
	Page       int       `json:"page,omitempty"`
	TotalPages int       `json:"totalPages,omitempty"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Tracker records job progress. Updates for jobs that were never started
// are ignored.
type Tracker interface {
	Start(ctx context.Context, jobID string) error
	Update(ctx context.Context, jobID string, percent float64, stage string, page, total int) error
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, reason string) error
	Get(ctx context.Context, jobID string) (*JobProgress, error)
	Remove(ctx context.Context, jobID string) error
}

// MemoryTracker keeps progress in process memory
type MemoryTracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobProgress
	now  func() time.Time
}

// NewMemoryTracker creates an empty in-memory tracker
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{jobs: make(map[string]*JobProgress), now: time.Now}
}

// Start implements Tracker
func (m *MemoryTracker) Start(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobID] = &JobProgress{JobID: jobID, Status: StatusProcessing, UpdatedAt: m.now()}
	return nil
}

// Update implements Tracker
func (m *MemoryTracker) Update(_ context.Context, jobID string, percent float64, stage string, page, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	job.Progress = Clamp(percent)
	job.Stage = stage
	job.Page = page
	job.TotalPages = total
	job.UpdatedAt = m.now()
	return nil
}

// Complete implements Tracker
func (m *MemoryTracker) Complete(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	job.Status = StatusCompleted
	job.Progress = 100
	job.UpdatedAt = m.now()
	return nil
}

// Fail implements Tracker
func (m *MemoryTracker) Fail(_ context.Context, jobID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	job.Status = StatusFailed
	job.Error = reason
	job.UpdatedAt = m.now()
	return nil
}

// Get returns a copy of the job's progress
func (m *MemoryTracker) Get(_ context.Context, jobID string) (*JobProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}

// Remove implements Tracker
func (m *MemoryTracker) Remove(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

// Clamp limits a percentage to [0,100]
func Clamp(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
