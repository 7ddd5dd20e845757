// Package jobqueue provides the background job queue for asynchronous
// extraction: enqueueing jobs, tracking their status transitions, running
// workers over them, and storing final results. Job metadata and results
// share the event log's 24h retention.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// IsTerminal reports whether the job is done, successfully or not.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Job is one unit of queued work.
type Job struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// JobStatus is a job's current lifecycle snapshot.
type JobStatus struct {
	JobID      string     `json:"job_id"`
	Status     Status     `json:"status"`
	EnqueuedAt *time.Time `json:"enqueued_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ErrNotFound is returned for jobs the queue has never seen or has expired.
var ErrNotFound = errors.New("jobqueue: job not found")

// Queue enqueues jobs, hands them to workers, and tracks their lifecycle.
type Queue interface {
	// Enqueue adds a job and returns its ID. An empty jobID gets a generated
	// UUID.
	Enqueue(ctx context.Context, jobID string, payload json.RawMessage) (string, error)
	// Dequeue blocks up to timeout for the next job. It returns (nil, nil)
	// when the timeout elapses with nothing queued.
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	// Status returns the job's lifecycle snapshot, or ErrNotFound.
	Status(ctx context.Context, jobID string) (*JobStatus, error)

	MarkStarted(ctx context.Context, jobID string) error
	MarkFinished(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// ResultStore persists each job's final extraction result.
type ResultStore interface {
	// SetResult stores the result document for a job.
	SetResult(ctx context.Context, jobID string, data json.RawMessage) error
	// GetResult returns the stored result, or ErrNotFound.
	GetResult(ctx context.Context, jobID string) (json.RawMessage, error)
}
