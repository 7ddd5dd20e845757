package jobqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue for tests and single-process runs.
type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]*memoryJob
	pending chan string
	now     func() time.Time
}

type memoryJob struct {
	payload json.RawMessage
	status  JobStatus
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:    make(map[string]*memoryJob),
		pending: make(chan string, 1024),
		now:     time.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string, payload json.RawMessage) (string, error) {
	if jobID == "" {
		jobID = uuid.New().String()
	}
	stored := make(json.RawMessage, len(payload))
	copy(stored, payload)

	now := q.now().UTC()
	q.mu.Lock()
	q.jobs[jobID] = &memoryJob{
		payload: stored,
		status: JobStatus{
			JobID:      jobID,
			Status:     StatusQueued,
			EnqueuedAt: &now,
		},
	}
	q.mu.Unlock()

	select {
	case q.pending <- jobID:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return jobID, nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case jobID := <-q.pending:
		q.mu.Lock()
		defer q.mu.Unlock()
		job, ok := q.jobs[jobID]
		if !ok {
			return nil, nil
		}
		return &Job{ID: jobID, Payload: job.payload}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := job.status
	return &snapshot, nil
}

func (q *MemoryQueue) MarkStarted(ctx context.Context, jobID string) error {
	return q.update(jobID, func(s *JobStatus) {
		now := q.now().UTC()
		s.Status = StatusStarted
		s.StartedAt = &now
	})
}

func (q *MemoryQueue) MarkFinished(ctx context.Context, jobID string) error {
	return q.update(jobID, func(s *JobStatus) {
		now := q.now().UTC()
		s.Status = StatusFinished
		s.EndedAt = &now
	})
}

func (q *MemoryQueue) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	return q.update(jobID, func(s *JobStatus) {
		now := q.now().UTC()
		s.Status = StatusFailed
		s.EndedAt = &now
		s.Error = errMsg
	})
}

func (q *MemoryQueue) update(jobID string, fn func(*JobStatus)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	fn(&job.status)
	return nil
}

// MemoryResultStore is an in-process ResultStore.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string]json.RawMessage
}

// NewMemoryResultStore creates an empty MemoryResultStore.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{results: make(map[string]json.RawMessage)}
}

func (s *MemoryResultStore) SetResult(ctx context.Context, jobID string, data json.RawMessage) error {
	stored := make(json.RawMessage, len(data))
	copy(stored, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[jobID] = stored
	return nil
}

func (s *MemoryResultStore) GetResult(ctx context.Context, jobID string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.results[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}
