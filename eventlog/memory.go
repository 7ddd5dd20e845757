package eventlog

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by the synchronous extraction path
// and by tests. It honors the same retention contract as the Redis store:
// a job's log expires a fixed duration after its last append.
type MemoryStore struct {
	mu        sync.RWMutex
	logs      map[string]*memoryLog
	retention time.Duration
	now       func() time.Time
}

type memoryLog struct {
	bodies    []json.RawMessage
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore with the default 24h retention.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs:      make(map[string]*memoryLog),
		retention: DefaultRetention,
		now:       time.Now,
	}
}

func (s *MemoryStore) live(jobID string) *memoryLog {
	log, ok := s.logs[jobID]
	if !ok {
		return nil
	}
	if s.now().After(log.expiresAt) {
		delete(s.logs, jobID)
		return nil
	}
	return log
}

func (s *MemoryStore) Append(ctx context.Context, jobID string, body json.RawMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.live(jobID)
	if log == nil {
		log = &memoryLog{}
		s.logs[jobID] = log
	}
	// Copy: callers may reuse the buffer behind the RawMessage.
	stored := make(json.RawMessage, len(body))
	copy(stored, body)
	log.bodies = append(log.bodies, stored)
	log.expiresAt = s.now().Add(s.retention)
	return int64(len(log.bodies) - 1), nil
}

func (s *MemoryStore) Range(ctx context.Context, jobID string, from int64) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.live(jobID)
	if log == nil {
		return nil, nil
	}
	if from < 0 {
		from = 0
	}
	if from >= int64(len(log.bodies)) {
		return []Event{}, nil
	}
	events := make([]Event, 0, int64(len(log.bodies))-from)
	for i := from; i < int64(len(log.bodies)); i++ {
		events = append(events, Event{Seq: i, Body: log.bodies[i]})
	}
	return events, nil
}

func (s *MemoryStore) Len(ctx context.Context, jobID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.live(jobID)
	if log == nil {
		return 0, nil
	}
	return int64(len(log.bodies)), nil
}

func (s *MemoryStore) Clear(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, jobID)
	return nil
}
