package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRetention matches the event log: job state survives 24h.
	DefaultRetention = 24 * time.Hour

	queueKey = "queue:scrape"
)

func metaKey(jobID string) string   { return fmt.Sprintf("job:%s:meta", jobID) }
func resultKey(jobID string) string { return fmt.Sprintf("job:%s:result", jobID) }

// RedisQueue implements Queue on a Redis list plus a per-job metadata hash.
type RedisQueue struct {
	rdb       redis.UniversalClient
	retention time.Duration
	now       func() time.Time
}

// NewRedisQueue creates a RedisQueue with the default retention.
func NewRedisQueue(rdb redis.UniversalClient) *RedisQueue {
	return &RedisQueue{rdb: rdb, retention: DefaultRetention, now: time.Now}
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string, payload json.RawMessage) (string, error) {
	if jobID == "" {
		jobID = uuid.New().String()
	}

	meta := map[string]any{
		"status":      string(StatusQueued),
		"payload":     string(payload),
		"enqueued_at": q.now().UTC().Format(time.RFC3339Nano),
	}
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, metaKey(jobID), meta)
	pipe.Expire(ctx, metaKey(jobID), q.retention)
	pipe.LPush(ctx, queueKey, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return jobID, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	vals, err := q.rdb.BRPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	jobID := vals[1]

	payload, err := q.rdb.HGet(ctx, metaKey(jobID), "payload").Result()
	if errors.Is(err, redis.Nil) {
		// Metadata expired while queued; skip the orphan.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s payload: %w", jobID, err)
	}
	return &Job{ID: jobID, Payload: json.RawMessage(payload)}, nil
}

func (q *RedisQueue) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	meta, err := q.rdb.HGetAll(ctx, metaKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s status: %w", jobID, err)
	}
	if len(meta) == 0 {
		return nil, ErrNotFound
	}

	status := &JobStatus{
		JobID:      jobID,
		Status:     Status(meta["status"]),
		EnqueuedAt: parseTime(meta["enqueued_at"]),
		StartedAt:  parseTime(meta["started_at"]),
		EndedAt:    parseTime(meta["ended_at"]),
		Error:      meta["error"],
	}
	return status, nil
}

func (q *RedisQueue) MarkStarted(ctx context.Context, jobID string) error {
	return q.setMeta(ctx, jobID, map[string]any{
		"status":     string(StatusStarted),
		"started_at": q.now().UTC().Format(time.RFC3339Nano),
	})
}

func (q *RedisQueue) MarkFinished(ctx context.Context, jobID string) error {
	return q.setMeta(ctx, jobID, map[string]any{
		"status":   string(StatusFinished),
		"ended_at": q.now().UTC().Format(time.RFC3339Nano),
	})
}

func (q *RedisQueue) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	return q.setMeta(ctx, jobID, map[string]any{
		"status":   string(StatusFailed),
		"ended_at": q.now().UTC().Format(time.RFC3339Nano),
		"error":    errMsg,
	})
}

func (q *RedisQueue) setMeta(ctx context.Context, jobID string, fields map[string]any) error {
	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, metaKey(jobID), fields)
	pipe.Expire(ctx, metaKey(jobID), q.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	return nil
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

// RedisResultStore stores final results at job:{id}:result.
type RedisResultStore struct {
	rdb       redis.UniversalClient
	retention time.Duration
}

// NewRedisResultStore creates a RedisResultStore with the default retention.
func NewRedisResultStore(rdb redis.UniversalClient) *RedisResultStore {
	return &RedisResultStore{rdb: rdb, retention: DefaultRetention}
}

func (s *RedisResultStore) SetResult(ctx context.Context, jobID string, data json.RawMessage) error {
	if err := s.rdb.Set(ctx, resultKey(jobID), []byte(data), s.retention).Err(); err != nil {
		return fmt.Errorf("store result for job %s: %w", jobID, err)
	}
	return nil
}

func (s *RedisResultStore) GetResult(ctx context.Context, jobID string) (json.RawMessage, error) {
	raw, err := s.rdb.Get(ctx, resultKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load result for job %s: %w", jobID, err)
	}
	return json.RawMessage(raw), nil
}
