package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRetention is how long a job's log survives after its last append.
const DefaultRetention = 24 * time.Hour

// RedisStore keeps each job's events in a Redis list under job:{id}:events.
// Appends refresh the retention TTL, so the clock runs from the last write.
type RedisStore struct {
	rdb       redis.UniversalClient
	retention time.Duration
}

// NewRedisStore creates a RedisStore with the default 24h retention.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb, retention: DefaultRetention}
}

// NewRedisStoreWithRetention creates a RedisStore with a custom retention.
func NewRedisStoreWithRetention(rdb redis.UniversalClient, retention time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, retention: retention}
}

func eventsKey(jobID string) string {
	return fmt.Sprintf("job:%s:events", jobID)
}

func (s *RedisStore) Append(ctx context.Context, jobID string, body json.RawMessage) (int64, error) {
	key := eventsKey(jobID)
	pipe := s.rdb.TxPipeline()
	push := pipe.RPush(ctx, key, []byte(body))
	pipe.Expire(ctx, key, s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("append event for job %s: %w", jobID, err)
	}
	// RPush returns the new list length; the appended index is length-1.
	return push.Val() - 1, nil
}

func (s *RedisStore) Range(ctx context.Context, jobID string, from int64) ([]Event, error) {
	raw, err := s.rdb.LRange(ctx, eventsKey(jobID), from, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("range events for job %s: %w", jobID, err)
	}
	events := make([]Event, 0, len(raw))
	for i, body := range raw {
		events = append(events, Event{Seq: from + int64(i), Body: json.RawMessage(body)})
	}
	return events, nil
}

func (s *RedisStore) Len(ctx context.Context, jobID string) (int64, error) {
	n, err := s.rdb.LLen(ctx, eventsKey(jobID)).Result()
	if err != nil {
		return 0, fmt.Errorf("len events for job %s: %w", jobID, err)
	}
	return n, nil
}

func (s *RedisStore) Clear(ctx context.Context, jobID string) error {
	if err := s.rdb.Del(ctx, eventsKey(jobID)).Err(); err != nil {
		return fmt.Errorf("clear events for job %s: %w", jobID, err)
	}
	return nil
}
