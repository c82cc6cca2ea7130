package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore keeps each run as a Redis list of JSON entries plus a sorted
// set index of run IDs scored by first-seen time.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration

	mu     sync.RWMutex
	closed bool
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix. Default "stategraph:".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTTL expires a run's entries after ttl of inactivity. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore wraps an existing client. The caller owns the client.
func NewRedisStore(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "stategraph:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenRedis connects to the Redis server described by a redis:// URL.
func OpenRedis(ctx context.Context, url string, opts ...RedisOption) (*RedisStore, error) {
	o, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := backend.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client, opts...), nil
}

func (s *RedisStore) runKey(runID string) string { return s.prefix + "run:" + runID }
func (s *RedisStore) indexKey() string          { return s.prefix + "runs" }

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, e Entry) error {
	e, err := prepare(e)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.runKey(e.RunID), data)
	pipe.ZAddNX(ctx, s.indexKey(), backend.Z{
		Score:  float64(e.Timestamp.UnixNano()),
		Member: e.RunID,
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.runKey(e.RunID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Entries implements Store.
func (s *RedisStore) Entries(ctx context.Context, runID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	raw, err := s.client.LRange(ctx, s.runKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Runs implements Store. Runs whose entries have expired are pruned from the index.
func (s *RedisStore) Runs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if s.ttl <= 0 {
		return ids, nil
	}

	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.runKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("check run %s: %w", id, err)
		}
		if n == 0 {
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// Close implements Store. The underlying client is left open.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
