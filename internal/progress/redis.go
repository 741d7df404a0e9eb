package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares progress between devices through Redis. Values are JSON.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires records after ttl. Zero keeps them forever, which is the default.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix. Default is "readaloud".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "readaloud",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Save writes the chapter record, the per-book latest pointer and the global
// latest pointer in one round-trip.
func (s *RedisStore) Save(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = stamp(r)

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.chapterKey(r.BookID, r.ChapterID), data, s.ttl)
	pipe.Set(ctx, s.bookKey(r.BookID), data, s.ttl)
	pipe.Set(ctx, s.lastKey(), data, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, bookID, chapterID string) (*Record, error) {
	key := s.bookKey(bookID)
	if chapterID != "" {
		key = s.chapterKey(bookID, chapterID)
	}
	var r Record
	if err := s.get(ctx, key, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RedisStore) Last(ctx context.Context) (*Record, error) {
	var r Record
	if err := s.get(ctx, s.lastKey(), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *RedisStore) SavePreferences(ctx context.Context, p Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := s.client.Set(ctx, s.preferencesKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadPreferences(ctx context.Context) (*Preferences, error) {
	var p Preferences
	if err := s.get(ctx, s.preferencesKey(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) get(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) chapterKey(bookID, chapterID string) string {
	return fmt.Sprintf("%s:progress:%s:%s", s.prefix, bookID, chapterID)
}

func (s *RedisStore) bookKey(bookID string) string {
	return fmt.Sprintf("%s:latest:%s", s.prefix, bookID)
}

func (s *RedisStore) lastKey() string {
	return s.prefix + ":last"
}

func (s *RedisStore) preferencesKey() string {
	return s.prefix + ":prefs"
}
