// Package redis provides a Redis-backed storage.Backend and a Pub/Sub
// storage.Broadcaster, so tabs in different processes share one origin.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mmynk/mealsync/internal/storage"
)

// Ensure Store implements storage.Backend and storage.Broadcaster
var (
	_ storage.Backend     = (*Store)(nil)
	_ storage.Broadcaster = (*Store)(nil)
)

const (
	// DefaultPrefix namespaces every key this store writes.
	DefaultPrefix = "mealsync:kv:"

	// DefaultChannel carries change events between processes.
	DefaultChannel = "mealsync:changes"
)

// Store keeps values in Redis strings and broadcasts changes over Pub/Sub.
type Store struct {
	client   *goredis.Client
	prefix   string
	channel  string
	maxBytes int64
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithChannel overrides DefaultChannel.
func WithChannel(channel string) Option {
	return func(s *Store) { s.channel = channel }
}

// WithQuota caps the total size of stored keys plus values under the prefix.
// Writes past the cap fail with storage.ErrQuotaExceeded.
func WithQuota(maxBytes int64) Option {
	return func(s *Store) { s.maxBytes = maxBytes }
}

// WithLogger sets the logger used by the Pub/Sub listener.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New connects to redisURL and verifies the connection.
func New(ctx context.Context, redisURL string, opts ...Option) (*Store, error) {
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 4
	opt.MinIdleConns = 1
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	s := &Store{
		client:  client,
		prefix:  DefaultPrefix,
		channel: DefaultChannel,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return value, nil
}

// quotaSetScript sets KEYS[1] only when every other key under the prefix,
// plus the new entry, fits in the limit. Sizes count keys without the prefix.
var quotaSetScript = goredis.NewScript(`
	local key = KEYS[1]
	local value = ARGV[1]
	local limit = tonumber(ARGV[2])
	local pattern = ARGV[3]
	local prefixLen = tonumber(ARGV[4])

	local used = 0
	local cursor = "0"
	repeat
		local page = redis.call("SCAN", cursor, "MATCH", pattern, "COUNT", 100)
		cursor = page[1]
		for _, k in ipairs(page[2]) do
			if k ~= key then
				used = used + #k - prefixLen + redis.call("STRLEN", k)
			end
		end
	until cursor == "0"

	if used + #key - prefixLen + #value > limit then
		return 0
	end
	redis.call("SET", key, value)
	return 1
`)

// Set stores value under key with no expiry, enforcing the quota if one is
// configured.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if s.maxBytes <= 0 {
		if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
			return fmt.Errorf("redis set failed: %w", err)
		}
		return nil
	}

	stored, err := quotaSetScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		value, s.maxBytes, escapeGlob(s.prefix)+"*", len(s.prefix),
	).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		return fmt.Errorf("set %q (%d bytes, limit %d): %w", key, len(value), s.maxBytes, storage.ErrQuotaExceeded)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Keys lists keys with the given prefix, sorted.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, escapeGlob(s.prefix+prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	slices.Sort(keys)
	return keys, nil
}

// Publish sends c to every process listening on the channel.
func (s *Store) Publish(ctx context.Context, c storage.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// Listen subscribes to the channel and calls fn from a background goroutine
// for every change. stop closes the subscription and waits for the goroutine.
func (s *Store) Listen(fn func(storage.Change)) (stop func()) {
	sub := s.client.Subscribe(context.Background(), s.channel)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range sub.Channel() {
			var c storage.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				s.logger.Warn("Dropping malformed change event", "channel", msg.Channel, "error", err)
				continue
			}
			fn(c)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sub.Close(); err != nil {
				s.logger.Warn("Failed to close subscription", "error", err)
			}
			wg.Wait()
		})
	}
}

// escapeGlob escapes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
