package etagcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"PaperTriage/internal/ports"
)

const keyPrefix = "papertriage:etag:"

// Redis persists ETags across runs. Keys carry no TTL; entries leave only
// through InvalidatePrefix.
type Redis struct {
	client *redis.Client
}

var _ ports.ETagCache = (*Redis)(nil)

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// NewRedisFromURL parses a redis:// URL.
func NewRedisFromURL(rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get returns the entry for signature.
func (r *Redis) Get(ctx context.Context, signature string) (ports.ETagEntry, bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+signature).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.ETagEntry{}, false, nil
	}
	if err != nil {
		return ports.ETagEntry{}, false, fmt.Errorf("get etag: %w", err)
	}

	var entry ports.ETagEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return ports.ETagEntry{}, false, fmt.Errorf("decode etag: %w", err)
	}
	return entry, true, nil
}

// Put records an entry without expiry.
func (r *Redis) Put(ctx context.Context, signature string, entry ports.ETagEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode etag: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+signature, raw, 0).Err(); err != nil {
		return fmt.Errorf("set etag: %w", err)
	}
	return nil
}

// InvalidatePrefix scans and deletes every key under prefix.
func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	pattern := keyPrefix + escapeGlob(prefix) + "*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("scan etags: %w", err)
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("delete etags: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
