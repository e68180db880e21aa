// Package cache provides the key/value collaborator used for the snapshot
// entry, read-through query results and request rate limiting.
package cache

import (
	"context"
	"time"
)

// Cache is a string key/value store with per-key expiry.
// A ttl of zero means no expiry.
type Cache interface {
	// Get returns the value for key. ok is false when the key is absent or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeleteByPattern removes every key matching a glob pattern ("*", "?", "[...]").
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
	// IncrementWithExpiry increments a counter and starts its ttl on first use.
	IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Close() error
}

// Key prefixes shared by cache users.
const (
	PrefixSnapshot  = "tokens:snapshot"
	PrefixQuery     = "tokens:query:"
	PrefixToken     = "tokens:detail:"
	PrefixRateLimit = "ratelimit:"
)
