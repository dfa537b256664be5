// Package cache stores rendered search results for a bounded time
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrMiss is returned by Get when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// Cache stores byte values under string keys with a TTL
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value for ttl. A zero ttl uses the cache default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key written through this cache
	Clear(ctx context.Context) error
}

// Config holds settings shared by the cache stores
type Config struct {
	DefaultTTL time.Duration
	// Prefix is prepended to every key
	Prefix string
}

// DefaultConfig keeps results for one minute
func DefaultConfig() Config {
	return Config{
		DefaultTTL: time.Minute,
		Prefix:     "searchy:cache:",
	}
}

func (c Config) ttl(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return c.DefaultTTL
	}
	return ttl
}

// Key derives a fixed-length key from the parts identifying a search
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
