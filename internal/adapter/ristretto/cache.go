// Package ristretto is the in-process L1 implementation of the cache port.
package ristretto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// avgEntrySize sizes the admission counters; catalog snapshots and stored
// idempotent responses are typically a few KiB.
const avgEntrySize = 1 << 10

// Cache is a cost-bounded, TTL-aware byte cache. Values are copied on the
// way in so callers may reuse their buffers.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a Cache holding at most maxSizeMB megabytes of values.
func New(maxSizeMB int64) (*Cache, error) {
	if maxSizeMB < 1 {
		return nil, errors.New("ristretto: size must be at least 1 MB")
	}
	maxCost := maxSizeMB << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(10*maxCost/avgEntrySize, 1000),
		MaxCost:     maxCost,
		BufferItems: 64,
		Cost:        func(v []byte) int64 { return int64(len(v)) },
	})
	if err != nil {
		return nil, fmt.Errorf("ristretto: %w", err)
	}
	return &Cache{c: c}, nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.c.Get(key)
	return v, ok, nil
}

// Set stores value for ttl (zero means no expiry) and returns once the
// write is visible. A negative ttl removes the key.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		c.c.Del(key)
		return nil
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	c.c.SetWithTTL(key, buf, 0, ttl)
	c.c.Wait()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close stops the background goroutines of the cache.
func (c *Cache) Close() {
	c.c.Close()
}
