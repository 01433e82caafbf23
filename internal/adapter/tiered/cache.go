// Package tiered layers an in-process cache over a shared remote one.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/tcof/internal/port/cache"
	"github.com/Strob0t/tcof/internal/resilience"
)

// Cache reads L1 first and falls back to L2, copying L2 hits into L1.
// Writes go to both levels. L1 entries never outlive l1Expire, so an
// instance picks up changes other instances made in L2 within that window.
//
// L2 is reached through an optional circuit breaker and its failures are
// logged, never returned: a broken L2 leaves the cache running on L1 alone.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
	breaker  *resilience.Breaker
}

// New creates a tiered cache. l1Expire <= 0 lets L1 entries keep the TTL
// they were written with. breaker may be nil.
func New(l1, l2 cache.Cache, l1Expire time.Duration, breaker *resilience.Breaker) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire, breaker: breaker}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil || found {
		return val, found, err
	}

	err = c.remote(ctx, "get", key, func() error {
		var l2err error
		val, found, l2err = c.l2.Get(ctx, key)
		return l2err
	})
	if err != nil || !found {
		return nil, false, nil
	}
	if err := c.l1.Set(ctx, key, val, c.localTTL(0)); err != nil {
		slog.WarnContext(ctx, "l1 cache backfill failed", "key", key, "error", err)
	}
	return val, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, c.localTTL(ttl)); err != nil {
		return err
	}
	_ = c.remote(ctx, "set", key, func() error { return c.l2.Set(ctx, key, value, ttl) })
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	_ = c.remote(ctx, "delete", key, func() error { return c.l2.Delete(ctx, key) })
	return nil
}

// localTTL caps ttl at l1Expire. A zero ttl means no expiry.
func (c *Cache) localTTL(ttl time.Duration) time.Duration {
	if c.l1Expire <= 0 {
		return ttl
	}
	if ttl == 0 || ttl > c.l1Expire {
		return c.l1Expire
	}
	return ttl
}

func (c *Cache) remote(ctx context.Context, op, key string, fn func() error) error {
	var err error
	if c.breaker == nil {
		err = fn()
	} else {
		err = c.breaker.Execute(fn)
	}
	if err != nil {
		slog.WarnContext(ctx, "l2 cache "+op+" failed", "key", key, "error", err)
	}
	return err
}
