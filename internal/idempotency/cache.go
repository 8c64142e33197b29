// Package idempotency deduplicates retried mutating commands by requestId.
package idempotency

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL bounds how long a cached response is replayed for retries.
	DefaultTTL = 60 * time.Second

	defaultSize = 4096
)

// Cache is a TTL-bounded idempotency store keyed by "<op>:<requestId>".
// A retried call with a known key replays the original response without
// re-executing; concurrent calls with the same key share one execution.
type Cache struct {
	lru   *expirable.LRU[string, any]
	group singleflight.Group
}

// New creates a Cache with the given TTL. A non-positive ttl uses DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		lru: expirable.NewLRU[string, any](defaultSize, nil, ttl),
	}
}

// Do executes fn at most once per (op, requestID) within the TTL window and
// returns the (possibly cached) response. An empty requestID disables
// deduplication. Errors from fn are never cached; callers encode domain
// failures in the response payload so they replay like successes.
func (c *Cache) Do(op, requestID string, fn func() (any, error)) (any, error) {
	if requestID == "" {
		return fn()
	}

	key := op + ":" + requestID
	if resp, ok := c.lru.Get(key); ok {
		return resp, nil
	}

	resp, err, _ := c.group.Do(key, func() (any, error) {
		if resp, ok := c.lru.Get(key); ok {
			return resp, nil
		}
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, resp)
		return resp, nil
	})
	return resp, err
}

// Len returns the number of live entries, for readiness reporting.
func (c *Cache) Len() int {
	return c.lru.Len()
}
