package stream

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	urlCacheTTL  = 2 * time.Hour
	urlCacheSize = 256
)

// urlCache memoizes extracted direct media URLs per track URL and seek
// offset. Entries expire after urlCacheTTL; the cache is size-bounded with
// oldest-first eviction. A 403 on fetch invalidates the entry.
type urlCache struct {
	lru *expirable.LRU[string, string]
}

func newURLCache() *urlCache {
	return &urlCache{
		lru: expirable.NewLRU[string, string](urlCacheSize, nil, urlCacheTTL),
	}
}

func cacheKey(trackURL string, seekSec float64) string {
	return fmt.Sprintf("%s|%d", trackURL, int(seekSec))
}

func (c *urlCache) get(trackURL string, seekSec float64) (string, bool) {
	return c.lru.Get(cacheKey(trackURL, seekSec))
}

func (c *urlCache) put(trackURL string, seekSec float64, mediaURL string) {
	c.lru.Add(cacheKey(trackURL, seekSec), mediaURL)
}

func (c *urlCache) invalidate(trackURL string, seekSec float64) {
	c.lru.Remove(cacheKey(trackURL, seekSec))
}
