// Package memory implements the bounded, expiring response cache for chat
// answers on top of hashicorp/golang-lru's expirable LRU.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/nutriempower/nutriempower/pkg/models"
)

// DefaultTTL applies when New is given a non-positive ttl.
const DefaultTTL = 15 * time.Minute

// Cache maps a request key to a generated response.
//
// Neither reads nor repeated writes move an entry, so eviction beyond the
// bound always drops the entry inserted first, and an entry expires ttl after
// its first insert. Expired entries miss on read and are dropped by the LRU's
// own sweep. That sweep runs on a goroutine that lives as long as the
// process, so a Cache is meant to be created once and shared.
type Cache struct {
	lru *expirable.LRU[string, *entry]
	ttl time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	// OnHit, OnMiss and OnEvict are optional hooks for metrics.
	OnHit   func()
	OnMiss  func()
	OnEvict func()
}

type entry struct {
	value atomic.Pointer[string]
}

func newEntry(value string) *entry {
	e := &entry{}
	e.value.Store(&value)
	return e
}

// New creates a cache holding at most maxEntries responses, each living for
// ttl after it was stored. maxEntries below 1 is treated as 1 and a ttl of
// zero or less as DefaultTTL.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{ttl: ttl}
	c.lru = expirable.NewLRU[string, *entry](maxEntries, c.evicted, ttl)
	return c
}

// TTL returns the lifetime given to each entry.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) evicted(_ string, _ *entry) {
	c.evictions.Add(1)
	if c.OnEvict != nil {
		c.OnEvict()
	}
}

// Get returns the cached response for key if it is present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	e, ok := c.lru.Peek(key)
	if ok {
		c.hits.Add(1)
		if c.OnHit != nil {
			c.OnHit()
		}
		return *e.value.Load(), true
	}
	c.misses.Add(1)
	if c.OnMiss != nil {
		c.OnMiss()
	}
	return "", false
}

// Set stores value under key. A live entry for key gets the new value in
// place and keeps both its position and its original expiry.
func (c *Cache) Set(key, value string) {
	if e, ok := c.lru.Peek(key); ok {
		e.value.Store(&value)
		return
	}
	c.lru.Add(key, newEntry(value))
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Keys returns the unexpired keys from oldest to newest.
func (c *Cache) Keys() []string {
	return c.lru.Keys()
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Stats reports the cache counters.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries:   int64(c.lru.Len()),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Key derives the cache key for a question and its serialized context.
func Key(message, contextJSON string) string {
	h := sha256.Sum256([]byte(message + contextJSON))
	return hex.EncodeToString(h[:])
}
