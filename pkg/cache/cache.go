// Package cache provides an in-memory cache for materialized query results.
//
// Entries hold retained Arrow record batches. The cache owns one reference
// per stored batch; Get takes an additional reference on behalf of the
// caller, so a cached result and a returned result release independently.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
)

// Result is a materialized query result: the schema plus the record batches
// holding the rows.
type Result struct {
	Schema  *arrow.Schema
	Records []arrow.Record
}

// Cache stores query results under string keys.
type Cache interface {
	// Get returns the result stored under key. The returned batches are
	// retained for the caller; release them when done.
	Get(key string) (Result, bool)
	// Put stores a result under key, retaining every batch. The caller
	// keeps its own references.
	Put(key string, res Result)
	// Delete drops the entry under key, releasing its batches.
	Delete(key string)
	// Close releases every cached batch.
	Close() error
}

// Key builds a cache key from a query and the qualifiers that change its
// result, such as time-range bounds.
func Key(query string, qualifiers ...string) string {
	parts := append([]string{query}, qualifiers...)
	return strings.Join(parts, "\x1f")
}

type entry struct {
	res      Result
	size     int64
	storedAt time.Time
	lastUsed time.Time
}

// ResultCache is a byte-bounded in-memory Cache with TTL expiry and
// least-recently-used eviction. Safe for concurrent use.
type ResultCache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	maxBytes int64
	ttl      time.Duration
	curBytes int64
	stats    StatsCollector
	now      func() time.Time
}

var _ Cache = (*ResultCache)(nil)

// NewResultCache creates a cache that retains at most maxBytes of batch
// memory and expires entries ttl after they were stored. maxBytes <= 0
// removes the byte budget; ttl <= 0 disables expiry.
func NewResultCache(maxBytes int64, ttl time.Duration) *ResultCache {
	return &ResultCache{
		entries:  make(map[string]*entry),
		maxBytes: maxBytes,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the result stored under key, or false when the key is absent
// or the entry has expired. The returned batches are retained for the
// caller.
func (c *ResultCache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.RecordMiss()
		return Result{}, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		c.removeLocked(key, e)
		c.stats.RecordMiss()
		return Result{}, false
	}
	e.lastUsed = c.now()
	for _, rec := range e.res.Records {
		rec.Retain()
	}
	c.stats.RecordHit()
	return Result{
		Schema:  e.res.Schema,
		Records: append([]arrow.Record(nil), e.res.Records...),
	}, true
}

// Put stores a result under key, retaining every batch. A result larger
// than the byte budget is not stored; an existing entry under the same key
// is replaced. Older entries are evicted until the new one fits.
func (c *ResultCache) Put(key string, res Result) {
	size := resultSize(res)
	if c.maxBytes > 0 && size > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	}
	for c.maxBytes > 0 && c.curBytes+size > c.maxBytes {
		if !c.evictOldestLocked() {
			break
		}
	}

	for _, rec := range res.Records {
		rec.Retain()
	}
	now := c.now()
	c.entries[key] = &entry{
		res: Result{
			Schema:  res.Schema,
			Records: append([]arrow.Record(nil), res.Records...),
		},
		size:     size,
		storedAt: now,
		lastUsed: now,
	}
	c.curBytes += size
	c.stats.UpdateSize(c.curBytes)
}

// Delete drops the entry under key, releasing its batches.
func (c *ResultCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}

// Clear drops every entry, releasing all cached batches.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		c.removeLocked(key, e)
	}
}

// Close releases every cached batch.
func (c *ResultCache) Close() error {
	c.Clear()
	return nil
}

// Len returns the number of live entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of hit, miss and eviction counters.
func (c *ResultCache) Stats() Stats {
	return c.stats.Snapshot()
}

// evictOldestLocked removes the least recently used entry. Reports false
// when the cache is already empty.
func (c *ResultCache) evictOldestLocked() bool {
	var oldestKey string
	var oldestTime time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.lastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastUsed
		}
	}
	if oldestKey == "" {
		return false
	}
	c.removeLocked(oldestKey, c.entries[oldestKey])
	c.stats.RecordEviction()
	return true
}

func (c *ResultCache) removeLocked(key string, e *entry) {
	for _, rec := range e.res.Records {
		rec.Release()
	}
	c.curBytes -= e.size
	delete(c.entries, key)
	c.stats.UpdateSize(c.curBytes)
}

// resultSize sums the buffer bytes a result pins, including nested arrays.
func resultSize(res Result) int64 {
	var n int64
	for _, rec := range res.Records {
		for _, col := range rec.Columns() {
			n += dataSize(col.Data())
		}
	}
	return n
}

func dataSize(d arrow.ArrayData) int64 {
	var n int64
	for _, buf := range d.Buffers() {
		if buf != nil {
			n += int64(buf.Len())
		}
	}
	for _, child := range d.Children() {
		n += dataSize(child)
	}
	return n
}
