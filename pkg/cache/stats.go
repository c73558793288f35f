package cache

import "sync/atomic"

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Bytes     int64
}

// StatsCollector accumulates cache counters. All methods are safe for
// concurrent use.
type StatsCollector struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	bytes     atomic.Int64
}

// RecordHit records a lookup served from the cache.
func (s *StatsCollector) RecordHit() { s.hits.Add(1) }

// RecordMiss records a lookup that found nothing usable.
func (s *StatsCollector) RecordMiss() { s.misses.Add(1) }

// RecordEviction records an entry pushed out by the byte budget.
func (s *StatsCollector) RecordEviction() { s.evictions.Add(1) }

// UpdateSize records the bytes currently pinned by cached entries.
func (s *StatsCollector) UpdateSize(n int64) { s.bytes.Store(n) }

// Snapshot returns the current counter values.
func (s *StatsCollector) Snapshot() Stats {
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
		Bytes:     s.bytes.Load(),
	}
}

// HitRate returns the fraction of lookups served from the cache.
func (s *StatsCollector) HitRate() float64 {
	hits := s.hits.Load()
	total := hits + s.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
