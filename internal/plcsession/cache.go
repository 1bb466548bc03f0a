package plcsession

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"s7gateway/internal/codec"
	"s7gateway/internal/metrics"
)

const realEpsilon = 1e-6

// cacheKey identifies a single addressable location: (db_number,
// offset, size, bit_address|none), matching spec.md §3's cache entry
// key exactly.
type cacheKey struct {
	db     int
	offset int
	size   int
	bit    int
	hasBit bool
}

func (k cacheKey) String() string {
	if k.hasBit {
		return fmt.Sprintf("%d_%d_%d_%d", k.db, k.offset, k.size, k.bit)
	}
	return fmt.Sprintf("%d_%d_%d_none", k.db, k.offset, k.size)
}

func keyFor(d codec.Descriptor, size int) cacheKey {
	k := cacheKey{db: d.DBNumber, offset: d.Offset, size: size}
	if d.HasBitPos {
		k.bit = d.BitPos
		k.hasBit = true
	}
	return k
}

// entry is the per-location debounce state. It keeps two slots —
// reported (what callers currently see) and candidate (a raw value
// that has started to recur but hasn't yet reached the confirmation
// threshold) — which is the clean realization of the "promote after N
// consecutive matches of the new value" semantics spec.md §9 notes a
// single-slot cache can't express.
type entry struct {
	lastObserved   time.Time
	reported       interface{}
	reportedCount  int
	candidate      interface{}
	candidateCount int
}

type debounceCache struct {
	mu               sync.Mutex
	entries          map[cacheKey]*entry
	cacheTime        time.Duration
	consecutiveReads int
	maxEntries       int
}

func newDebounceCache(cacheTime time.Duration, consecutiveReads, maxEntries int) *debounceCache {
	return &debounceCache{
		entries:          make(map[cacheKey]*entry),
		cacheTime:        cacheTime,
		consecutiveReads: consecutiveReads,
		maxEntries:       maxEntries,
	}
}

// fresh returns the currently reported value for key without touching
// the wire, iff an entry exists and is younger than cacheTime.
func (c *debounceCache) fresh(key cacheKey, now time.Time) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.Sub(e.lastObserved) < c.cacheTime {
		return e.reported, true
	}
	return nil, false
}

func valuesEqual(a, b interface{}) bool {
	if af, ok := a.(float32); ok {
		if bf, ok := b.(float32); ok {
			d := af - bf
			if d < 0 {
				d = -d
			}
			return d <= realEpsilon
		}
	}
	return a == b
}

// observe folds a fresh wire reading into the cache and returns the
// value that should be surfaced to the caller, applying the
// debounce/confirmation policy from spec.md §4.2.
func (c *debounceCache) observe(key cacheKey, raw interface{}, now time.Time) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry{lastObserved: now, reported: raw, reportedCount: 1}
		c.entries[key] = e
		c.evictLocked(now)
		return e.reported
	}

	e.lastObserved = now

	if valuesEqual(raw, e.reported) {
		e.reportedCount++
		e.candidate = nil
		e.candidateCount = 0
		c.evictLocked(now)
		return e.reported
	}

	if e.candidate == nil || !valuesEqual(raw, e.candidate) {
		e.candidate = raw
		e.candidateCount = 1
	} else {
		e.candidateCount++
	}

	if e.candidateCount >= c.consecutiveReads {
		e.reported = e.candidate
		e.reportedCount = e.candidateCount
		e.candidate = nil
		e.candidateCount = 0
		metrics.RecordCachePromotion()
	}

	c.evictLocked(now)
	return e.reported
}

// invalidate drops the exact-match cache entry for key, used after a
// typed write to the same location (spec.md §4.2 "Writes").
func (c *debounceCache) invalidate(key cacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// invalidatePrefix drops every cache entry addressing the same
// (db_number, offset) regardless of size/bit, used after a raw write
// whose span may straddle several typed entries (original_source
// plc.py's plc_write does the same prefix sweep).
func (c *debounceCache) invalidatePrefix(db, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.db == db && k.offset == offset {
			delete(c.entries, k)
		}
	}
}

// evictLocked discards entries older than 10x cache_time, then trims
// to max_entries most-recently-observed if still too large. Caller
// must hold c.mu.
func (c *debounceCache) evictLocked(now time.Time) {
	timeout := c.cacheTime * 10
	for k, e := range c.entries {
		if now.Sub(e.lastObserved) >= timeout {
			delete(c.entries, k)
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}
	type kv struct {
		key cacheKey
		at  time.Time
	}
	all := make([]kv, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, kv{k, e.lastObserved})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	drop := len(all) - c.maxEntries
	for i := 0; i < drop; i++ {
		delete(c.entries, all[i].key)
	}
}

func (c *debounceCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
