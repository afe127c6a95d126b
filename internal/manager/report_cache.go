// Package manager holds long-lived process resources shared by transports.
package manager

import (
	"strings"
	"sync/atomic"

	"github.com/duynguyendang/vultester/pkg/engine"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// CacheStats is a snapshot of cache activity.
type CacheStats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// ReportCache keeps recent run results. Runs are deterministic for a given
// method and ordered fact list, so a finished result can be served again.
// Results are shared between callers and must not be mutated.
type ReportCache struct {
	reports  *lru.Cache[string, *engine.Result]
	flights  singleflight.Group
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewReportCache creates a cache holding up to size results. A size of zero
// or less disables caching.
func NewReportCache(size int) *ReportCache {
	c := &ReportCache{capacity: max(size, 0)}
	if size <= 0 {
		return c
	}
	// Only fails for a non-positive size.
	c.reports, _ = lru.NewWithEvict[string, *engine.Result](size, func(string, *engine.Result) {
		c.evictions.Add(1)
	})
	return c
}

// Key identifies a run. Fact order matters: it shapes the trace.
func Key(method engine.Method, facts []string) string {
	return string(method) + "\x00" + strings.Join(facts, "\x00")
}

// Enabled reports whether results are retained.
func (c *ReportCache) Enabled() bool {
	return c != nil && c.reports != nil
}

// GetOrCompute returns the cached result for the run or computes and stores
// it. Concurrent misses on the same key compute once; misses on different
// keys compute in parallel. The bool reports that this caller did not compute.
func (c *ReportCache) GetOrCompute(method engine.Method, facts []string, compute func() (*engine.Result, error)) (*engine.Result, bool, error) {
	if !c.Enabled() {
		res, err := compute()
		return res, false, err
	}

	key := Key(method, facts)
	// Fast path: lru.Get updates recency.
	if res, ok := c.reports.Get(key); ok {
		c.hits.Add(1)
		return res, true, nil
	}

	// Only the flight leader runs the closure, in its own goroutine.
	computed := false
	v, err, _ := c.flights.Do(key, func() (any, error) {
		// A previous flight may have finished since the fast path.
		if res, ok := c.reports.Get(key); ok {
			return res, nil
		}
		computed = true
		c.misses.Add(1)

		res, err := compute()
		if err != nil {
			return nil, err
		}
		c.reports.Add(key, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	if !computed {
		c.hits.Add(1)
	}
	return v.(*engine.Result), !computed, nil
}

// Stats returns current counters.
func (c *ReportCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	s := CacheStats{
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
	if c.reports != nil {
		s.Size = c.reports.Len()
	}
	return s
}
