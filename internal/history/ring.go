// Package history keeps a bounded in-memory record of recent refresh cycles.
// Nothing is persisted.
package history

import (
	"sync"
	"time"
)

// Cycle is the outcome of one fetch, aggregate and render pass.
type Cycle struct {
	Seq          uint64        `json:"seq"`
	Trigger      string        `json:"trigger"`
	Start        time.Time     `json:"start"`
	Duration     time.Duration `json:"duration_ns"`
	Records      int           `json:"records"`
	Logs         int           `json:"logs"`
	StatsErr     string        `json:"stats_error,omitempty"`
	LogsErr      string        `json:"logs_error,omitempty"`
	StatsApplied bool          `json:"stats_applied"`
	LogsApplied  bool          `json:"logs_applied"`
}

// Failed reports whether either fetch part failed.
func (c Cycle) Failed() bool {
	return c.StatsErr != "" || c.LogsErr != ""
}

// Ring is a fixed-size circular buffer of cycles, safe for concurrent use.
type Ring struct {
	mu     sync.RWMutex
	cycles []Cycle
	size   int
	head   int // next write position
	count  int
}

// NewRing creates a ring holding up to size cycles. Size is at least 1.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{
		cycles: make([]Cycle, size),
		size:   size,
	}
}

// Add stores c, overwriting the oldest entry when full.
func (r *Ring) Add(c Cycle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cycles[r.head] = c
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// Recent returns up to n cycles, most recently added first. n <= 0 means all.
func (r *Ring) Recent(n int) []Cycle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Cycle, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + r.size) % r.size
		out = append(out, r.cycles[idx])
	}
	return out
}

// Len is the number of stored cycles.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// LastSuccess returns the most recent cycle with no failed part.
func (r *Ring) LastSuccess() (Cycle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 0; i < r.count; i++ {
		c := r.cycles[(r.head-1-i+r.size)%r.size]
		if !c.Failed() {
			return c, true
		}
	}
	return Cycle{}, false
}
