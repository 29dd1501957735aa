// Package attackwatch detects aggregate brute-force campaigns from the
// global stream of login outcomes.
//
// Outcomes are counted into a fixed ring of time buckets; buckets older than
// the retention horizon are overwritten in place, so memory is O(window
// length) regardless of traffic volume. The verdict gates nothing by itself:
// callers use it only to decide whether the login form must present a
// CAPTCHA.
package attackwatch

import (
	"sync"
	"time"
)

// Config tunes the sliding window and the attack verdict.
type Config struct {
	// BucketSize is the granularity of one counter bucket.
	BucketSize time.Duration
	// Retention is the lookback horizon; Retention/BucketSize buckets are
	// kept.
	Retention time.Duration
	// MinSampleSize is the minimum number of outcomes in the window before
	// a verdict is ever positive.
	MinSampleSize uint64
	// FailureThreshold is the failure ratio at or above which the window is
	// considered under attack.
	FailureThreshold float64
}

type bucket struct {
	mu      sync.Mutex
	epoch   int64
	success uint64
	failure uint64
}

// Monitor is a fixed-memory sliding-window counter of login outcomes.
// Safe for concurrent use; contention is per bucket, not global.
type Monitor struct {
	cfg     Config
	buckets []bucket
}

// NewMonitor creates a Monitor. Retention must cover at least two buckets.
// A non-positive BucketSize falls back to one minute; the epoch math divides
// by whole seconds, so sub-second sizes are rounded up to one second.
func NewMonitor(cfg Config) *Monitor {
	if cfg.BucketSize <= 0 {
		cfg.BucketSize = time.Minute
	}
	if cfg.BucketSize < time.Second {
		cfg.BucketSize = time.Second
	}
	n := int(cfg.Retention / cfg.BucketSize)
	if n < 2 {
		n = 2
	}
	return &Monitor{
		cfg:     cfg,
		buckets: make([]bucket, n),
	}
}

// Record counts one login outcome into the current time bucket.
func (m *Monitor) Record(success bool, now time.Time) {
	epoch := m.epoch(now)
	b := &m.buckets[int(epoch)%len(m.buckets)]

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.epoch != epoch {
		// The slot belongs to a lapsed window; reclaim it.
		b.epoch = epoch
		b.success = 0
		b.failure = 0
	}
	if success {
		b.success++
	} else {
		b.failure++
	}
}

// UnderAttack reports whether the retained window holds at least
// MinSampleSize outcomes with a failure ratio at or above
// FailureThreshold.
func (m *Monitor) UnderAttack(now time.Time) bool {
	attempts, failures := m.totals(now)
	if attempts < m.cfg.MinSampleSize || attempts == 0 {
		return false
	}
	return float64(failures)/float64(attempts) >= m.cfg.FailureThreshold
}

// Totals returns the attempt and failure counts retained in the window.
func (m *Monitor) Totals(now time.Time) (attempts, failures uint64) {
	return m.totals(now)
}

func (m *Monitor) totals(now time.Time) (attempts, failures uint64) {
	current := m.epoch(now)
	oldest := current - int64(len(m.buckets)) + 1

	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		if b.epoch >= oldest && b.epoch <= current {
			attempts += b.success + b.failure
			failures += b.failure
		}
		b.mu.Unlock()
	}
	return attempts, failures
}

func (m *Monitor) epoch(now time.Time) int64 {
	return now.Unix() / int64(m.cfg.BucketSize/time.Second)
}
