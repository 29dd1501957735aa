// Package lockout tracks per-subject failed login attempts and derives an
// exponential-backoff lock window from the attempt count.
//
// State is an in-process sharded map: updates to one subject are atomic
// under its shard lock while unrelated subjects proceed in parallel. Records
// are evicted lazily — a record whose last attempt is older than the TTL is
// treated as absent on read — with an optional Compact pass to reclaim
// memory eagerly.
package lockout

import (
	"hash/fnv"
	"sync"
	"time"
)

// DefaultTTL is the retention window for attempt records. It also caps the
// backoff wait.
const DefaultTTL = 30 * time.Minute

const shardCount = 64

type record struct {
	lastAttempt int64
	count       int
}

type shard struct {
	mu      sync.Mutex
	records map[string]record
}

// Tracker holds lockout state keyed by subject (account identifier or
// email). Safe for concurrent use.
type Tracker struct {
	ttl    time.Duration
	shards [shardCount]shard
}

// NewTracker creates a Tracker with the given record TTL. A non-positive
// ttl falls back to DefaultTTL.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := &Tracker{ttl: ttl}
	for i := range t.shards {
		t.shards[i].records = make(map[string]record)
	}
	return t
}

// Backoff returns the minimum wait after the nth consecutive failure:
// min(2^n, TTL) seconds.
func (t *Tracker) Backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	// 2^31s already exceeds any sane TTL; avoid shifting past the cap.
	if n > 30 {
		return t.ttl
	}
	wait := time.Duration(int64(1)<<uint(n)) * time.Second
	if wait > t.ttl {
		return t.ttl
	}
	return wait
}

// IsLocked reports whether the subject must still wait before another
// attempt is accepted. Absent or TTL-expired records never lock.
func (t *Tracker) IsLocked(key string, now time.Time) bool {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || t.expired(rec, now) {
		return false
	}
	return now.Sub(time.Unix(rec.lastAttempt, 0)) < t.Backoff(rec.count)
}

// RecordFailure registers a failed attempt for the subject, starting a fresh
// record when none exists or the previous one has expired.
func (t *Tracker) RecordFailure(key string, now time.Time) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || t.expired(rec, now) {
		rec = record{}
	}
	rec.count++
	rec.lastAttempt = now.Unix()
	s.records[key] = rec
}

// Reset clears the subject's record. Called on successful login and on
// successful unlock.
func (t *Tracker) Reset(key string) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
}

// Attempts returns the live attempt count for the subject; expired records
// count as zero.
func (t *Tracker) Attempts(key string, now time.Time) int {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || t.expired(rec, now) {
		return 0
	}
	return rec.count
}

// Compact removes expired records from every shard and returns how many
// were dropped. Eviction is otherwise lazy; Compact only bounds memory.
func (t *Tracker) Compact(now time.Time) int {
	removed := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for key, rec := range s.records {
			if t.expired(rec, now) {
				delete(s.records, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of retained records, expired ones included.
func (t *Tracker) Len() int {
	total := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		total += len(s.records)
		s.mu.Unlock()
	}
	return total
}

func (t *Tracker) expired(rec record, now time.Time) bool {
	return now.Sub(time.Unix(rec.lastAttempt, 0)) >= t.ttl
}

func (t *Tracker) shard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &t.shards[h.Sum32()%shardCount]
}
