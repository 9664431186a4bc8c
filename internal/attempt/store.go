package attempt

import (
	"sync"
	"sync/atomic"
	"time"
)

// Record is the immutable per-key failure state. It is replaced, never
// mutated, on every write.
type Record struct {
	Attempts int
	Last     time.Time
}

// Store is a concurrent key→[Record] map. The zero value is not usable;
// construct with [NewStore]. All methods are safe for concurrent use and
// nil-safe on the receiver.
type Store struct {
	entries  sync.Map // string → *Record
	cooldown time.Duration
	size     atomic.Int64
}

// NewStore creates a store whose restart rule is driven by the given
// cooldown (the configured lockout duration). A failure recorded more
// than one cooldown after the previous one starts a fresh streak.
func NewStore(cooldown time.Duration) *Store {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Store{cooldown: cooldown}
}

// Get returns the current record for key, or ok=false when the key has
// no failures on file.
func (s *Store) Get(key string) (Record, bool) {
	if s == nil {
		return Record{}, false
	}
	v, ok := s.entries.Load(key)
	if !ok {
		return Record{}, false
	}
	return *v.(*Record), true
}

// RecordFailure atomically advances the failure state for key and
// returns the resulting record.
//
// If the previous failure is older than one cooldown the streak restarts
// at 1 (an expired lockout never bleeds into the next one); records past
// two cooldowns would have been swept anyway and restart identically.
// Otherwise the counter increments and the timestamp refreshes. The
// whole step is a CAS loop so concurrent failures on one key never lose
// an increment.
func (s *Store) RecordFailure(key string, now time.Time) Record {
	if s == nil {
		return Record{Attempts: 1, Last: now}
	}
	for {
		v, loaded := s.entries.Load(key)
		if !loaded {
			fresh := &Record{Attempts: 1, Last: now}
			if _, raced := s.entries.LoadOrStore(key, fresh); raced {
				continue
			}
			s.size.Add(1)
			return *fresh
		}

		cur := v.(*Record)
		next := &Record{Attempts: cur.Attempts + 1, Last: now}
		if now.Sub(cur.Last) > s.cooldown {
			next.Attempts = 1
		}
		if s.entries.CompareAndSwap(key, cur, next) {
			return *next
		}
	}
}

// Clear removes the record for key. Called after a successful
// verification; clearing an absent key is a no-op.
func (s *Store) Clear(key string) {
	if s == nil {
		return
	}
	if _, loaded := s.entries.LoadAndDelete(key); loaded {
		s.size.Add(-1)
	}
}

// Sweep removes every record whose last failure is older than maxAge and
// returns the number evicted. It may race with concurrent writes on the
// same key; CompareAndDelete keeps a freshly refreshed record alive, and
// losing the other direction only delays eviction by one cycle.
func (s *Store) Sweep(now time.Time, maxAge time.Duration) int {
	if s == nil {
		return 0
	}
	cutoff := now.Add(-maxAge)
	evicted := 0
	s.entries.Range(func(key, v any) bool {
		rec := v.(*Record)
		if rec.Last.Before(cutoff) {
			if s.entries.CompareAndDelete(key, v) {
				s.size.Add(-1)
				evicted++
			}
		}
		return true
	})
	return evicted
}

// Len reports the number of live records.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	n := s.size.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}
