package attempt

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultSweepEvery = 100

// Reclaimer evicts stale records from a [Store] at a bounded frequency:
// once every N recorded writes, and optionally on a background ticker.
// Either trigger alone satisfies the memory bound; the ticker covers
// stores that go quiet after a burst of distinct keys.
type Reclaimer struct {
	store  *Store
	maxAge time.Duration
	every  uint64

	writes atomic.Uint64

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewReclaimer creates a reclaimer for store. maxAge should be at least
// twice the lockout duration so no record is evicted while it can still
// influence a lockout verdict; every<=0 falls back to the default write
// interval.
func NewReclaimer(store *Store, maxAge time.Duration, every int) *Reclaimer {
	if every <= 0 {
		every = defaultSweepEvery
	}
	return &Reclaimer{
		store:  store,
		maxAge: maxAge,
		every:  uint64(every),
		done:   make(chan struct{}),
	}
}

// Note records one write against the sweep counter and runs a sweep when
// the interval elapses. Returns the number of records evicted (zero when
// no sweep ran). Safe for concurrent use; at most one caller wins each
// interval boundary.
func (r *Reclaimer) Note(now time.Time) int {
	if r == nil || r.store == nil {
		return 0
	}
	if r.writes.Add(1)%r.every != 0 {
		return 0
	}
	return r.store.Sweep(now, r.maxAge)
}

// Start launches the periodic sweep goroutine. No-op when interval<=0.
// Call [Reclaimer.Close] to stop it.
func (r *Reclaimer) Start(interval time.Duration, onSweep func(evicted int)) {
	if r == nil || r.store == nil || interval <= 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				evicted := r.store.Sweep(time.Now(), r.maxAge)
				if onSweep != nil && evicted > 0 {
					onSweep(evicted)
				}
			case <-r.done:
				return
			}
		}
	}()
}

// Close stops the periodic sweep goroutine and waits for it to exit.
// Idempotent.
func (r *Reclaimer) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}
