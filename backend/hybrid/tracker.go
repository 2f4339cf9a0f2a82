package hybrid

import (
	"sync"
	"time"
)

// access records per-key usage for promotion decisions.
type access struct {
	count int
	last  time.Time
}

// tracker is the process-local access map. Every Get/Set touches it, so the
// sweep runs inline (no background goroutine) and only when the interval has
// elapsed, keeping growth bounded without timers.
type tracker struct {
	mu        sync.Mutex
	entries   map[string]access
	retention time.Duration
	lastSweep time.Time
}

func newTracker(retention time.Duration) *tracker {
	return &tracker{
		entries:   make(map[string]access),
		retention: retention,
		lastSweep: time.Now(),
	}
}

// touch increments the key's counter and returns the updated record.
func (t *tracker) touch(key string) access {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.entries[key]
	a.count++
	a.last = now
	t.entries[key] = a
	t.sweepLocked(now)
	return a
}

// peek returns the record without mutating it.
func (t *tracker) peek(key string) (access, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.entries[key]
	return a, ok
}

func (t *tracker) forget(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

func (t *tracker) reset() {
	t.mu.Lock()
	t.entries = make(map[string]access)
	t.mu.Unlock()
}

func (t *tracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// sweepLocked evicts records idle longer than the retention window. Called
// with the mutex held, at most once per retention interval.
func (t *tracker) sweepLocked(now time.Time) {
	if t.retention <= 0 || now.Sub(t.lastSweep) < t.retention {
		return
	}
	cutoff := now.Add(-t.retention)
	for k, a := range t.entries {
		if a.last.Before(cutoff) {
			delete(t.entries, k)
		}
	}
	t.lastSweep = now
}
