package coordinator

import (
	"sync"
	"time"
)

// Deadlines is a set of one-shot timers keyed by operation.
//
// Scheduling a key that already has a pending timer replaces it. A callback
// that fires has already been removed from the set, so Cancel after the
// fact is a harmless no-op. Callbacks run on their own goroutine and must do
// their own locking; they may race with Cancel, so they re-check state.
type Deadlines struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewDeadlines creates an empty deadline set.
func NewDeadlines() *Deadlines {
	return &Deadlines{timers: make(map[string]*time.Timer)}
}

// Schedule runs fn once after d unless the key is cancelled or rescheduled first.
func (ds *Deadlines) Schedule(key string, d time.Duration, fn func()) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.stopped {
		return
	}
	if old, ok := ds.timers[key]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		ds.mu.Lock()
		current := ds.timers[key] == t
		if current {
			delete(ds.timers, key)
		}
		ds.mu.Unlock()

		if current {
			fn()
		}
	})
	ds.timers[key] = t
}

// Cancel stops the pending timer for key and reports whether one was pending.
func (ds *Deadlines) Cancel(key string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	t, ok := ds.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(ds.timers, key)
	return true
}

// Pending returns the number of timers that have not fired or been cancelled.
func (ds *Deadlines) Pending() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return len(ds.timers)
}

// Stop cancels every pending timer and refuses new ones.
func (ds *Deadlines) Stop() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	for key, t := range ds.timers {
		t.Stop()
		delete(ds.timers, key)
	}
	ds.stopped = true
}

func storeDeadline(name string) string  { return "store:" + name }
func removeDeadline(name string) string { return "remove:" + name }
