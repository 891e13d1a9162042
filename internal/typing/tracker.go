// Package typing tracks ephemeral (surface, user) typing signals with a fixed
// liveness window. Entries older than the window are dropped on read.
package typing

import (
	"sort"
	"sync"
	"time"
)

type key struct {
	surfaceID string
	userID    string
}

type Tracker struct {
	window time.Duration

	mu      sync.Mutex
	entries map[key]time.Time
	now     func() time.Time
}

func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = 6 * time.Second
	}
	return &Tracker{
		window:  window,
		entries: make(map[key]time.Time),
		now:     time.Now,
	}
}

func (t *Tracker) Mark(surfaceID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key{surfaceID, userID}] = t.now()
}

func (t *Tracker) Clear(surfaceID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key{surfaceID, userID})
}

// Active returns the users currently typing on the surface, stale entries
// excluded and dropped.
func (t *Tracker) Active(surfaceID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.window)
	var out []string
	for k, at := range t.entries {
		if at.Before(cutoff) {
			delete(t.entries, k)
			continue
		}
		if k.surfaceID == surfaceID {
			out = append(out, k.userID)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep drops all stale entries.
func (t *Tracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.window)
	for k, at := range t.entries {
		if at.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}
