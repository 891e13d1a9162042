package typing

import (
	"testing"
	"time"
)

func TestActiveWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(6 * time.Second)
	tr.now = func() time.Time { return now }

	tr.Mark("general", "carol")
	tr.Mark("general", "alice")
	tr.Mark("other", "dave")

	if got := tr.Active("general"); len(got) != 2 || got[0] != "alice" || got[1] != "carol" {
		t.Errorf("Active = %v, want [alice carol]", got)
	}
	if got := tr.Active("other"); len(got) != 1 || got[0] != "dave" {
		t.Errorf("Active(other) = %v, want [dave]", got)
	}

	// alice refreshes; carol goes stale
	now = now.Add(4 * time.Second)
	tr.Mark("general", "alice")
	now = now.Add(3 * time.Second)
	if got := tr.Active("general"); len(got) != 1 || got[0] != "alice" {
		t.Errorf("Active after staleness = %v, want [alice]", got)
	}
}

func TestClear(t *testing.T) {
	tr := NewTracker(6 * time.Second)
	tr.Mark("general", "carol")
	tr.Clear("general", "carol")
	if got := tr.Active("general"); got != nil {
		t.Errorf("Active = %v after Clear, want nil", got)
	}
	// clearing an absent entry is a no-op
	tr.Clear("general", "ghost")
}

func TestSweepDropsStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(6 * time.Second)
	tr.now = func() time.Time { return now }

	tr.Mark("general", "carol")
	now = now.Add(10 * time.Second)
	tr.Mark("general", "alice")
	tr.Sweep()

	tr.mu.Lock()
	n := len(tr.entries)
	tr.mu.Unlock()
	if n != 1 {
		t.Errorf("entries after Sweep = %d, want 1", n)
	}
}
