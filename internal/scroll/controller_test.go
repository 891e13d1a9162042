package scroll

import "testing"

func TestObserveTriggersNearTop(t *testing.T) {
	tests := []struct {
		name    string
		m       Metrics
		hasMore bool
		loading bool
		want    bool
	}{
		{"above threshold", Metrics{Offset: 150, ViewportHeight: 600, ContentHeight: 3000}, true, false, true},
		{"at top", Metrics{Offset: 0, ViewportHeight: 600, ContentHeight: 3000}, true, false, true},
		{"below threshold", Metrics{Offset: 250, ViewportHeight: 600, ContentHeight: 3000}, true, false, false},
		{"no more history", Metrics{Offset: 0, ViewportHeight: 600, ContentHeight: 3000}, false, false, false},
		{"load in flight", Metrics{Offset: 0, ViewportHeight: 600, ContentHeight: 3000}, true, true, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewController(200, 40)
			if got := c.Observe(tc.m, tc.hasMore, tc.loading); got != tc.want {
				t.Errorf("Observe = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAnchorSurvivesPrepend(t *testing.T) {
	c := NewController(200, 40)

	before := Metrics{Offset: 120, ViewportHeight: 600, ContentHeight: 3000}
	c.BeforePrepend(before)
	// fifty older messages added 1400px of content
	if got := c.AfterPrepend(4400); got != 1520 {
		t.Errorf("AfterPrepend = %v, want 1520 (old offset 120 + delta 1400)", got)
	}
	// a second call without a new anchor is inert
	if got := c.AfterPrepend(5000); got != 0 {
		t.Errorf("unanchored AfterPrepend = %v, want 0", got)
	}
}

func TestAfterPrependClampsNegativeDelta(t *testing.T) {
	c := NewController(200, 40)
	c.BeforePrepend(Metrics{Offset: 100, ContentHeight: 3000})
	if got := c.AfterPrepend(2800); got != 100 {
		t.Errorf("AfterPrepend with shrunk content = %v, want unchanged offset 100", got)
	}
}

func TestOnAppendScrollPolicy(t *testing.T) {
	c := NewController(200, 40)

	// fresh controller starts at the bottom
	if d := c.OnAppend(false); !d.AutoScroll || d.NotifyNew {
		t.Errorf("append at bottom = %+v, want auto-scroll", d)
	}

	// reader scrolled up into history
	c.Observe(Metrics{Offset: 500, ViewportHeight: 600, ContentHeight: 3000}, true, false)
	if c.AtBottom() {
		t.Fatal("AtBottom = true after scrolling up")
	}
	if d := c.OnAppend(false); d.AutoScroll || !d.NotifyNew {
		t.Errorf("append while reading history = %+v, want notice only", d)
	}
	// own sends always steal the scroll
	if d := c.OnAppend(true); !d.AutoScroll {
		t.Errorf("own append = %+v, want auto-scroll", d)
	}

	// back to the bottom, within slack
	c.Observe(Metrics{Offset: 2370, ViewportHeight: 600, ContentHeight: 3000}, true, false)
	if !c.AtBottom() {
		t.Error("AtBottom = false within bottom slack")
	}
}

func TestObserveShortContent(t *testing.T) {
	c := NewController(200, 40)
	// content shorter than the viewport: always at bottom
	c.Observe(Metrics{Offset: 0, ViewportHeight: 600, ContentHeight: 300}, true, false)
	if !c.AtBottom() {
		t.Error("AtBottom = false with content shorter than viewport")
	}
}
