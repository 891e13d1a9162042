// Package scroll decides when to page older history in and how to keep the
// reader's anchor point stable across prepends. It is pure bookkeeping over
// viewport metrics reported by the client; no rendering happens here.
package scroll

// Metrics is one observation of the client viewport.
type Metrics struct {
	Offset         float64 // scroll offset from the top
	ViewportHeight float64
	ContentHeight  float64
}

// AppendDecision says what to do with the view after a non-own message lands.
type AppendDecision struct {
	AutoScroll bool
	NotifyNew  bool
}

type Controller struct {
	topThreshold float64
	bottomSlack  float64

	atBottom     bool
	anchorHeight float64
	anchorOffset float64
	anchored     bool
}

func NewController(topThreshold, bottomSlack float64) *Controller {
	if topThreshold <= 0 {
		topThreshold = 200
	}
	if bottomSlack <= 0 {
		bottomSlack = 40
	}
	return &Controller{topThreshold: topThreshold, bottomSlack: bottomSlack, atBottom: true}
}

// Observe folds in a scroll event and reports whether an older page should be
// requested now. hasMore and loading reflect message-store state; a load is
// never triggered while one is in flight.
func (c *Controller) Observe(m Metrics, hasMore, loading bool) bool {
	maxOffset := m.ContentHeight - m.ViewportHeight
	if maxOffset < 0 {
		maxOffset = 0
	}
	c.atBottom = m.Offset >= maxOffset-c.bottomSlack
	return m.Offset < c.topThreshold && hasMore && !loading
}

// BeforePrepend records the anchor before older content is added.
func (c *Controller) BeforePrepend(m Metrics) {
	c.anchorHeight = m.ContentHeight
	c.anchorOffset = m.Offset
	c.anchored = true
}

// AfterPrepend returns the offset that keeps the previously visible content
// at the same position: the old offset moved down by the height delta.
func (c *Controller) AfterPrepend(newContentHeight float64) float64 {
	if !c.anchored {
		return 0
	}
	c.anchored = false
	delta := newContentHeight - c.anchorHeight
	if delta < 0 {
		delta = 0
	}
	return c.anchorOffset + delta
}

// OnAppend decides whether a newly appended message may steal the scroll
// position. Own sends always scroll; others only when the view was already at
// the bottom, otherwise the client shows a new-messages notice.
func (c *Controller) OnAppend(own bool) AppendDecision {
	if own || c.atBottom {
		return AppendDecision{AutoScroll: true}
	}
	return AppendDecision{NotifyNew: true}
}

// AtBottom reports whether the last observation put the view at the bottom.
func (c *Controller) AtBottom() bool { return c.atBottom }
