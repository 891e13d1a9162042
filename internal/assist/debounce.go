package assist

import (
	"sync"
	"time"
)

// debouncer runs the latest scheduled fn once the settle window passes with
// no further schedules.
type debouncer struct {
	settle time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(settle time.Duration) *debouncer {
	return &debouncer{settle: settle}
}

func (d *debouncer) schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.settle, fn)
}

func (d *debouncer) cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
