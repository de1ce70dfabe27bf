// Package debounce coalesces bursts of signals into one trailing
// notification.
package debounce

import (
	"sync"
	"time"
)

// Trigger turns any number of Hit calls within a quiet window into a single
// receive on C. Editors tend to write, rename, and chmod in quick
// succession; consumers want one notification per burst.
type Trigger struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer

	// C receives once per settled burst. It has capacity 1; a notification
	// that arrives while one is already pending is folded into it.
	C chan struct{}
}

// NewTrigger creates a trigger with the given quiet window.
func NewTrigger(delay time.Duration) *Trigger {
	return &Trigger{delay: delay, C: make(chan struct{}, 1)}
}

// Hit starts the quiet window, or restarts it when one is already running.
func (t *Trigger) Hit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		t.timer = time.AfterFunc(t.delay, t.fire)
		return
	}
	t.timer.Reset(t.delay)
}

func (t *Trigger) fire() {
	t.mu.Lock()
	t.timer = nil
	t.mu.Unlock()

	select {
	case t.C <- struct{}{}:
	default:
	}
}

// Stop cancels any pending notification. Hits after Stop arm the trigger
// again.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
