// Package watch provides the file-system watching primitives behind the
// live icon list: a single-directory fsnotify watcher and a debouncer that
// coalesces event bursts (an MPQ extraction can drop thousands of BLP files
// in one go) into a single persist/rebuild pass.
package watch

import (
	"sync"
	"time"
)

// Debouncer runs an action once after a quiet period. Every Trigger resets
// the clock, so a burst of calls produces exactly one action after the last
// one. Safe for concurrent use.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func()
	timer *time.Timer
	gen   uint64 // invalidates timers that lost a Stop race
	wg    sync.WaitGroup
}

// NewDebouncer returns a debouncer that runs fn once the given delay has
// passed without another Trigger.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)schedules the action.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}
	d.gen++
	gen := d.gen

	d.wg.Add(1)
	d.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()

		d.mu.Lock()
		if d.gen != gen {
			// A newer trigger superseded this timer between fire and lock.
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		// Run unlocked so the action may Trigger again without deadlocking.
		d.fn()
	})
}

// Cancel drops any pending action without waiting for a running one.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		if d.timer.Stop() {
			d.wg.Done()
		}
		d.timer = nil
	}
	d.gen++
}

// CancelAndWait drops any pending action and blocks until an in-flight one
// finishes. Call during shutdown so a persist pass is never cut off mid-write.
func (d *Debouncer) CancelAndWait() {
	d.Cancel()
	d.wg.Wait()
}
