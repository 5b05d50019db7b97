package session

import "time"

// deadline is a single re-armable timer slot guarded by the controller
// mutex. Arming bumps a generation counter that the pending callback must
// match before it runs, so a callback that fired just before the slot was
// re-armed or cancelled is dropped instead of acting on stale state.
//
// All methods must be called with the controller mutex held; the fire
// wrapper acquires it before checking the generation.
type deadline struct {
	timer *time.Timer
	gen   uint64
}

// arm schedules fn to run after d, cancelling any pending callback first.
// A non-positive duration cancels without scheduling. fn runs with the
// controller mutex held and only if the slot has not been re-armed or
// cancelled since.
func (c *Controller) arm(d *deadline, dur time.Duration, fn func()) {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if dur <= 0 {
		return
	}
	gen := d.gen
	d.timer = time.AfterFunc(dur, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != d.gen {
			return
		}
		d.timer = nil
		fn()
	})
}

// cancel invalidates any pending callback for the slot.
func (c *Controller) cancel(d *deadline) {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// cancelSessionTimers invalidates all four session-scoped timer slots.
// Deferred cleanup timers are utterance-scoped and are not touched here:
// a flushed final utterance may still be transcribed after the session
// ends, so its recording must survive until the cleanup delay elapses.
func (c *Controller) cancelSessionTimers() {
	c.cancel(&c.startHold)
	c.cancel(&c.stopSilence)
	c.cancel(&c.maxDuration)
	c.cancel(&c.autoDisarm)
}
