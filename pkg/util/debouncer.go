package util

import (
	"sync"
	"time"
)

// Debouncer invokes a callback once activity goes quiet: every Touch
// (re)arms a timer, and when no Touch arrives for the configured
// duration the callback fires once. It stays disarmed after firing
// until the next Touch. Thread-safe; suitable for calling from audio
// callbacks.
//
// Example usage:
//
//	quiet := NewDebouncer(700*time.Millisecond, func() {
//	    reportSilence()
//	})
//	defer quiet.Stop()
//
//	onFrame := func(samples []float32) {
//	    if containsSpeech(samples) {
//	        quiet.Touch()
//	    }
//	}
type Debouncer struct {
	duration time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64 // advanced by Touch; expiries from older arms are stale
	stopped bool
}

// NewDebouncer creates a disarmed debouncer. fn runs on a timer
// goroutine, so it must be safe to call from there.
func NewDebouncer(duration time.Duration, fn func()) *Debouncer {
	return &Debouncer{duration: duration, fn: fn}
}

// Touch arms the timer, or pushes it back if already armed. No-op
// after Stop.
//
// A fresh timer is created on every Touch rather than reusing the old
// one: an expiry can race the Touch, and a reset timer would still run
// the expired arm's callback. The generation counter makes such a stale
// expiry a no-op.
func (d *Debouncer) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.duration, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}

// Stop disarms the debouncer and prevents further callbacks. Safe to
// call multiple times. A callback already executing may still finish.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
