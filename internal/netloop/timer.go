package netloop

import (
	"sync"
	"time"
)

// Timer roughly copies the interface of the wireguard-go reference's own
// Timer type, generalized from a single hardcoded peer-expiry callback to an
// arbitrary func and re-armable with either a period (Start) or a single
// delay (Oneshot).
type Timer struct {
	loop *Loop

	mu       sync.Mutex
	timer    *time.Timer
	period   time.Duration
	periodic bool
	pending  bool
	callback func()
}

// NewTimer creates a Timer bound to loop; its callback always runs on the
// loop goroutine, never directly on the time.AfterFunc goroutine.
func (l *Loop) NewTimer(callback func()) *Timer {
	t := &Timer{loop: l, callback: callback}
	t.timer = time.AfterFunc(time.Hour, t.fire)
	t.timer.Stop()
	return t
}

func (t *Timer) fire() {
	t.mu.Lock()
	periodic := t.periodic
	period := t.period
	t.pending = periodic
	t.mu.Unlock()

	t.loop.Post(t.callback)

	if periodic {
		t.mu.Lock()
		if t.pending {
			t.timer.Reset(period)
		}
		t.mu.Unlock()
	}
}

// Start arms the timer to fire every periodMs, re-arming itself after each
// fire until Stop is called.
func (t *Timer) Start(periodMs int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = time.Duration(periodMs) * time.Millisecond
	t.periodic = true
	t.pending = true
	t.timer.Reset(t.period)
}

// Oneshot arms the timer to fire exactly once after delayMs.
func (t *Timer) Oneshot(delayMs int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.period = time.Duration(delayMs) * time.Millisecond
	t.periodic = false
	t.pending = true
	t.timer.Reset(t.period)
}

// Reset re-arms the timer with whatever interval it was last started or
// one-shot with -- used to push back an offline deadline on every beacon.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.period == 0 {
		return
	}
	t.pending = true
	t.timer.Reset(t.period)
}

// Stop disarms the timer without releasing its resources. Idempotent.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = false
	t.periodic = false
	t.timer.Stop()
}

// Close stops the timer permanently. After Close, Start/Oneshot/Reset must
// not be called again.
func (t *Timer) Close() {
	t.Stop()
}

// Pending reports whether the timer is currently armed.
func (t *Timer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}
