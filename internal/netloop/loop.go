// Package netloop implements the single-threaded cooperative reactor that
// every Machine, Timer, Stream and Pipe in this daemon is bound to.
// Callbacks scheduled on a Loop never run concurrently with each other; a
// Loop may host many sessions, and cross-goroutine code re-enters it only
// through Post.
package netloop

import (
	"sync"

	"github.com/linuxdeepin/dde-cooperation/internal/logging"
)

// Loop is a single-threaded reactor: one goroutine drains a work queue of
// callbacks, so Timer fires, Stream reads, Pipe exits and Post-scheduled
// closures are all serialized the same way the wireguard-go reference
// serializes all per-peer callbacks on one device-wide queue.
type Loop struct {
	log   logging.Logger
	tasks chan func()
	done  chan struct{}

	closeOnce sync.Once
}

// New creates a Loop. Call Run to start draining it, typically in its own
// goroutine from main.
func New(log logging.Logger) *Loop {
	return &Loop{
		log:   log,
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
}

// Run drains the task queue until Stop is called. It is meant to be the
// body of the process's single reactor goroutine.
func (l *Loop) Run() {
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.tasks:
			l.safeCall(fn)
		}
	}
}

func (l *Loop) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorf("recovered panic in loop callback: %v", r)
		}
	}()
	fn()
}

// Post schedules fn to run on the loop goroutine at the next turn. It is
// safe to call from any goroutine and is the only sanctioned way for
// off-loop code (FUSE workers, the clipboard bus, a completion callback from
// a blocking desktop call) to re-enter the loop.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

// Stop halts Run. Idempotent.
func (l *Loop) Stop() {
	l.closeOnce.Do(func() { close(l.done) })
}
