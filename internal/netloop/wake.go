package netloop

// Wake is a thread-safe handle that lets an external collaborator running on
// its own goroutine (a FUSE server thread, a clipboard-bus callback) post a
// closure back onto the loop goroutine. It is a thin, named wrapper around
// Loop.Post so call sites document intent: "this is a re-entry point from
// off-loop work," not an ordinary scheduled callback.
type Wake struct {
	loop *Loop
}

// NewWake returns a Wake bound to loop. Safe to share across goroutines and
// to hold for the lifetime of the collaborator that owns it.
func (l *Loop) NewWake() *Wake {
	return &Wake{loop: l}
}

// Schedule posts fn to run on the loop goroutine at the next turn.
func (w *Wake) Schedule(fn func()) {
	w.loop.Post(fn)
}
