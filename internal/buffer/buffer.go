// Package buffer provides the growable read buffer each connection drains
// through the frame codec: bytes come in from the socket in arbitrary
// chunks, and the buffer lets the caller peek at a header-sized prefix,
// consume a decoded frame, and repeat until only a partial frame remains.
package buffer

import "sync"

// defaultCap is the initial backing array size for a freshly pooled buffer,
// sized for a handful of typical protocol frames so the common case never
// reallocates.
const defaultCap = 4096

var pool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, defaultCap)
	},
}

// Buffer is a growable byte buffer with peek/consume semantics. It is not
// safe for concurrent use; each connection owns exactly one, accessed only
// from the event loop goroutine that services it.
type Buffer struct {
	data []byte
}

// New returns a Buffer backed by a pooled array.
func New() *Buffer {
	return &Buffer{data: pool.Get().([]byte)[:0]}
}

// Release returns the backing array to the pool. The Buffer must not be used
// afterwards.
func (b *Buffer) Release() {
	if cap(b.data) == 0 {
		return
	}
	pool.Put(b.data[:0])
	b.data = nil
}

// Append adds bytes read from the socket to the tail of the buffer.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Data returns the unconsumed prefix of the buffer. The caller must not
// retain the slice past the next Append/Retrieve/Clear call.
func (b *Buffer) Data() []byte { return b.data }

// Size reports the number of unconsumed bytes.
func (b *Buffer) Size() int { return len(b.data) }

// Peek returns the first n bytes without consuming them. ok is false if
// fewer than n bytes are buffered.
func (b *Buffer) Peek(n int) (out []byte, ok bool) {
	if len(b.data) < n {
		return nil, false
	}
	return b.data[:n], true
}

// Retrieve consumes the first n bytes, sliding the remainder to the front.
func (b *Buffer) Retrieve(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	copy(b.data, b.data[n:])
	b.data = b.data[:len(b.data)-n]
}

// Clear discards all buffered bytes without releasing the backing array.
func (b *Buffer) Clear() {
	b.data = b.data[:0]
}
