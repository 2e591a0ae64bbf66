package frame

import "encoding/binary"

// HeaderSize is the size in bytes of the fixed frame header: 8-byte magic
// followed by an 8-byte big-endian body length.
const HeaderSize = 16

// Magic is the literal byte sequence every frame starts with.
var Magic = [8]byte{'D', 'D', 'E', 'C', 'P', 'R', 'T', 0}

// MaxBodySize bounds the length field so a corrupt or hostile peer can't
// force an unbounded allocation before the body is even read off the wire.
const MaxBodySize = 64 << 20 // 64 MiB

// Header is the fixed-size preamble of every frame.
type Header struct {
	Magic  [8]byte
	Length uint64
}

// PeekHeader reads a Header out of buf without requiring the body to be
// present yet. ok is false if buf is shorter than HeaderSize.
func PeekHeader(buf []byte) (h Header, ok bool) {
	if len(buf) < HeaderSize {
		return Header{}, false
	}
	copy(h.Magic[:], buf[0:8])
	h.Length = binary.BigEndian.Uint64(buf[8:16])
	return h, true
}

// Valid reports whether the header's magic matches the protocol's.
func (h Header) Valid() bool {
	return h.Magic == Magic
}

func putHeader(buf []byte, bodyLen int) {
	copy(buf[0:8], Magic[:])
	binary.BigEndian.PutUint64(buf[8:16], uint64(bodyLen))
}
