package frame

import "encoding/binary"

// writer appends a single variant body's fields in a fixed order. Fields
// carry no tag of their own; only the body's leading variant tag is written,
// and each field's position is fixed by the variant.
type writer struct {
	buf []byte
}

func (w *writer) putUint8(v uint8) { w.buf = append(w.buf, v) }
func (w *writer) putBool(v bool) {
	if v {
		w.putUint8(1)
	} else {
		w.putUint8(0)
	}
}

func (w *writer) putUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) putUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) putInt32(v int32) { w.putUint32(uint32(v)) }

func (w *writer) putBytes(v []byte) {
	w.putUint32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *writer) putString(v string) { w.putBytes([]byte(v)) }

func (w *writer) putStrings(v []string) {
	w.putUint32(uint32(len(v)))
	for _, s := range v {
		w.putString(s)
	}
}

// reader is total: every accessor returns the zero value once the body runs
// short instead of erroring. The caller never sees an error from a body that
// "fits" the outer frame length but is internally short (see DESIGN.md's
// open-question note on this).
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) getUint8() uint8 {
	if r.remaining() < 1 {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) getBool() bool { return r.getUint8() != 0 }

func (r *reader) getUint16() uint16 {
	if r.remaining() < 2 {
		r.pos = len(r.buf)
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v
}

func (r *reader) getUint32() uint32 {
	if r.remaining() < 4 {
		r.pos = len(r.buf)
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *reader) getInt32() int32 { return int32(r.getUint32()) }

func (r *reader) getBytes() []byte {
	n := int(r.getUint32())
	if n < 0 || n > r.remaining() {
		n = r.remaining()
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+n])
	r.pos += n
	return v
}

func (r *reader) getString() string { return string(r.getBytes()) }

func (r *reader) getStrings() []string {
	n := int(r.getUint32())
	if n < 0 || n > r.remaining() {
		// A field can't plausibly claim more entries than remaining bytes;
		// clamp so a corrupt count can't spin this loop unbounded.
		n = r.remaining()
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if r.remaining() == 0 {
			break
		}
		out = append(out, r.getString())
	}
	return out
}

func (r *reader) getDeviceInfo() DeviceInfo {
	return DeviceInfo{
		UUID:       r.getString(),
		Name:       r.getString(),
		OS:         OS(r.getUint8()),
		Compositor: Compositor(r.getUint8()),
	}
}

func (w *writer) putDeviceInfo(d DeviceInfo) {
	w.putString(d.UUID)
	w.putString(d.Name)
	w.putUint8(uint8(d.OS))
	w.putUint8(uint8(d.Compositor))
}
