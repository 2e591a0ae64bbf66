package wrappers

import (
	"encoding/binary"
	"strconv"

	"github.com/linuxdeepin/dde-cooperation/internal/netloop"
)

// InputEmittor bridges to the external input-injector process. EmitEvent
// writes a fixed 12-byte (type, code, value) triple to its stdin, the wire
// shape the injector expects.
type InputEmittor struct {
	pipe *netloop.Pipe
}

// SpawnInputEmittor starts binPath scoped to a single InputDeviceType (the
// injector process is per-device-type, the way the Machine keeps one
// emittor per entry of its inputEmittors map).
func SpawnInputEmittor(loop *netloop.Loop, binPath string, deviceType uint8) (*InputEmittor, error) {
	pipe, err := loop.Spawn(binPath, "--device-type", strconv.Itoa(int(deviceType)))
	if err != nil {
		return nil, err
	}
	return &InputEmittor{pipe: pipe}, nil
}

// EmitEvent writes the triple; ok reports whether the pipe accepted all 12
// bytes -- the process may already have exited.
func (e *InputEmittor) EmitEvent(typ, code uint32, value int32) (ok bool) {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], typ)
	binary.BigEndian.PutUint32(buf[4:8], code)
	binary.BigEndian.PutUint32(buf[8:12], uint32(value))
	n, err := e.pipe.Write(buf[:])
	return err == nil && n == len(buf)
}

// Close terminates the injector process.
func (e *InputEmittor) Close() error {
	return e.pipe.Kill()
}
