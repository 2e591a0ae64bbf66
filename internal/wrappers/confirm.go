// Package wrappers bridges the session core to the external collaborator
// processes: the confirmation dialog, the input injector, the FUSE
// mount/serve pair, and the file-copy helper. Each wrapper is handed plain
// callback closures rather than a back-reference to its owning Machine --
// under Go's GC there is no need for a weak-pointer workaround, so the
// simpler idiom is used instead (see DESIGN.md).
package wrappers

import (
	"github.com/linuxdeepin/dde-cooperation/internal/netloop"
)

// Confirm decisions delivered over the dialog's stdout, one byte.
const (
	ConfirmReject byte = 0
	ConfirmAccept byte = 1
)

// ConfirmDialog spawns the external confirmation-dialog process and reports
// the single decision byte it writes before exiting.
type ConfirmDialog struct {
	pipe *netloop.Pipe
}

// SpawnConfirmDialog starts binPath with the prompting peer's name on argv
// and delivers the user's decision to onDecision exactly once, on the loop
// goroutine. If the dialog process exits without writing a byte (killed,
// crashed), onDecision is never called; the caller is expected to also
// react to the Machine's own teardown.
func SpawnConfirmDialog(loop *netloop.Loop, binPath, peerName string, onDecision func(accept bool)) (*ConfirmDialog, error) {
	pipe, err := loop.Spawn(binPath, "--peer-name", peerName)
	if err != nil {
		return nil, err
	}
	delivered := false
	pipe.OnReceived = func(buf []byte) {
		if delivered || len(buf) == 0 {
			return
		}
		delivered = true
		onDecision(buf[0] == ConfirmAccept)
	}
	return &ConfirmDialog{pipe: pipe}, nil
}

// Cancel kills the dialog process before it has responded, used when the
// owning Machine is torn down while the local user is still being asked.
func (c *ConfirmDialog) Cancel() error {
	c.pipe.Detach()
	return c.pipe.Kill()
}
