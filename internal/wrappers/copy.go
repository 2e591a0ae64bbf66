package wrappers

import "github.com/linuxdeepin/dde-cooperation/internal/netloop"

// Notifier is the external desktop-notification collaborator used by the
// FsSendFileRequest handler ("emit a desktop notification").
type Notifier interface {
	Notify(title, body string)
}

// CopyOp shells out to the fixed child-process interface (`/bin/cp <src>
// <dst>`, exit 0 = success). The copy process is not cancellable mid-flight:
// if the caller tears down before onDone runs, it must call Pipe.Detach via
// the returned handle rather than expect Kill to be safe to call blindly.
type CopyOp struct {
	pipe *netloop.Pipe
}

// CopyFile starts the copy and delivers success/failure to onDone exactly
// once, on the loop goroutine.
func CopyFile(loop *netloop.Loop, src, dst string, onDone func(success bool)) (*CopyOp, error) {
	pipe, err := loop.Spawn("/bin/cp", src, dst)
	if err != nil {
		return nil, err
	}
	pipe.OnExit = func(exitCode int, signaled bool) {
		onDone(exitCode == 0 && !signaled)
	}
	return &CopyOp{pipe: pipe}, nil
}

// Detach abandons the copy without killing it, used when the owning Machine
// tears down while the process is still running.
func (c *CopyOp) Detach() {
	c.pipe.Detach()
}
