package netloop

import (
	"io"
	"os/exec"
	"sync"
)

// Pipe wraps a spawned child process: its stdout is delivered through
// OnReceived and its termination through OnExit, both posted onto the loop
// so they never race the rest of a session's callbacks. This backs every
// external collaborator treated as a child process: the confirm dialog, the
// input injector, and the file copy helper.
type Pipe struct {
	loop *Loop
	cmd  *exec.Cmd
	in   io.WriteCloser

	OnReceived func(buf []byte)
	OnExit     func(exitCode int, signaled bool)

	once sync.Once
}

// Spawn starts argv[0] with the remaining elements as arguments and begins
// reading its stdout. The process's stdin is available via Write.
func (l *Loop) Spawn(argv ...string) (*Pipe, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Pipe{loop: l, cmd: cmd, in: stdin}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := append([]byte{}, buf[:n]...)
				l.Post(func() {
					if p.OnReceived != nil {
						p.OnReceived(chunk)
					}
				})
			}
			if err != nil {
				break
			}
		}
		waitErr := cmd.Wait()
		exitCode, signaled := exitInfo(waitErr)
		l.Post(func() {
			if p.OnExit != nil {
				p.OnExit(exitCode, signaled)
			}
		})
	}()

	return p, nil
}

// Write sends bytes to the child's stdin, used to deliver the 12-byte input
// event triples to the injector.
func (p *Pipe) Write(b []byte) (int, error) {
	return p.in.Write(b)
}

// Detach stops delivering OnExit and abandons the process without killing
// it: if the Machine tears down first, the process keeps running but
// nothing observes it finishing.
func (p *Pipe) Detach() {
	p.once.Do(func() {
		p.OnExit = nil
		p.OnReceived = nil
	})
}

// Kill terminates the process immediately, used when tearing down a
// long-lived collaborator (the input injector, the confirm dialog) rather
// than one that must be allowed to finish (the file copy).
func (p *Pipe) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func exitInfo(err error) (code int, signaled bool) {
	if err == nil {
		return 0, false
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), exitErr.ExitCode() < 0
	}
	return -1, false
}
