package netloop

import (
	"net"
	"sync"
	"time"

	"github.com/linuxdeepin/dde-cooperation/internal/buffer"
)

// Stream wraps a TCP connection the way conn.Bind wraps a UDP socket:
// completion callbacks for connect, a read loop that delivers accumulated
// bytes, a write queue, and a close callback that fires exactly once.
type Stream struct {
	loop *Loop
	conn net.Conn

	OnConnected     func()
	OnConnectFailed func(title, msg string)
	OnReceived      func(buf *buffer.Buffer)
	OnClosed        func()

	mu        sync.Mutex
	buf       *buffer.Buffer
	writeCh   chan []byte
	closed    bool
	closeDone chan struct{}
}

// NewStream wraps an already-established net.Conn (the inbound-accept case).
func (l *Loop) NewStream(conn net.Conn) *Stream {
	s := &Stream{
		loop:      l,
		conn:      conn,
		buf:       buffer.New(),
		writeCh:   make(chan []byte, 64),
		closeDone: make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Connect dials addr asynchronously; OnConnected or OnConnectFailed fires on
// the loop goroutine once the dial resolves.
func (l *Loop) Connect(addr string) *Stream {
	s := &Stream{
		loop:      l,
		writeCh:   make(chan []byte, 64),
		closeDone: make(chan struct{}),
	}
	go func() {
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			l.Post(func() {
				if s.OnConnectFailed != nil {
					s.OnConnectFailed("connect failed", err.Error())
				}
			})
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.buf = buffer.New()
		s.mu.Unlock()
		go s.writeLoop()
		l.Post(func() {
			if s.OnConnected != nil {
				s.OnConnected()
			}
		})
	}()
	return s
}

// StartRead begins delivering bytes read from the socket through OnReceived,
// one call per read, with all previously buffered-but-unconsumed bytes
// still in the Buffer (the dispatcher's drain loop is expected to Retrieve
// only what it decodes).
func (s *Stream) StartRead() {
	go func() {
		tmp := make([]byte, 64*1024)
		for {
			n, err := s.conn.Read(tmp)
			if n > 0 {
				s.mu.Lock()
				s.buf.Append(tmp[:n])
				buf := s.buf
				s.mu.Unlock()
				s.loop.Post(func() {
					if s.OnReceived != nil {
						s.OnReceived(buf)
					}
				})
			}
			if err != nil {
				s.fireClosed()
				return
			}
		}
	}()
}

func (s *Stream) fireClosed() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.closeDone)
	s.loop.Post(func() {
		if s.OnClosed != nil {
			s.OnClosed()
		}
	})
}

// Write queues bytes for the socket. No ordering is guaranteed beyond
// per-connection FIFO: writes drain strictly in the order Write is called.
func (s *Stream) Write(p []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	select {
	case s.writeCh <- p:
	case <-s.closeDone:
	}
}

func (s *Stream) writeLoop() {
	for {
		select {
		case p := <-s.writeCh:
			if _, err := s.conn.Write(p); err != nil {
				s.fireClosed()
				return
			}
		case <-s.closeDone:
			return
		}
	}
}

// Close tears down the socket. OnClosed fires at most once, whether Close
// was called locally or the peer closed first.
func (s *Stream) Close() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	s.fireClosed()
}

// TCPNoDelay disables Nagle's algorithm, as the wireguard-go reference does
// immediately after a handshake-carrying connection is established.
func (s *Stream) TCPNoDelay() error {
	if tc, ok := s.conn.(*net.TCPConn); ok {
		return tc.SetNoDelay(true)
	}
	return nil
}

// Keepalive enables or disables TCP keepalive with the given idle interval,
// used after pairing completes so liveness detection moves from the
// ping/offline timers to the transport itself (20s idle).
func (s *Stream) Keepalive(enabled bool, idleSeconds int) error {
	tc, ok := s.conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetKeepAlive(enabled); err != nil {
		return err
	}
	if enabled {
		return tc.SetKeepAlivePeriod(time.Duration(idleSeconds) * time.Second)
	}
	return nil
}

// RemoteAddr reports the peer's address, or nil before the connection has
// been established.
func (s *Stream) RemoteAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.RemoteAddr()
}
