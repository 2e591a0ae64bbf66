package netloop

import (
	"net"
	"testing"
	"time"

	"github.com/linuxdeepin/dde-cooperation/internal/buffer"
	"github.com/linuxdeepin/dde-cooperation/internal/logging"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(logging.New(logging.LevelSilent, "test"))
	go l.Run()
	t.Cleanup(l.Stop)
	return l
}

func TestPostRunsOnLoopGoroutine(t *testing.T) {
	l := newTestLoop(t)
	done := make(chan struct{})
	l.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted callback never ran")
	}
}

func TestTimerOneshotFiresOnce(t *testing.T) {
	l := newTestLoop(t)
	fires := make(chan struct{}, 4)
	timer := l.NewTimer(func() { fires <- struct{}{} })
	timer.Oneshot(10)

	select {
	case <-fires:
	case <-time.After(time.Second):
		t.Fatal("oneshot timer never fired")
	}
	select {
	case <-fires:
		t.Fatal("oneshot timer fired more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimerPeriodicFiresRepeatedly(t *testing.T) {
	l := newTestLoop(t)
	fires := make(chan struct{}, 8)
	timer := l.NewTimer(func() { fires <- struct{}{} })
	timer.Start(10)
	defer timer.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-fires:
		case <-time.After(time.Second):
			t.Fatalf("periodic timer did not fire %d times", i+1)
		}
	}
}

func TestTimerStopPreventsFurtherFires(t *testing.T) {
	l := newTestLoop(t)
	fires := make(chan struct{}, 8)
	timer := l.NewTimer(func() { fires <- struct{}{} })
	timer.Start(10)
	<-fires
	timer.Stop()

	select {
	case <-fires:
		t.Fatal("timer fired after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStreamRoundTripOverLoopback(t *testing.T) {
	l := newTestLoop(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	connected := make(chan struct{})
	stream := l.Connect(ln.Addr().String())
	stream.OnConnected = func() { close(connected) }
	stream.OnConnectFailed = func(title, msg string) { t.Errorf("unexpected connect failure: %s: %s", title, msg) }

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never connected")
	}

	var serverConn net.Conn
	select {
	case serverConn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
	}
	defer serverConn.Close()

	received := make(chan []byte, 1)
	stream.OnReceived = func(buf *buffer.Buffer) {
		data, ok := buf.Peek(buf.Size())
		if ok {
			received <- append([]byte{}, data...)
			buf.Retrieve(len(data))
		}
	}
	stream.StartRead()

	if _, err := serverConn.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Fatalf("received %q, want %q", data, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never received bytes")
	}

	closed := make(chan struct{})
	stream.OnClosed = func() { close(closed) }
	serverConn.Close()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClosed never fired after peer closed")
	}
}

func TestWakeSchedulesOntoLoop(t *testing.T) {
	l := newTestLoop(t)
	wake := l.NewWake()
	done := make(chan struct{})

	go wake.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wake-scheduled closure never ran")
	}
}
