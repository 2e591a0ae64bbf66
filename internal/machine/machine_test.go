package machine

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/linuxdeepin/dde-cooperation/internal/frame"
	"github.com/linuxdeepin/dde-cooperation/internal/logging"
	"github.com/linuxdeepin/dde-cooperation/internal/netloop"
)

func newTestLoop(t *testing.T) *netloop.Loop {
	t.Helper()
	l := netloop.New(logging.New(logging.LevelSilent, "test"))
	go l.Run()
	t.Cleanup(l.Stop)
	return l
}

// fakeManager is a minimal ManagerHandle recording the calls a test cares
// about, standing in for the Manager.
type fakeManager struct {
	mu sync.Mutex

	pings           []string
	sharingRequests []*Machine
	sharingAccept   bool
	stopped         []*Machine
	flows           []flowCall
	clipboardOwners []clipboardCall
	removed         []string
}

type flowCall struct {
	direction frame.Direction
	x, y      int32
}

type clipboardCall struct {
	uuid    string
	targets []string
}

func (f *fakeManager) Ping(ip net.IP) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, ip.String())
}

func (f *fakeManager) StartDeviceSharing(m *Machine, isSink bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sharingRequests = append(f.sharingRequests, m)
	return f.sharingAccept
}

func (f *fakeManager) StopDeviceSharing(m *Machine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, m)
}

func (f *fakeManager) RouteFlow(from *Machine, direction frame.Direction, x, y int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flows = append(f.flows, flowCall{direction, x, y})
}

func (f *fakeManager) SetClipboardOwner(m *Machine, targets []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clipboardOwners = append(f.clipboardOwners, clipboardCall{m.UUID(), targets})
}

func (f *fakeManager) ReadClipboardContent(target string, callback func(content []byte)) {
	callback([]byte("content:" + target))
}

func (f *fakeManager) Remove(uuid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, uuid)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PingIntervalMs = 50
	cfg.OfflineWindowMs = 200
	return cfg
}

// pairedSockets builds two Machines over a real loopback TCP connection and
// drives them through a successful handshake, one acting as the outbound
// connector and the other accepting.
func pairedSockets(t *testing.T) (loop *netloop.Loop, a, b *Machine, mgrA, mgrB *fakeManager) {
	t.Helper()
	loop = newTestLoop(t)
	log := logging.New(logging.LevelSilent, "test")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	mgrA = &fakeManager{}
	mgrB = &fakeManager{}

	identA := LocalIdentity{Key: "UOS-COOPERATION", Info: frame.DeviceInfo{UUID: "A", Name: "device-a"}}
	identB := LocalIdentity{Key: "UOS-COOPERATION", Info: frame.DeviceInfo{UUID: "B", Name: "device-b"}}

	a = New(loop, mgrA, log, testConfig(), "B", identA)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	a.UpdateInfo(net.ParseIP("127.0.0.1"), port, frame.DeviceInfo{UUID: "B"})

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	b = New(loop, mgrB, log, testConfig(), "A", identB)

	a.Connect()

	var serverConn net.Conn
	select {
	case serverConn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted a's outbound connect")
	}

	done := make(chan struct{})
	loop.Post(func() {
		stream := loop.NewStream(serverConn)
		b.AcceptInbound(stream)
		close(done)
	})
	<-done

	return loop, a, b, mgrA, mgrB
}

func waitForState(t *testing.T, m *Machine, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("machine never reached state %s, stuck at %s", want, m.State())
}

func TestHandshakeSuccess(t *testing.T) {
	_, a, b, _, _ := pairedSockets(t)

	waitForState(t, b, StateAwaitingUserConfirm, 2*time.Second)
	b.OnUserDecision(true)

	waitForState(t, a, StatePaired, 2*time.Second)
	waitForState(t, b, StatePaired, 2*time.Second)

	if !a.Connected() || !b.Connected() {
		t.Fatal("both machines should be connected after a successful handshake")
	}
}

func TestHandshakeRejection(t *testing.T) {
	_, a, b, _, _ := pairedSockets(t)

	waitForState(t, b, StateAwaitingUserConfirm, 2*time.Second)
	b.OnUserDecision(false)

	waitForState(t, a, StateIdle, 2*time.Second)
	waitForState(t, b, StateIdle, 2*time.Second)

	if a.Connected() {
		t.Fatal("a.Connected() should remain false after rejection")
	}
}

func TestDeviceSharingMutualExclusion(t *testing.T) {
	_, a, b, mgrA, _ := pairedSockets(t)

	waitForState(t, b, StateAwaitingUserConfirm, 2*time.Second)
	b.OnUserDecision(true)
	waitForState(t, a, StatePaired, 2*time.Second)

	mgrA.mu.Lock()
	mgrA.sharingAccept = true
	mgrA.mu.Unlock()

	a.handleDeviceSharingStartResponse(&frame.DeviceSharingStartResponse{Serial: 1, Accept: true})
	if !a.DeviceSharing() {
		t.Fatal("a should hold the sharing session after an accepted start response")
	}

	mgrA.mu.Lock()
	mgrA.sharingAccept = false
	mgrA.mu.Unlock()
	a.handleDeviceSharingStartRequest(&frame.DeviceSharingStartRequest{Serial: 2})

	mgrA.mu.Lock()
	defer mgrA.mu.Unlock()
	if len(mgrA.sharingRequests) != 2 {
		t.Fatalf("expected 2 StartDeviceSharing calls through the manager, got %d", len(mgrA.sharingRequests))
	}
}

// TestSimultaneousConnectTieBreak drives a Machine that has already dialed
// out (Connecting) through an inbound accept for the same peer, exercising
// the "lower uuid wins" tie-break.
func TestSimultaneousConnectTieBreak(t *testing.T) {
	loop := newTestLoop(t)
	log := logging.New(logging.LevelSilent, "test")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	mgr := &fakeManager{}
	// Local identity "z" sorts higher than peer uuid "a": this Machine
	// should lose the tie-break and abandon its own outbound attempt.
	loser := New(loop, mgr, log, testConfig(), "a", LocalIdentity{Key: "UOS-COOPERATION", Info: frame.DeviceInfo{UUID: "z"}})
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	loser.UpdateInfo(net.ParseIP("127.0.0.1"), port, frame.DeviceInfo{UUID: "a"})

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	loser.Connect()
	waitForState(t, loser, StateConnecting, 2*time.Second)

	var serverSideOfOutbound net.Conn
	select {
	case serverSideOfOutbound = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never saw loser's outbound dial")
	}
	_ = serverSideOfOutbound // the peer's end of loser's own outbound dial; unused once abandoned

	// Simulate the peer's inbound connection to `loser` arriving while
	// loser is still Connecting, using a net.Pipe in place of a second real
	// socket.
	local, remote := net.Pipe()
	t.Cleanup(func() { local.Close(); remote.Close() })

	done := make(chan struct{})
	loop.Post(func() {
		stream := loop.NewStream(local)
		loser.AcceptInbound(stream)
		close(done)
	})
	<-done

	waitForState(t, loser, StateIdle, 2*time.Second)
}

func TestFileTransferWithoutFuseClientIsRejected(t *testing.T) {
	_, a, b, _, _ := pairedSockets(t)
	waitForState(t, b, StateAwaitingUserConfirm, 2*time.Second)
	b.OnUserDecision(true)
	waitForState(t, a, StatePaired, 2*time.Second)

	a.handleFsSendFileRequest(&frame.FsSendFileRequest{Serial: 3, Path: "/x.txt"})
	// No assertion on the wire reply content here (covered in handlers_test.go);
	// this only checks that without a FuseClient, no copyOp is started.
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.copyOp != nil {
		t.Fatal("no copy should start without a FuseClient")
	}
}
