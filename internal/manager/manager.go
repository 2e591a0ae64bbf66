// Package manager implements the daemon-wide peer registry: one Machine per
// known peer, the single active device-sharing session, flow-direction
// routing, and the clipboard-ownership bridge. Locking follows
// device.go's convention of several small embedded-mutex structs rather than
// one coarse lock, each documented with the order it must be acquired in
// relative to the others.
package manager

import (
	"net"
	"sync"

	"github.com/linuxdeepin/dde-cooperation/internal/discovery"
	"github.com/linuxdeepin/dde-cooperation/internal/frame"
	"github.com/linuxdeepin/dde-cooperation/internal/logging"
	"github.com/linuxdeepin/dde-cooperation/internal/machine"
	"github.com/linuxdeepin/dde-cooperation/internal/netloop"
	"github.com/linuxdeepin/dde-cooperation/internal/ratelimit"
)

// ClipboardSource is the out-of-scope collaborator that reads the local
// desktop clipboard's content for a target on demand. A Manager with none
// wired answers every ReadClipboardContent with nil content.
type ClipboardSource interface {
	ReadContent(target string) []byte
}

// FlowListener is the out-of-scope UI-bridge collaborator told when a
// shared-input cursor crosses a screen boundary, so the desktop shell can
// switch which peer's pointer is authoritative.
type FlowListener interface {
	FlowChanged(from *machine.Machine, direction frame.Direction, x, y int32)
}

// beaconTransport is the narrow surface Manager needs from a beacon socket,
// satisfied structurally by *discovery.Socket. Named here so a test can
// supply an in-memory fake instead of binding the real beacon UDP port.
type beaconTransport interface {
	ReadBeacon(buf []byte) (discovery.Beacon, net.IP, error)
	SendTo(b discovery.Beacon, addr net.IP) error
	Close() error
}

// Manager is the peer registry. Machine depends on it only through the
// narrow machine.ManagerHandle interface; Manager holds *machine.Machine
// values directly and satisfies that interface, so the two packages never
// import each other's concrete types both ways.
type Manager struct {
	log       logging.Logger
	loop      *netloop.Loop
	cfg       machine.Config
	local     machine.LocalIdentity
	localPort uint16

	beacon  beaconTransport
	limiter *ratelimit.Limiter

	// peers is locked before sharing, which is locked before clipboard, the
	// order every method below that touches more than one follows.
	peers struct {
		sync.RWMutex
		byUUID map[string]*machine.Machine
	}

	sharing struct {
		sync.Mutex
		active *machine.Machine
	}

	clipboard struct {
		sync.Mutex
		ownerUUID string
		targets   []string
		source    ClipboardSource
	}

	flowMu       sync.Mutex
	flowListener FlowListener

	sweep *sweeper

	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a Manager bound to loop, ready to track peers once Run starts
// its beacon and sweep goroutines.
func New(loop *netloop.Loop, log logging.Logger, cfg machine.Config, local machine.LocalIdentity, localPort uint16, beacon beaconTransport) *Manager {
	mgr := &Manager{
		log:       log.WithField("component", "manager"),
		loop:      loop,
		cfg:       cfg,
		local:     local,
		localPort: localPort,
		beacon:    beacon,
		limiter:   ratelimit.New(),
		stopped:   make(chan struct{}),
	}
	mgr.peers.byUUID = make(map[string]*machine.Machine)
	mgr.sweep = newSweeper(mgr)
	return mgr
}

// Run starts the beacon-receive loop and the offline-deadline sweeper. It
// blocks until Close is called; intended to run in its own goroutine from
// main, the way RoutineReceiveIncoming runs in a dedicated goroutine per
// bind.
func (mgr *Manager) Run() {
	go mgr.sweep.run()
	buf := make([]byte, 2048)
	for {
		b, ip, err := mgr.beacon.ReadBeacon(buf)
		select {
		case <-mgr.stopped:
			return
		default:
		}
		if err != nil {
			mgr.log.Errorf("beacon read: %v", err)
			continue
		}
		if !mgr.limiter.Allow(ip) {
			continue
		}
		mgr.loop.Post(func() { mgr.onBeacon(ip, b) })
	}
}

// Close stops the sweeper and rate limiter and tears down every tracked
// Machine.
func (mgr *Manager) Close() {
	mgr.stopOnce.Do(func() { close(mgr.stopped) })
	if mgr.beacon != nil {
		mgr.beacon.Close()
	}
	mgr.sweep.stop()
	mgr.limiter.Close()

	mgr.peers.Lock()
	peers := mgr.peers.byUUID
	mgr.peers.byUUID = make(map[string]*machine.Machine)
	mgr.peers.Unlock()

	for _, m := range peers {
		m.Close()
	}
}

// SetClipboardSource wires the local clipboard-read collaborator.
func (mgr *Manager) SetClipboardSource(src ClipboardSource) {
	mgr.clipboard.Lock()
	defer mgr.clipboard.Unlock()
	mgr.clipboard.source = src
}

// SetFlowListener wires the UI-bridge collaborator for flow-direction
// changes.
func (mgr *Manager) SetFlowListener(l FlowListener) {
	mgr.flowMu.Lock()
	defer mgr.flowMu.Unlock()
	mgr.flowListener = l
}

// Peer looks up a tracked Machine by uuid.
func (mgr *Manager) Peer(uuid string) (*machine.Machine, bool) {
	mgr.peers.RLock()
	defer mgr.peers.RUnlock()
	m, ok := mgr.peers.byUUID[uuid]
	return m, ok
}

// Peers returns a snapshot of every tracked Machine.
func (mgr *Manager) Peers() []*machine.Machine {
	mgr.peers.RLock()
	defer mgr.peers.RUnlock()
	out := make([]*machine.Machine, 0, len(mgr.peers.byUUID))
	for _, m := range mgr.peers.byUUID {
		out = append(out, m)
	}
	return out
}

// Connect asks the named peer's Machine to open its outbound connection, the
// "connect request (from UI or auto)" responsibility.
func (mgr *Manager) Connect(uuid string) bool {
	m, ok := mgr.Peer(uuid)
	if !ok {
		return false
	}
	m.Connect()
	return true
}

// onBeacon is the "on beacon received" handler: create a Machine for an
// unknown uuid, or refresh an existing one's address and reset its liveness
// timers. Runs on the loop goroutine.
func (mgr *Manager) onBeacon(srcIP net.IP, b discovery.Beacon) {
	ep := discovery.FromBeacon(srcIP, b)

	mgr.peers.Lock()
	m, ok := mgr.peers.byUUID[b.Info.UUID]
	if !ok {
		m = machine.New(mgr.loop, mgr, mgr.log, mgr.cfg, b.Info.UUID, mgr.local)
		mgr.peers.byUUID[b.Info.UUID] = m
	}
	mgr.peers.Unlock()

	m.UpdateInfo(ep.IP, ep.Port, b.Info)
	m.ReceivedBeacon()
	mgr.sweep.touch(b.Info.UUID, m)
}

// --- machine.ManagerHandle ---

// Ping emits a directed beacon at ip, re-probing a peer whose Machine
// couldn't connect or whose liveness window is about to close.
func (mgr *Manager) Ping(ip net.IP) {
	if mgr.beacon == nil {
		return
	}
	if err := mgr.beacon.SendTo(discovery.Beacon{
		Key:     discovery.ScanKey,
		Info:    mgr.local.Info,
		TCPPort: mgr.localPort,
	}, ip); err != nil {
		mgr.log.Errorf("ping %s: %v", ip, err)
	}
}

// StartDeviceSharing enforces the "one active device-sharing session"
// invariant: only the first Machine to ask succeeds until StopDeviceSharing
// releases the slot.
func (mgr *Manager) StartDeviceSharing(m *machine.Machine, isSink bool) bool {
	mgr.sharing.Lock()
	defer mgr.sharing.Unlock()
	if mgr.sharing.active != nil && mgr.sharing.active != m {
		return false
	}
	mgr.sharing.active = m
	return true
}

// StopDeviceSharing releases the active-session slot if m currently holds
// it; releasing a slot held by a different Machine is a no-op, since a
// stale/duplicate stop notification must not evict the real holder.
func (mgr *Manager) StopDeviceSharing(m *machine.Machine) {
	mgr.sharing.Lock()
	defer mgr.sharing.Unlock()
	if mgr.sharing.active == m {
		mgr.sharing.active = nil
	}
}

// RouteFlow forwards a crossed-boundary notification to the UI-bridge
// collaborator, if one is wired.
func (mgr *Manager) RouteFlow(from *machine.Machine, direction frame.Direction, x, y int32) {
	mgr.flowMu.Lock()
	l := mgr.flowListener
	mgr.flowMu.Unlock()
	if l != nil {
		l.FlowChanged(from, direction, x, y)
	}
}

// SetClipboardOwner records which Machine most recently announced new
// clipboard content and notifies every other tracked peer so a shared
// clipboard stays consistent across the LAN, not just between the two
// Machines directly involved in the change.
func (mgr *Manager) SetClipboardOwner(m *machine.Machine, targets []string) {
	mgr.clipboard.Lock()
	mgr.clipboard.ownerUUID = m.UUID()
	mgr.clipboard.targets = targets
	mgr.clipboard.Unlock()

	for _, peer := range mgr.Peers() {
		if peer == m {
			continue
		}
		peer.NotifyClipboardChanged(targets)
	}
}

// ReadClipboardContent delegates to the wired local clipboard-read
// collaborator, if any; with none wired, the callback receives nil content,
// since there is no real clipboard backing it in this build.
func (mgr *Manager) ReadClipboardContent(target string, callback func(content []byte)) {
	mgr.clipboard.Lock()
	src := mgr.clipboard.source
	mgr.clipboard.Unlock()

	if src == nil {
		callback(nil)
		return
	}
	callback(src.ReadContent(target))
}

// Remove evicts a Machine from the peer map and tears it down, the "offline
// window elapsed -> removes Machine" action the offline-timer row names.
func (mgr *Manager) Remove(uuid string) {
	mgr.peers.Lock()
	m, ok := mgr.peers.byUUID[uuid]
	if ok {
		delete(mgr.peers.byUUID, uuid)
	}
	mgr.peers.Unlock()
	if !ok {
		return
	}

	mgr.sweep.forget(uuid)
	mgr.StopDeviceSharing(m)
	m.Close()
}
