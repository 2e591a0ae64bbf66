package machine

import (
	"net"
	"sync"

	"github.com/linuxdeepin/dde-cooperation/internal/frame"
	"github.com/linuxdeepin/dde-cooperation/internal/logging"
	"github.com/linuxdeepin/dde-cooperation/internal/netloop"
	"github.com/linuxdeepin/dde-cooperation/internal/wrappers"
)

// Config carries the timings and external-binary paths a Machine needs,
// defaulted by DefaultConfig but overridable for tests.
type Config struct {
	PingIntervalMs       int
	OfflineWindowMs      int
	KeepaliveIdleSeconds int

	ConfirmDialogBin string
	InputInjectorBin string
	DataDir          string
	ReceivedFilesDir string
}

// DefaultConfig returns the production timings: 10s ping, 25s offline
// window, 20s TCP keepalive idle.
func DefaultConfig() Config {
	return Config{
		PingIntervalMs:       10_000,
		OfflineWindowMs:      25_000,
		KeepaliveIdleSeconds: 20,
		ConfirmDialogBin:     "/usr/lib/deepin-cooperation/confirm-dialog",
		InputInjectorBin:     "/usr/lib/deepin-cooperation/input-injector",
		DataDir:              "/var/lib/dde-cooperation",
		ReceivedFilesDir:     "/var/lib/dde-cooperation/received",
	}
}

// FuseMounter is the external collaborator that dials a peer's FuseServer
// port, builds the fuseutil.FileSystem that answers reads against that
// connection, and mounts it. A Machine with no mounter tracks mount state
// but never actually mounts -- useful for tests that only exercise the
// handshake.
type FuseMounter interface {
	Mount(ip net.IP, port uint16, mountpoint string) (*wrappers.FuseClient, error)
}

// ClipboardSink is where a Machine delivers clipboard content it received
// from the peer after path rewriting, in the ClipboardGetContentResponse
// handler. The real sink (the desktop clipboard, over the inter-process
// control bus) is an external collaborator.
type ClipboardSink interface {
	SetContent(target string, content []byte)
}

// ManagerHandle is everything a Machine needs from its owning Manager: the
// cross-peer effects the Manager owns (enforcing the single active
// device-sharing session, routing flow-back notifications, clipboard
// ownership, re-pinging an address, and removing a Machine whose offline
// timer fired). Machine depends on this interface, not the concrete
// Manager, so the two packages don't import each other -- Manager holds
// *Machine values and satisfies ManagerHandle; Machine never imports
// manager.
type ManagerHandle interface {
	Ping(ip net.IP)
	StartDeviceSharing(m *Machine, isSink bool) bool
	StopDeviceSharing(m *Machine)
	RouteFlow(from *Machine, direction frame.Direction, x, y int32)
	SetClipboardOwner(m *Machine, targets []string)
	ReadClipboardContent(target string, callback func(content []byte))
	Remove(uuid string)
}

// Machine is the per-peer session entity: identity, last-known address, the
// owned connection and timers, the wrappers to external collaborators, and
// the flags that track what's currently active on top of Paired.
type Machine struct {
	mu sync.Mutex

	uuid       string
	name       string
	os         frame.OS
	compositor frame.Compositor

	ip   net.IP
	port uint16

	state State

	loop    *netloop.Loop
	manager ManagerHandle
	log     logging.Logger
	cfg     Config

	conn *netloop.Stream

	confirmDialog *wrappers.ConfirmDialog
	inputEmittors map[frame.InputDeviceType]*wrappers.InputEmittor
	fuseServer    *wrappers.FuseServer
	fuseClient    *wrappers.FuseClient
	copyOp        *wrappers.CopyOp

	pingTimer    *netloop.Timer
	offlineTimer *netloop.Timer

	connected       bool
	deviceSharing   bool
	sharedClipboard bool
	mounted         bool
	direction       frame.Direction

	remoteSharedClipboardOn bool
	remoteSharedDevicesOn   bool

	pairInFlight      bool
	outboundAbandoned bool

	local       LocalIdentity
	notifier    wrappers.Notifier
	clipboard   ClipboardSink
	fuseMounter FuseMounter
}

// SetFuseMounter wires the collaborator that actually mounts a peer's FUSE
// export once FsResponse(accepted=true, port) arrives.
func (m *Machine) SetFuseMounter(fm FuseMounter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fuseMounter = fm
}

func (m *Machine) fuseMounterOf() FuseMounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fuseMounter
}

// SetNotifier wires the desktop-notification collaborator used by the
// FsSendFileRequest/FsSendFileResult handlers. Optional: a Machine with no
// notifier simply skips the notification.
func (m *Machine) SetNotifier(n wrappers.Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// SetClipboardSink wires the local clipboard-write collaborator used by the
// ClipboardGetContentResponse handler. Optional: a Machine with no sink
// drops received clipboard content after rewriting.
func (m *Machine) SetClipboardSink(c ClipboardSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clipboard = c
}

func (m *Machine) notifierOf() wrappers.Notifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifier
}

func (m *Machine) clipboardSink() ClipboardSink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clipboard
}

// New creates a Machine for a newly observed peer. It starts in Idle with
// both liveness timers armed, since the peer is not yet connected.
func New(loop *netloop.Loop, manager ManagerHandle, log logging.Logger, cfg Config, uuid string, local LocalIdentity) *Machine {
	m := &Machine{
		uuid:          uuid,
		state:         StateIdle,
		loop:          loop,
		manager:       manager,
		log:           log.WithField("peer", uuid),
		cfg:           cfg,
		inputEmittors: make(map[frame.InputDeviceType]*wrappers.InputEmittor),
		local:         local,
	}
	m.pingTimer = loop.NewTimer(m.onPingTimer)
	m.offlineTimer = loop.NewTimer(m.onOfflineTimer)
	m.pingTimer.Start(cfg.PingIntervalMs)
	m.offlineTimer.Oneshot(cfg.OfflineWindowMs)
	return m
}

// UUID is the Machine's stable peer identity and its key in the Manager's
// peer map.
func (m *Machine) UUID() string { return m.uuid }

// State reports the current FSM state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) setState(s State) {
	m.state = s
	m.log.Debugf("state -> %s", s)
}

// Connected reports whether the Machine currently owns a live stream.
func (m *Machine) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// DeviceSharing reports whether this Machine currently holds the daemon's
// single device-sharing session.
func (m *Machine) DeviceSharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceSharing
}

// Info returns the peer's DeviceInfo as last known.
func (m *Machine) Info() frame.DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return frame.DeviceInfo{UUID: m.uuid, Name: m.name, OS: m.os, Compositor: m.compositor}
}

// UpdateInfo records a refreshed ip/port/DeviceInfo, as the Manager does on
// every received beacon.
func (m *Machine) UpdateInfo(ip net.IP, port uint16, info frame.DeviceInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ip = ip
	m.port = port
	m.name = info.Name
	m.os = info.OS
	m.compositor = info.Compositor
}

// Endpoint reports the last-known (ip, port) to dial for an outbound
// connect.
func (m *Machine) Endpoint() (net.IP, uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ip, m.port
}

// send is a no-op with a warning if the connection has already been torn
// down, otherwise handed to the stream's write queue.
func (m *Machine) send(msg frame.Message) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		m.log.Errorf("sendMessage(%s) dropped: no connection", msg.Variant)
		return
	}
	conn.Write(frame.Encode(msg))
}

// Close tears down every owned resource: the connection, both timers, the
// input emittors, the confirm dialog, and whichever of fuseServer/fuseClient
// is active. Every owned timer and owned stream is closed before the
// Machine is dropped.
func (m *Machine) Close() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	confirmDialog := m.confirmDialog
	m.confirmDialog = nil
	fuseServer := m.fuseServer
	m.fuseServer = nil
	fuseClient := m.fuseClient
	m.fuseClient = nil
	emittors := m.inputEmittors
	m.inputEmittors = make(map[frame.InputDeviceType]*wrappers.InputEmittor)
	copyOp := m.copyOp
	m.copyOp = nil
	m.connected = false
	m.deviceSharing = false
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if confirmDialog != nil {
		confirmDialog.Cancel()
	}
	if fuseServer != nil {
		fuseServer.Close()
	}
	if fuseClient != nil {
		fuseClient.Exit()
	}
	for _, e := range emittors {
		e.Close()
	}
	if copyOp != nil {
		copyOp.Detach()
	}

	m.pingTimer.Close()
	m.offlineTimer.Close()
}
