package machine

import (
	"net"
	"strconv"

	"github.com/linuxdeepin/dde-cooperation/internal/discovery"
	"github.com/linuxdeepin/dde-cooperation/internal/frame"
	"github.com/linuxdeepin/dde-cooperation/internal/netloop"
	"github.com/linuxdeepin/dde-cooperation/internal/wrappers"
)

// LocalIdentity is the daemon's own DeviceInfo and scan key, sent in
// PairRequest/PairResponse. Supplied by whoever drives the Machine (the
// Manager).
type LocalIdentity struct {
	Info frame.DeviceInfo
	Key  string // must equal discovery.ScanKey on both peers
}

// Connect starts an outbound connection to the peer's last-known endpoint:
// the Idle -(outbound connect)-> Connecting transition.
func (m *Machine) Connect() {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	ip, port := m.ip, m.port
	m.setState(StateConnecting)
	m.mu.Unlock()

	endpoint := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
	stream := m.loop.Connect(endpoint)
	stream.OnConnected = func() { m.onOutboundConnected(stream) }
	stream.OnConnectFailed = func(title, msg string) { m.onConnectFailed(title, msg) }
}

// onOutboundConnected is the Connecting -(stream connected)-> AwaitingPair
// transition: wire the connection, stop the liveness timers (the stream
// itself now carries liveness once paired), and send PairRequest.
func (m *Machine) onOutboundConnected(stream *netloop.Stream) {
	m.mu.Lock()
	if m.outboundAbandoned {
		m.outboundAbandoned = false
		m.mu.Unlock()
		stream.Close()
		return
	}
	m.mu.Unlock()

	m.initConnection(stream)

	m.mu.Lock()
	m.setState(StateAwaitingPair)
	m.pairInFlight = true
	m.mu.Unlock()

	m.pingTimer.Stop()
	m.offlineTimer.Stop()

	m.send(frame.Message{
		Variant: frame.VariantPairRequest,
		PairRequest: &frame.PairRequest{
			Key:  m.local.Key,
			Info: m.local.Info,
		},
	})
}

// onConnectFailed is the Connecting -(connect failed)-> Idle transition:
// re-discover the peer rather than retry the same dial blindly.
func (m *Machine) onConnectFailed(title, msg string) {
	m.log.Errorf("connect failed: %s: %s", title, msg)
	m.mu.Lock()
	ip := m.ip
	m.setState(StateIdle)
	m.pairInFlight = false
	m.mu.Unlock()
	if ip != nil {
		m.manager.Ping(ip)
	}
}

// AcceptInbound handles a freshly accepted stream that has not yet sent
// anything: Idle -(inbound stream)-> wait for the PairRequest that the
// dispatcher will route once the connection is wired up.
//
// If both peers dialed each other at once, this Machine is already past
// Idle when the inbound stream arrives. The tie-break: the side whose
// local identity sorts lower keeps its own outbound attempt and rejects
// the inbound one; the other side abandons its outbound attempt (closed
// here if already connected, or by onOutboundConnected on arrival if the
// dial is still in flight) and accepts inbound instead.
func (m *Machine) AcceptInbound(stream *netloop.Stream) {
	var abandoned *netloop.Stream
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateAwaitingPair {
		if m.local.Info.UUID < m.uuid {
			m.mu.Unlock()
			stream.Close()
			return
		}
		if m.state == StateAwaitingPair {
			abandoned = m.conn
		} else {
			m.outboundAbandoned = true
		}
		m.setState(StateIdle)
		m.pairInFlight = false
	} else if m.state != StateIdle {
		m.mu.Unlock()
		stream.Close()
		return
	}
	m.mu.Unlock()

	if abandoned != nil {
		abandoned.OnReceived = nil
		abandoned.OnClosed = nil
		abandoned.Close()
	}
	m.initConnection(stream)
	m.pingTimer.Stop()
	m.offlineTimer.Stop()
}

// onInboundPairRequest is the Idle -(inbound stream + PairRequest)->
// AwaitingUserConfirm transition: spawn a confirmation dialog bound to the
// decision callback.
func (m *Machine) onInboundPairRequest(req *frame.PairRequest) {
	if req == nil || req.Key != discovery.ScanKey {
		m.log.Errorf("pair request with wrong scan key, closing")
		m.closeConnection()
		return
	}

	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	m.name = req.Info.Name
	m.os = req.Info.OS
	m.compositor = req.Info.Compositor
	m.setState(StateAwaitingUserConfirm)
	m.pairInFlight = true
	m.mu.Unlock()

	dialog, err := m.spawnConfirmDialog(req.Info.Name)
	if err != nil {
		m.log.Errorf("failed to spawn confirm dialog: %v", err)
		m.rejectPair()
		return
	}
	m.mu.Lock()
	m.confirmDialog = dialog
	m.mu.Unlock()
}

// OnUserDecision is the user's ACCEPT/REJECT response to an inbound pair
// request, delivered by the confirm-dialog wrapper.
func (m *Machine) OnUserDecision(accept bool) {
	m.mu.Lock()
	if m.state != StateAwaitingUserConfirm {
		m.mu.Unlock()
		return
	}
	m.confirmDialog = nil
	m.mu.Unlock()

	if accept {
		m.acceptPair()
	} else {
		m.rejectPair()
	}
}

func (m *Machine) acceptPair() {
	m.send(frame.Message{
		Variant: frame.VariantPairResponse,
		PairResponse: &frame.PairResponse{
			Agree: true,
			Key:   m.local.Key,
			Info:  m.local.Info,
		},
	})
	m.mu.Lock()
	m.setState(StatePaired)
	m.connected = true
	m.pairInFlight = false
	m.mu.Unlock()
}

func (m *Machine) rejectPair() {
	m.send(frame.Message{
		Variant:      frame.VariantPairResponse,
		PairResponse: &frame.PairResponse{Agree: false},
	})
	m.mu.Lock()
	m.setState(StateIdle)
	m.connected = false
	m.pairInFlight = false
	m.mu.Unlock()
	m.closeConnection()
	m.pingTimer.Start(m.cfg.PingIntervalMs)
	m.offlineTimer.Oneshot(m.cfg.OfflineWindowMs)
}

// onPairResponse handles AwaitingPair -(PairResponse)-> {Paired, Idle}.
func (m *Machine) onPairResponse(resp *frame.PairResponse) {
	m.mu.Lock()
	if m.state != StateAwaitingPair {
		m.mu.Unlock()
		return
	}
	m.pairInFlight = false
	if resp != nil && resp.Agree {
		m.setState(StatePaired)
		m.connected = true
		m.mu.Unlock()
		m.send(frame.Message{
			Variant: frame.VariantServiceOnOffNotification,
			ServiceOnOffNotification: &frame.ServiceOnOffNotification{
				SharedClipboardOn: false,
				SharedDevicesOn:   false,
			},
		})
		return
	}
	m.setState(StateIdle)
	m.connected = false
	m.mu.Unlock()
	m.closeConnection()
}

// initConnection wires a stream's callbacks, applies the Paired-adjacent
// socket options (nodelay, keepalive), and stops the pre-pairing liveness
// timers.
func (m *Machine) initConnection(stream *netloop.Stream) {
	m.mu.Lock()
	m.conn = stream
	m.mu.Unlock()

	stream.OnReceived = m.onReceived
	stream.OnClosed = m.onStreamClosed

	stream.TCPNoDelay()
	stream.Keepalive(true, m.cfg.KeepaliveIdleSeconds)
	stream.StartRead()
}

// onStreamClosed is the Paired -(stream closed)-> Idle transition: tear
// down fuse client/server, stop sharing if this Machine held it, and
// re-arm the pre-pairing liveness timers.
func (m *Machine) onStreamClosed() {
	m.mu.Lock()
	wasSharing := m.deviceSharing
	m.deviceSharing = false
	m.connected = false
	m.mounted = false
	m.sharedClipboard = false
	fuseServer := m.fuseServer
	m.fuseServer = nil
	fuseClient := m.fuseClient
	m.fuseClient = nil
	m.conn = nil
	m.setState(StateIdle)
	m.mu.Unlock()

	if fuseServer != nil {
		fuseServer.Close()
	}
	if fuseClient != nil {
		fuseClient.Exit()
	}
	if wasSharing {
		m.manager.StopDeviceSharing(m)
	}

	m.pingTimer.Start(m.cfg.PingIntervalMs)
	m.offlineTimer.Oneshot(m.cfg.OfflineWindowMs)
}

func (m *Machine) closeConnection() {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// onPingTimer is the Paired -(ping period elapsed)-> Paired self-loop: ask
// the Manager to re-probe the address. It also fires in Idle, which is the
// normal "keep discovering this peer" heartbeat before any pairing exists.
func (m *Machine) onPingTimer() {
	m.mu.Lock()
	ip := m.ip
	m.mu.Unlock()
	if ip != nil {
		m.manager.Ping(ip)
	}
}

// onOfflineTimer is the Idle -(offline window elapsed)-> removed transition:
// the Manager sweeps this Machine out of its peer map.
func (m *Machine) onOfflineTimer() {
	m.mu.Lock()
	uuid := m.uuid
	connected := m.connected
	m.mu.Unlock()
	if connected {
		// A live, paired connection's liveness is the stream's keepalive,
		// not this timer; a stray fire while Paired is a no-op.
		return
	}
	m.manager.Remove(uuid)
}

func (m *Machine) spawnConfirmDialog(peerName string) (*wrappers.ConfirmDialog, error) {
	return wrappers.SpawnConfirmDialog(m.loop, m.cfg.ConfirmDialogBin, peerName, m.OnUserDecision)
}

// ReceivedBeacon resets both liveness timers: "offline window elapsed
// without beacon -> Idle" and the property that a Machine receiving any
// ping resets both timers.
func (m *Machine) ReceivedBeacon() {
	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()
	if connected {
		return
	}
	m.pingTimer.Reset()
	m.offlineTimer.Reset()
}
