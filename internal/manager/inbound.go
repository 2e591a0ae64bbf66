package manager

import (
	"net"

	"github.com/linuxdeepin/dde-cooperation/internal/machine"
)

// AcceptConn handles a freshly accepted TCP connection on the daemon's
// listen port. The peer hasn't identified itself by uuid yet -- only its
// source address is known -- so the inbound socket is matched against the
// Machine whose last beacon came from that address (this assumes a peer
// has already been observed via a beacon before either side dials). A
// source address with no matching Machine is rejected outright: there is
// nothing to pair against. A Machine already Connecting/AwaitingPair is
// still a valid match -- that's the simultaneous-outbound-connect race
// AcceptInbound's tie-break resolves; only a Machine already Paired or
// waiting on a user decision is not a candidate.
//
// Every connection accepted here is, by construction, one that has not yet
// completed pairing (AcceptInbound only ever leads into a PairRequest
// exchange), so gating it against the same per-source-IP limiter used for
// beacon reads rate-limits the inbound PairRequest path as well: a source
// address that has exhausted its budget has its connection closed before
// any frame is read off it.
func (mgr *Manager) AcceptConn(conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		conn.Close()
		return
	}
	ip := net.ParseIP(host)

	if !mgr.limiter.Allow(ip) {
		mgr.log.Errorf("rate-limiting inbound connection from %s", ip)
		conn.Close()
		return
	}

	target := mgr.findAcceptCandidateByIP(ip)
	if target == nil {
		mgr.log.Errorf("rejecting inbound connection from unrecognized address %s", ip)
		conn.Close()
		return
	}

	stream := mgr.loop.NewStream(conn)
	mgr.loop.Post(func() { target.AcceptInbound(stream) })
}

func (mgr *Manager) findAcceptCandidateByIP(ip net.IP) *machine.Machine {
	for _, m := range mgr.Peers() {
		peerIP, _ := m.Endpoint()
		if peerIP == nil || !peerIP.Equal(ip) {
			continue
		}
		switch m.State() {
		case machine.StateIdle, machine.StateConnecting, machine.StateAwaitingPair:
			return m
		}
	}
	return nil
}
