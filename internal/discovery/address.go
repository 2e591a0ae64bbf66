package discovery

import (
	"fmt"
	"net"
)

// Endpoint is a resolved peer address: the (ip, tcp-listen-port) pair a
// Machine dials for its outbound connect, refreshed on every beacon.
type Endpoint struct {
	IP net.IP
	Port uint16
}

// String renders the endpoint the way net.JoinHostPort would, for dialing
// and for log messages.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP, e.Port)
}

// FromBeacon builds the Endpoint a Machine should dial from a beacon and
// the source address it was observed on.
func FromBeacon(sourceIP net.IP, b Beacon) Endpoint {
	return Endpoint{IP: sourceIP, Port: b.TCPPort}
}
