// Package discovery implements the UDP beacon collaborator: a small
// textual/structured advertisement carrying the scan key, a peer's
// DeviceInfo, and its TCP listen port. Scan transmission and reception is
// the external collaborator named "ping/scan beacon hook"; this package
// gives it a concrete, named interface and wire format, not a
// reimplementation of the GUI/capture pieces that stay out of scope.
package discovery

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/linuxdeepin/dde-cooperation/internal/frame"
)

// ScanKey is the literal shared secret that identifies daemons of the same
// product family; required verbatim in PairRequest/PairResponse and in
// every beacon.
const ScanKey = "UOS-COOPERATION"

// BeaconPort is the well-known UDP port beacons are broadcast to.
const BeaconPort = 48899

// Beacon is the payload carried by a discovery broadcast.
type Beacon struct {
	Key     string
	Info    frame.DeviceInfo
	TCPPort uint16
}

var errShortBeacon = errors.New("discovery: beacon too short")
var errBadKey = errors.New("discovery: scan key mismatch")

// Encode serializes a Beacon using the same field primitives as the
// session frame codec (length-prefixed strings, big-endian integers), kept
// separate from internal/frame because a beacon is never length-prefixed
// with the 16-byte session header -- it is one complete UDP datagram.
func Encode(b Beacon) []byte {
	out := make([]byte, 0, 128)
	out = appendString(out, b.Key)
	out = appendString(out, b.Info.UUID)
	out = appendString(out, b.Info.Name)
	out = append(out, byte(b.Info.OS), byte(b.Info.Compositor))
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], b.TCPPort)
	out = append(out, portBuf[:]...)
	return out
}

// Decode parses a Beacon datagram. It returns errBadKey if the scan key
// doesn't match ScanKey, which is grounds for the Manager to ignore the
// sender entirely.
func Decode(data []byte) (Beacon, error) {
	key, rest, err := readString(data)
	if err != nil {
		return Beacon{}, err
	}
	if key != ScanKey {
		return Beacon{}, errBadKey
	}
	uuid, rest, err := readString(rest)
	if err != nil {
		return Beacon{}, err
	}
	name, rest, err := readString(rest)
	if err != nil {
		return Beacon{}, err
	}
	if len(rest) < 4 {
		return Beacon{}, errShortBeacon
	}
	osKind := frame.OS(rest[0])
	compositor := frame.Compositor(rest[1])
	port := binary.BigEndian.Uint16(rest[2:4])
	return Beacon{
		Key: key,
		Info: frame.DeviceInfo{
			UUID:       uuid,
			Name:       name,
			OS:         osKind,
			Compositor: compositor,
		},
		TCPPort: port,
	}, nil
}

func appendString(out []byte, s string) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	out = append(out, lenBuf[:]...)
	return append(out, s...)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, errShortBeacon
	}
	n := int(binary.BigEndian.Uint32(data[0:4]))
	data = data[4:]
	if n < 0 || n > len(data) {
		return "", nil, errShortBeacon
	}
	return string(data[:n]), data[n:], nil
}

// Socket is a UDP socket configured for sending and receiving beacons on
// the local network, with broadcast enabled via golang.org/x/net/ipv4 the
// way the wireguard-go reference configures its own UDP bind sockets at the
// ipv4/ipv6 control-message level.
type Socket struct {
	conn   *net.UDPConn
	packet *ipv4.PacketConn
}

// Listen opens a UDP socket on BeaconPort and enables broadcast reception.
// SO_REUSEADDR is set via Control -- net.ListenUDP alone doesn't expose it --
// so a restarted daemon can rebind the well-known beacon port immediately
// instead of waiting out a lingering socket from the previous process.
func Listen() (*Socket, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	pc0, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", BeaconPort))
	if err != nil {
		return nil, err
	}
	conn := pc0.(*net.UDPConn)
	pc := ipv4.NewPacketConn(conn)
	// Ask the kernel to report which local interface each beacon arrived
	// on, so a multi-homed host can tell its own loopback-reflected
	// broadcasts from ones that genuinely came from another device.
	if err := pc.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst, true); err != nil {
		conn.Close()
		return nil, err
	}
	return &Socket{conn: conn, packet: pc}, nil
}

// Close releases the socket.
func (s *Socket) Close() error { return s.conn.Close() }

// Broadcast sends a beacon to the LAN broadcast address.
func (s *Socket) Broadcast(b Beacon) error {
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: BeaconPort}
	_, err := s.conn.WriteTo(Encode(b), dst)
	return err
}

// SendTo targets a single address, used by Manager.Ping to re-probe a
// specific peer instead of broadcasting to the whole LAN.
func (s *Socket) SendTo(b Beacon, addr net.IP) error {
	dst := &net.UDPAddr{IP: addr, Port: BeaconPort}
	_, err := s.conn.WriteTo(Encode(b), dst)
	return err
}

// ReadBeacon blocks for the next inbound beacon and the IP it arrived from.
func (s *Socket) ReadBeacon(buf []byte) (Beacon, net.IP, error) {
	n, _, src, err := s.packet.ReadFrom(buf)
	if err != nil {
		return Beacon{}, nil, err
	}
	udpSrc, _ := src.(*net.UDPAddr)
	var ip net.IP
	if udpSrc != nil {
		ip = udpSrc.IP
	}
	b, err := Decode(buf[:n])
	if err != nil {
		return Beacon{}, ip, err
	}
	return b, ip, nil
}
