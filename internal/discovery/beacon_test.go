package discovery

import (
	"testing"

	"github.com/linuxdeepin/dde-cooperation/internal/frame"
)

func TestBeaconRoundTrip(t *testing.T) {
	b := Beacon{
		Key:     ScanKey,
		Info:    frame.DeviceInfo{UUID: "A", Name: "alice-pc", OS: frame.OSLinux, Compositor: frame.CompositorWayland},
		TCPPort: 7342,
	}
	decoded, err := Decode(Encode(b))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != b {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, b)
	}
}

func TestBeaconRejectsWrongKey(t *testing.T) {
	b := Beacon{Key: "some-other-product", Info: frame.DeviceInfo{UUID: "A"}, TCPPort: 1}
	_, err := Decode(Encode(b))
	if err != errBadKey {
		t.Fatalf("expected errBadKey, got %v", err)
	}
}

func TestBeaconShortDatagramIsRejected(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error decoding a too-short datagram")
	}
}
