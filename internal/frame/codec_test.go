package frame

import (
	"bytes"
	"testing"
)

func sampleMessages() []Message {
	return []Message{
		{
			Variant:     VariantPairRequest,
			PairRequest: &PairRequest{Key: "UOS-COOPERATION", Info: DeviceInfo{UUID: "A", Name: "alice-pc", OS: OSLinux, Compositor: CompositorWayland}},
		},
		{
			Variant:      VariantPairResponse,
			PairResponse: &PairResponse{Agree: true, Key: "UOS-COOPERATION", Info: DeviceInfo{UUID: "B", Name: "bob-pc", OS: OSUOS, Compositor: CompositorX11}},
		},
		{
			Variant:                  VariantServiceOnOffNotification,
			ServiceOnOffNotification: &ServiceOnOffNotification{SharedClipboardOn: false, SharedDevicesOn: true},
		},
		{
			Variant:           VariantInputEventRequest,
			InputEventRequest: &InputEventRequest{Serial: 7, DeviceType: InputDeviceMouse, Type: 2, Code: 0, Value: 5},
		},
		{
			Variant:            VariantInputEventResponse,
			InputEventResponse: &InputEventResponse{Serial: 7, Success: true},
		},
		{
			Variant:           VariantFsSendFileRequest,
			FsSendFileRequest: &FsSendFileRequest{Serial: 3, Path: "/x.txt"},
		},
		{
			Variant:         VariantClipboardNotify,
			ClipboardNotify: &ClipboardNotify{Targets: []string{"text/plain", "x-special/gnome-copied-files"}},
		},
		{
			Variant: VariantClipboardGetContentResponse,
			ClipboardGetContentResponse: &ClipboardGetContentResponse{
				Target:  "x-special/gnome-copied-files",
				Content: []byte("copy\nfile:///docs/x\n/abs/y\n"),
			},
		},
	}
}

// Frame round-trip: decode(encode(m)) == m for each sample message.
func TestRoundTrip(t *testing.T) {
	for _, m := range sampleMessages() {
		encoded := Encode(m)
		decoded, consumed, status, err := Decode(encoded)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", m.Variant, err)
		}
		if status != StatusOK {
			t.Fatalf("%s: expected StatusOK, got %v", m.Variant, status)
		}
		if consumed != len(encoded) {
			t.Fatalf("%s: consumed %d, want %d", m.Variant, consumed, len(encoded))
		}
		if decoded.Variant != m.Variant {
			t.Fatalf("%s: variant mismatch after round trip: %v", m.Variant, decoded.Variant)
		}
		reencoded := Encode(decoded)
		if !bytes.Equal(reencoded, encoded) {
			t.Fatalf("%s: re-encoding the decoded message produced different bytes", m.Variant)
		}
	}
}

// Partial robustness: every byte-prefix of an encoded frame yields PARTIAL
// until the full frame has arrived, then the message exactly once, with any
// trailing bytes left for the next decode.
func TestPartialRobustness(t *testing.T) {
	m := Message{
		Variant:     VariantPairRequest,
		PairRequest: &PairRequest{Key: "UOS-COOPERATION", Info: DeviceInfo{UUID: "A", Name: "a", OS: OSLinux, Compositor: CompositorX11}},
	}
	encoded := Encode(m)
	trailer := []byte{0xAB, 0xCD, 0xEF}

	for i := 0; i < len(encoded); i++ {
		_, consumed, status, err := Decode(encoded[:i])
		if err != nil {
			t.Fatalf("prefix %d: unexpected error: %v", i, err)
		}
		if status != StatusPartial {
			t.Fatalf("prefix %d: expected PARTIAL, got %v", i, status)
		}
		if consumed != 0 {
			t.Fatalf("prefix %d: PARTIAL must not consume bytes", i)
		}
	}

	withTrailer := append(append([]byte{}, encoded...), trailer...)
	decoded, consumed, status, err := Decode(withTrailer)
	if err != nil || status != StatusOK {
		t.Fatalf("full frame with trailer: got status=%v err=%v", status, err)
	}
	if consumed != len(encoded) {
		t.Fatalf("full frame with trailer: consumed %d, want %d (trailer must remain)", consumed, len(encoded))
	}
	if decoded.PairRequest == nil || decoded.PairRequest.Key != "UOS-COOPERATION" {
		t.Fatalf("decoded message mismatch: %+v", decoded)
	}
	remaining := withTrailer[consumed:]
	if !bytes.Equal(remaining, trailer) {
		t.Fatalf("leftover bytes after decode = %v, want %v", remaining, trailer)
	}
}

// Magic rejection: any buffer whose first 8 bytes differ from the magic
// yields ILLEGAL regardless of the length field.
func TestMagicRejection(t *testing.T) {
	m := Message{Variant: VariantDeviceSharingStopRequest, DeviceSharingStopRequest: &DeviceSharingStopRequest{}}
	encoded := Encode(m)
	corrupted := append([]byte{}, encoded...)
	corrupted[0] = 'X'

	_, consumed, status, err := Decode(corrupted)
	if status != StatusIllegal {
		t.Fatalf("expected ILLEGAL, got %v", status)
	}
	if err == nil {
		t.Fatalf("expected an error alongside ILLEGAL status")
	}
	if consumed != 0 {
		t.Fatalf("ILLEGAL must not report bytes consumed")
	}
}

func TestUnknownVariantDoesNotPanic(t *testing.T) {
	msg := Message{Variant: Variant(0xFFFF)}
	encoded := Encode(msg)
	decoded, _, status, err := Decode(encoded)
	if err != nil || status != StatusOK {
		t.Fatalf("unknown variant should still parse as a frame: status=%v err=%v", status, err)
	}
	if decoded.Variant != Variant(0xFFFF) {
		t.Fatalf("variant tag should survive even when unrecognized: %v", decoded.Variant)
	}
}

func TestTruncatedBodyDefaultsRatherThanErrors(t *testing.T) {
	full := Encode(Message{
		Variant:     VariantPairRequest,
		PairRequest: &PairRequest{Key: "UOS-COOPERATION", Info: DeviceInfo{UUID: "A", Name: "alice", OS: OSLinux, Compositor: CompositorWayland}},
	})
	// Truncate the body to its first 4 bytes and rewrite the header length
	// to match, so the frame is complete but the PairRequest body inside it
	// is short -- this exercises defaulted trailing fields, not the PARTIAL
	// path.
	short := append([]byte{}, full[:HeaderSize+4]...)
	putHeader(short, 4)

	decoded, consumed, status, err := Decode(short)
	if err != nil || status != StatusOK {
		t.Fatalf("truncated body must decode, not error: status=%v err=%v", status, err)
	}
	if consumed != len(short) {
		t.Fatalf("consumed %d, want %d", consumed, len(short))
	}
	if decoded.PairRequest == nil {
		t.Fatalf("expected a defaulted PairRequest, got nil")
	}
}
