package frame

import "errors"

// Status reports the outcome of a Decode attempt.
type Status int

const (
	// StatusOK means a full message was parsed and consumed.
	StatusOK Status = iota
	// StatusPartial means buf does not yet hold a full frame; the caller
	// should accumulate more bytes from the stream and retry. Nothing was
	// consumed.
	StatusPartial
	// StatusIllegal means buf's header magic didn't match or its length
	// exceeds MaxBodySize; the connection must be closed, this is terminal.
	StatusIllegal
)

// ErrIllegalFrame is returned by Decode alongside StatusIllegal for callers
// that prefer to check with errors.Is.
var ErrIllegalFrame = errors.New("frame: illegal magic")

// Encode serializes msg as a complete frame: header followed by body.
func Encode(msg Message) []byte {
	body := encodeBody(msg)
	out := make([]byte, HeaderSize+len(body))
	putHeader(out, len(body))
	copy(out[HeaderSize:], body)
	return out
}

// Decode inspects buf (without requiring ownership of it) and reports
// whether a full frame is present. On StatusOK, consumed is the number of
// bytes the caller should retrieve from its buffer; decode never consumes
// more than one frame.
func Decode(buf []byte) (msg Message, consumed int, status Status, err error) {
	h, ok := PeekHeader(buf)
	if !ok {
		return Message{}, 0, StatusPartial, nil
	}
	if !h.Valid() {
		return Message{}, 0, StatusIllegal, ErrIllegalFrame
	}
	if h.Length > MaxBodySize {
		return Message{}, 0, StatusIllegal, ErrIllegalFrame
	}
	total := HeaderSize + int(h.Length)
	if len(buf) < total {
		return Message{}, 0, StatusPartial, nil
	}
	body := buf[HeaderSize:total]
	msg = decodeBody(body)
	return msg, total, StatusOK, nil
}

func encodeBody(msg Message) []byte {
	w := &writer{}
	w.putUint16(uint16(msg.Variant))
	switch msg.Variant {
	case VariantPairRequest:
		p := orZero(msg.PairRequest)
		w.putString(p.Key)
		w.putDeviceInfo(p.Info)
	case VariantPairResponse:
		p := orZero(msg.PairResponse)
		w.putBool(p.Agree)
		w.putString(p.Key)
		w.putDeviceInfo(p.Info)
	case VariantServiceOnOffNotification:
		p := orZero(msg.ServiceOnOffNotification)
		w.putBool(p.SharedClipboardOn)
		w.putBool(p.SharedDevicesOn)
	case VariantDeviceSharingStartRequest:
		p := orZero(msg.DeviceSharingStartRequest)
		w.putUint32(p.Serial)
	case VariantDeviceSharingStartResponse:
		p := orZero(msg.DeviceSharingStartResponse)
		w.putUint32(p.Serial)
		w.putBool(p.Accept)
	case VariantDeviceSharingStopRequest, VariantDeviceSharingStopResponse:
		// no fields
	case VariantInputEventRequest:
		p := orZero(msg.InputEventRequest)
		w.putUint32(p.Serial)
		w.putUint8(uint8(p.DeviceType))
		w.putUint32(p.Type)
		w.putUint32(p.Code)
		w.putInt32(p.Value)
	case VariantInputEventResponse:
		p := orZero(msg.InputEventResponse)
		w.putUint32(p.Serial)
		w.putBool(p.Success)
	case VariantFlowDirectionNtf:
		p := orZero(msg.FlowDirectionNtf)
		w.putUint8(uint8(p.Direction))
	case VariantFlowRequest:
		p := orZero(msg.FlowRequest)
		w.putUint8(uint8(p.Direction))
		w.putInt32(p.X)
		w.putInt32(p.Y)
	case VariantFlowResponse:
		// no fields
	case VariantFsRequest:
		// no fields
	case VariantFsResponse:
		p := orZero(msg.FsResponse)
		w.putBool(p.Accepted)
		w.putUint16(p.Port)
	case VariantFsSendFileRequest:
		p := orZero(msg.FsSendFileRequest)
		w.putUint32(p.Serial)
		w.putString(p.Path)
	case VariantFsSendFileResponse:
		p := orZero(msg.FsSendFileResponse)
		w.putUint32(p.Serial)
		w.putBool(p.Accepted)
	case VariantFsSendFileResult:
		p := orZero(msg.FsSendFileResult)
		w.putUint32(p.Serial)
		w.putString(p.Path)
		w.putBool(p.Result)
	case VariantClipboardNotify:
		p := orZero(msg.ClipboardNotify)
		w.putStrings(p.Targets)
	case VariantClipboardGetContentRequest:
		p := orZero(msg.ClipboardGetContentRequest)
		w.putString(p.Target)
	case VariantClipboardGetContentResponse:
		p := orZero(msg.ClipboardGetContentResponse)
		w.putString(p.Target)
		w.putBytes(p.Content)
	}
	return w.buf
}

// decodeBody is total: it never returns an error. A body that is shorter
// than the variant's declared shape yields defaulted trailing fields (see
// reader in wire.go), and an unrecognized variant tag yields a Message with
// only Variant set so the dispatcher's default arm can close the connection.
func decodeBody(body []byte) Message {
	r := &reader{buf: body}
	variant := Variant(r.getUint16())
	msg := Message{Variant: variant}
	switch variant {
	case VariantPairRequest:
		msg.PairRequest = &PairRequest{Key: r.getString(), Info: r.getDeviceInfo()}
	case VariantPairResponse:
		msg.PairResponse = &PairResponse{Agree: r.getBool(), Key: r.getString(), Info: r.getDeviceInfo()}
	case VariantServiceOnOffNotification:
		msg.ServiceOnOffNotification = &ServiceOnOffNotification{
			SharedClipboardOn: r.getBool(),
			SharedDevicesOn:   r.getBool(),
		}
	case VariantDeviceSharingStartRequest:
		msg.DeviceSharingStartRequest = &DeviceSharingStartRequest{Serial: r.getUint32()}
	case VariantDeviceSharingStartResponse:
		msg.DeviceSharingStartResponse = &DeviceSharingStartResponse{Serial: r.getUint32(), Accept: r.getBool()}
	case VariantDeviceSharingStopRequest:
		msg.DeviceSharingStopRequest = &DeviceSharingStopRequest{}
	case VariantDeviceSharingStopResponse:
		msg.DeviceSharingStopResponse = &DeviceSharingStopResponse{}
	case VariantInputEventRequest:
		msg.InputEventRequest = &InputEventRequest{
			Serial:     r.getUint32(),
			DeviceType: InputDeviceType(r.getUint8()),
			Type:       r.getUint32(),
			Code:       r.getUint32(),
			Value:      r.getInt32(),
		}
	case VariantInputEventResponse:
		msg.InputEventResponse = &InputEventResponse{Serial: r.getUint32(), Success: r.getBool()}
	case VariantFlowDirectionNtf:
		msg.FlowDirectionNtf = &FlowDirectionNtf{Direction: Direction(r.getUint8())}
	case VariantFlowRequest:
		msg.FlowRequest = &FlowRequest{Direction: Direction(r.getUint8()), X: r.getInt32(), Y: r.getInt32()}
	case VariantFlowResponse:
		msg.FlowResponse = &FlowResponse{}
	case VariantFsRequest:
		msg.FsRequest = &FsRequest{}
	case VariantFsResponse:
		msg.FsResponse = &FsResponse{Accepted: r.getBool(), Port: r.getUint16()}
	case VariantFsSendFileRequest:
		msg.FsSendFileRequest = &FsSendFileRequest{Serial: r.getUint32(), Path: r.getString()}
	case VariantFsSendFileResponse:
		msg.FsSendFileResponse = &FsSendFileResponse{Serial: r.getUint32(), Accepted: r.getBool()}
	case VariantFsSendFileResult:
		msg.FsSendFileResult = &FsSendFileResult{Serial: r.getUint32(), Path: r.getString(), Result: r.getBool()}
	case VariantClipboardNotify:
		msg.ClipboardNotify = &ClipboardNotify{Targets: r.getStrings()}
	case VariantClipboardGetContentRequest:
		msg.ClipboardGetContentRequest = &ClipboardGetContentRequest{Target: r.getString()}
	case VariantClipboardGetContentResponse:
		msg.ClipboardGetContentResponse = &ClipboardGetContentResponse{Target: r.getString(), Content: r.getBytes()}
	}
	return msg
}

func orZero[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
