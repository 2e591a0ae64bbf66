// Package frame implements the length-prefixed, tagged-union message framing
// that every paired peer speaks: a fixed 16-byte header followed by a body
// whose shape is picked by the variant tag at the start of the body.
package frame

// Variant identifies which payload a Message carries. It is the wire
// discriminant for the tagged union described by the schema.
type Variant uint16

const (
	VariantUnknown Variant = iota
	VariantPairRequest
	VariantPairResponse
	VariantServiceOnOffNotification
	VariantDeviceSharingStartRequest
	VariantDeviceSharingStartResponse
	VariantDeviceSharingStopRequest
	VariantDeviceSharingStopResponse
	VariantInputEventRequest
	VariantInputEventResponse
	VariantFlowDirectionNtf
	VariantFlowRequest
	VariantFlowResponse
	VariantFsRequest
	VariantFsResponse
	VariantFsSendFileRequest
	VariantFsSendFileResponse
	VariantFsSendFileResult
	VariantClipboardNotify
	VariantClipboardGetContentRequest
	VariantClipboardGetContentResponse
)

func (v Variant) String() string {
	switch v {
	case VariantPairRequest:
		return "PairRequest"
	case VariantPairResponse:
		return "PairResponse"
	case VariantServiceOnOffNotification:
		return "ServiceOnOffNotification"
	case VariantDeviceSharingStartRequest:
		return "DeviceSharingStartRequest"
	case VariantDeviceSharingStartResponse:
		return "DeviceSharingStartResponse"
	case VariantDeviceSharingStopRequest:
		return "DeviceSharingStopRequest"
	case VariantDeviceSharingStopResponse:
		return "DeviceSharingStopResponse"
	case VariantInputEventRequest:
		return "InputEventRequest"
	case VariantInputEventResponse:
		return "InputEventResponse"
	case VariantFlowDirectionNtf:
		return "FlowDirectionNtf"
	case VariantFlowRequest:
		return "FlowRequest"
	case VariantFlowResponse:
		return "FlowResponse"
	case VariantFsRequest:
		return "FsRequest"
	case VariantFsResponse:
		return "FsResponse"
	case VariantFsSendFileRequest:
		return "FsSendFileRequest"
	case VariantFsSendFileResponse:
		return "FsSendFileResponse"
	case VariantFsSendFileResult:
		return "FsSendFileResult"
	case VariantClipboardNotify:
		return "ClipboardNotify"
	case VariantClipboardGetContentRequest:
		return "ClipboardGetContentRequest"
	case VariantClipboardGetContentResponse:
		return "ClipboardGetContentResponse"
	default:
		return "Unknown"
	}
}

// OS enumerates the peer operating systems carried in DeviceInfo.
type OS uint8

const (
	OSUOS OS = iota
	OSLinux
	OSWindows
	OSMacOS
	OSAndroid
	OSOther
)

// Compositor enumerates the peer display server carried in DeviceInfo.
type Compositor uint8

const (
	CompositorX11 Compositor = iota
	CompositorWayland
	CompositorNone
)

// InputDeviceType enumerates which input emittor an InputEventRequest targets.
type InputDeviceType uint8

const (
	InputDeviceKeyboard InputDeviceType = iota
	InputDeviceMouse
	InputDeviceTouchpad
)

// Direction enumerates the screen edge a shared cursor flows across.
type Direction uint8

const (
	DirectionTop Direction = iota
	DirectionBottom
	DirectionLeft
	DirectionRight
)

// Opposite mirrors the direction the way a FlowDirectionNtf is mirrored by
// its recipient: TOP<->BOTTOM, LEFT<->RIGHT.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionTop:
		return DirectionBottom
	case DirectionBottom:
		return DirectionTop
	case DirectionLeft:
		return DirectionRight
	case DirectionRight:
		return DirectionLeft
	default:
		return d
	}
}

// DeviceInfo is the immutable identity record exchanged during pairing.
type DeviceInfo struct {
	UUID       string
	Name       string
	OS         OS
	Compositor Compositor
}

type PairRequest struct {
	Key  string
	Info DeviceInfo
}

type PairResponse struct {
	Agree bool
	Key   string
	Info  DeviceInfo
}

type ServiceOnOffNotification struct {
	SharedClipboardOn bool
	SharedDevicesOn   bool
}

type DeviceSharingStartRequest struct {
	Serial uint32
}

type DeviceSharingStartResponse struct {
	Serial uint32
	Accept bool
}

type DeviceSharingStopRequest struct{}

// DeviceSharingStopResponse is sent in reply to a DeviceSharingStopRequest,
// but no handler acts on receiving it.
type DeviceSharingStopResponse struct{}

type InputEventRequest struct {
	Serial     uint32
	DeviceType InputDeviceType
	Type       uint32
	Code       uint32
	Value      int32
}

type InputEventResponse struct {
	Serial  uint32
	Success bool
}

type FlowDirectionNtf struct {
	Direction Direction
}

type FlowRequest struct {
	Direction Direction
	X         int32
	Y         int32
}

// FlowResponse exists on the wire but carries no handler contract; kept for
// schema symmetry with FlowRequest.
type FlowResponse struct{}

type FsRequest struct{}

type FsResponse struct {
	Accepted bool
	Port     uint16
}

type FsSendFileRequest struct {
	Serial uint32
	Path   string
}

type FsSendFileResponse struct {
	Serial   uint32
	Accepted bool
}

type FsSendFileResult struct {
	Serial uint32
	Path   string
	Result bool
}

type ClipboardNotify struct {
	Targets []string
}

type ClipboardGetContentRequest struct {
	Target string
}

type ClipboardGetContentResponse struct {
	Target  string
	Content []byte
}

// Message is the tagged union: exactly one of the pointer fields matching
// Variant is non-nil. The dispatcher switches on Variant, never on which
// field is set, so a decoded-but-defaulted body (see Decode) still carries
// a usable (zero-valued) payload.
type Message struct {
	Variant Variant

	PairRequest                 *PairRequest
	PairResponse                *PairResponse
	ServiceOnOffNotification    *ServiceOnOffNotification
	DeviceSharingStartRequest   *DeviceSharingStartRequest
	DeviceSharingStartResponse  *DeviceSharingStartResponse
	DeviceSharingStopRequest    *DeviceSharingStopRequest
	DeviceSharingStopResponse   *DeviceSharingStopResponse
	InputEventRequest           *InputEventRequest
	InputEventResponse          *InputEventResponse
	FlowDirectionNtf            *FlowDirectionNtf
	FlowRequest                 *FlowRequest
	FlowResponse                *FlowResponse
	FsRequest                   *FsRequest
	FsResponse                  *FsResponse
	FsSendFileRequest           *FsSendFileRequest
	FsSendFileResponse          *FsSendFileResponse
	FsSendFileResult            *FsSendFileResult
	ClipboardNotify             *ClipboardNotify
	ClipboardGetContentRequest  *ClipboardGetContentRequest
	ClipboardGetContentResponse *ClipboardGetContentResponse
}
