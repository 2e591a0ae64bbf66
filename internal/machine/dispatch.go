package machine

import (
	"github.com/linuxdeepin/dde-cooperation/internal/buffer"
	"github.com/linuxdeepin/dde-cooperation/internal/frame"
)

// onReceived is the Paired-session read callback: drain the buffer through
// the framed codec, dispatching one decoded Message to its handler at a
// time, in arrival order. An ILLEGAL frame or a variant this dispatcher
// does not recognize closes the connection; the dispatcher is a total
// pattern match whose default arm tears down the session rather than
// silently drop bytes.
func (m *Machine) onReceived(buf *buffer.Buffer) {
	for {
		msg, consumed, status, _ := frame.Decode(buf.Data())
		switch status {
		case frame.StatusPartial:
			return
		case frame.StatusIllegal:
			m.log.Errorf("illegal frame, closing connection")
			m.closeConnection()
			return
		}
		buf.Retrieve(consumed)
		m.dispatch(msg)
	}
}

func (m *Machine) dispatch(msg frame.Message) {
	switch msg.Variant {
	case frame.VariantPairRequest:
		m.onInboundPairRequest(msg.PairRequest)
	case frame.VariantPairResponse:
		m.onPairResponse(msg.PairResponse)
	case frame.VariantServiceOnOffNotification:
		m.handleServiceOnOff(msg.ServiceOnOffNotification)
	case frame.VariantDeviceSharingStartRequest:
		m.handleDeviceSharingStartRequest(msg.DeviceSharingStartRequest)
	case frame.VariantDeviceSharingStartResponse:
		m.handleDeviceSharingStartResponse(msg.DeviceSharingStartResponse)
	case frame.VariantDeviceSharingStopRequest:
		m.handleDeviceSharingStopRequest(msg.DeviceSharingStopRequest)
	case frame.VariantDeviceSharingStopResponse:
		// no handler contract; stopping is implicit.
	case frame.VariantInputEventRequest:
		m.handleInputEventRequest(msg.InputEventRequest)
	case frame.VariantInputEventResponse:
		// fire-and-forget from the sender's perspective; nothing to do.
	case frame.VariantFlowDirectionNtf:
		m.handleFlowDirectionNtf(msg.FlowDirectionNtf)
	case frame.VariantFlowRequest:
		m.handleFlowRequest(msg.FlowRequest)
	case frame.VariantFlowResponse:
		// kept for schema symmetry only; no handler contract.
	case frame.VariantFsRequest:
		m.handleFsRequest(msg.FsRequest)
	case frame.VariantFsResponse:
		m.handleFsResponse(msg.FsResponse)
	case frame.VariantFsSendFileRequest:
		m.handleFsSendFileRequest(msg.FsSendFileRequest)
	case frame.VariantFsSendFileResponse:
		// no handler contract; the requester waits for FsSendFileResult.
	case frame.VariantFsSendFileResult:
		m.handleFsSendFileResult(msg.FsSendFileResult)
	case frame.VariantClipboardNotify:
		m.handleClipboardNotify(msg.ClipboardNotify)
	case frame.VariantClipboardGetContentRequest:
		m.handleClipboardGetContentRequest(msg.ClipboardGetContentRequest)
	case frame.VariantClipboardGetContentResponse:
		m.handleClipboardGetContentResponse(msg.ClipboardGetContentResponse)
	default:
		m.log.Errorf("unknown variant %d, closing connection", msg.Variant)
		m.closeConnection()
	}
}
