package machine

import (
	"path"
	"strings"

	"github.com/linuxdeepin/dde-cooperation/internal/frame"
	"github.com/linuxdeepin/dde-cooperation/internal/wrappers"
)

// targetGnomeCopiedFiles and targetURIList are the two clipboard targets
// the ClipboardNotify/ClipboardGetContentResponse handlers special-case
// for non-UOS peers, whose desktop environments don't natively populate
// text/uri-list from a GNOME-style copied-files selection.
const (
	targetGnomeCopiedFiles = "x-special/gnome-copied-files"
	targetURIList          = "text/uri-list"
)

func (m *Machine) handleServiceOnOff(n *frame.ServiceOnOffNotification) {
	if n == nil {
		return
	}
	m.mu.Lock()
	m.remoteSharedClipboardOn = n.SharedClipboardOn
	m.remoteSharedDevicesOn = n.SharedDevicesOn
	m.mu.Unlock()
}

// handleDeviceSharingStartRequest accepts unconditionally -- the accept
// policy is left to the Manager's single-active-session invariant as the
// real gate, rather than this handler refusing on its own.
func (m *Machine) handleDeviceSharingStartRequest(req *frame.DeviceSharingStartRequest) {
	if req == nil {
		return
	}
	accept := m.manager.StartDeviceSharing(m, true)
	m.send(frame.Message{
		Variant: frame.VariantDeviceSharingStartResponse,
		DeviceSharingStartResponse: &frame.DeviceSharingStartResponse{
			Serial: req.Serial,
			Accept: accept,
		},
	})
	if !accept {
		return
	}
	m.mu.Lock()
	m.deviceSharing = true
	m.direction = frame.DirectionLeft
	m.mu.Unlock()
}

func (m *Machine) handleDeviceSharingStartResponse(resp *frame.DeviceSharingStartResponse) {
	if resp == nil || !resp.Accept {
		return
	}
	m.mu.Lock()
	m.deviceSharing = true
	m.direction = frame.DirectionRight
	m.mu.Unlock()
	m.manager.StartDeviceSharing(m, false)
	m.send(frame.Message{
		Variant:          frame.VariantFlowDirectionNtf,
		FlowDirectionNtf: &frame.FlowDirectionNtf{Direction: frame.DirectionRight},
	})
}

func (m *Machine) handleDeviceSharingStopRequest(_ *frame.DeviceSharingStopRequest) {
	m.mu.Lock()
	m.deviceSharing = false
	m.mu.Unlock()
	m.manager.StopDeviceSharing(m)
	m.send(frame.Message{
		Variant:                   frame.VariantDeviceSharingStopResponse,
		DeviceSharingStopResponse: &frame.DeviceSharingStopResponse{},
	})
}

// handleInputEventRequest looks up the emittor for the request's device
// type, injecting the event if present; InputEventResponse is sent
// unconditionally, success reflecting whether an emittor existed and
// accepted the bytes.
func (m *Machine) handleInputEventRequest(req *frame.InputEventRequest) {
	if req == nil {
		return
	}
	success := false
	m.mu.Lock()
	emittor, ok := m.inputEmittors[req.DeviceType]
	m.mu.Unlock()
	if ok {
		success = emittor.EmitEvent(req.Type, req.Code, req.Value)
	}
	m.send(frame.Message{
		Variant: frame.VariantInputEventResponse,
		InputEventResponse: &frame.InputEventResponse{
			Serial:  req.Serial,
			Success: success,
		},
	})
}

// EnsureInputEmittor spawns the emittor for deviceType on first use, the
// way the Machine's inputEmittors map is populated lazily as sharing
// sessions come and go for different device types.
func (m *Machine) EnsureInputEmittor(deviceType frame.InputDeviceType) (*wrappers.InputEmittor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.inputEmittors[deviceType]; ok {
		return e, nil
	}
	e, err := wrappers.SpawnInputEmittor(m.loop, m.cfg.InputInjectorBin, uint8(deviceType))
	if err != nil {
		return nil, err
	}
	m.inputEmittors[deviceType] = e
	return e, nil
}

func (m *Machine) handleFlowDirectionNtf(n *frame.FlowDirectionNtf) {
	if n == nil {
		return
	}
	m.mu.Lock()
	m.direction = n.Direction.Opposite()
	m.mu.Unlock()
}

func (m *Machine) handleFlowRequest(req *frame.FlowRequest) {
	if req == nil {
		return
	}
	m.manager.RouteFlow(m, req.Direction, req.X, req.Y)
}

// handleFsRequest is the FUSE-server side of the mount handshake: refuse a
// second concurrent server, otherwise bind one on an ephemeral port and
// hand the port back so the peer can dial it.
func (m *Machine) handleFsRequest(_ *frame.FsRequest) {
	m.mu.Lock()
	if m.fuseServer != nil {
		m.mu.Unlock()
		m.send(frame.Message{
			Variant:    frame.VariantFsResponse,
			FsResponse: &frame.FsResponse{Accepted: false, Port: 0},
		})
		return
	}
	m.mu.Unlock()

	server, err := wrappers.StartFuseServer()
	if err != nil {
		m.log.Errorf("fuse server start failed: %v", err)
		m.send(frame.Message{
			Variant:    frame.VariantFsResponse,
			FsResponse: &frame.FsResponse{Accepted: false, Port: 0},
		})
		return
	}
	m.mu.Lock()
	m.fuseServer = server
	m.mu.Unlock()
	m.send(frame.Message{
		Variant:    frame.VariantFsResponse,
		FsResponse: &frame.FsResponse{Accepted: true, Port: server.Port()},
	})
}

// handleFsResponse mounts the peer's export at dataDir/mp once the port is
// known. Building the fuseutil.FileSystem that actually answers reads over
// the connection is an external collaborator; if none is wired, mount
// state is still tracked so the rest of the session logic (the
// FsSendFileRequest "no FuseClient" branch) behaves correctly.
func (m *Machine) handleFsResponse(resp *frame.FsResponse) {
	if resp == nil || !resp.Accepted {
		return
	}
	mountpoint := path.Join(m.cfg.DataDir, "mp")
	mounter := m.fuseMounterOf()
	if mounter == nil {
		m.log.Infof("remote fuse export available on port %d, no mounter wired", resp.Port)
		return
	}
	m.mu.Lock()
	ip := m.ip
	m.mu.Unlock()
	client, err := mounter.Mount(ip, resp.Port, mountpoint)
	if err != nil {
		m.log.Errorf("fuse mount failed: %v", err)
		return
	}
	m.mu.Lock()
	m.fuseClient = client
	m.mounted = true
	m.mu.Unlock()
}

// handleFsSendFileRequest: without a mounted FuseClient there is nothing
// to copy from, so the request is rejected and no FsSendFileResult ever
// follows.
func (m *Machine) handleFsSendFileRequest(req *frame.FsSendFileRequest) {
	if req == nil {
		return
	}
	m.mu.Lock()
	client := m.fuseClient
	m.mu.Unlock()
	if client == nil {
		m.send(frame.Message{
			Variant: frame.VariantFsSendFileResponse,
			FsSendFileResponse: &frame.FsSendFileResponse{
				Serial:   req.Serial,
				Accepted: false,
			},
		})
		return
	}

	m.send(frame.Message{
		Variant: frame.VariantFsSendFileResponse,
		FsSendFileResponse: &frame.FsSendFileResponse{
			Serial:   req.Serial,
			Accepted: true,
		},
	})

	src := path.Join(client.Mountpoint(), req.Path)
	dst := path.Join(m.cfg.ReceivedFilesDir, path.Base(req.Path))
	serial, reqPath := req.Serial, req.Path
	copyOp, err := wrappers.CopyFile(m.loop, src, dst, func(success bool) {
		m.send(frame.Message{
			Variant: frame.VariantFsSendFileResult,
			FsSendFileResult: &frame.FsSendFileResult{
				Serial: serial,
				Path:   reqPath,
				Result: success,
			},
		})
		if n := m.notifierOf(); n != nil {
			if success {
				n.Notify("File received", reqPath)
			} else {
				n.Notify("File transfer failed", reqPath)
			}
		}
	})
	if err != nil {
		m.log.Errorf("copy failed to start: %v", err)
		m.send(frame.Message{
			Variant:          frame.VariantFsSendFileResult,
			FsSendFileResult: &frame.FsSendFileResult{Serial: serial, Path: reqPath, Result: false},
		})
		return
	}
	m.mu.Lock()
	m.copyOp = copyOp
	m.mu.Unlock()
}

func (m *Machine) handleFsSendFileResult(result *frame.FsSendFileResult) {
	if result == nil {
		return
	}
	if n := m.notifierOf(); n != nil {
		if result.Result {
			n.Notify("File sent", result.Path)
		} else {
			n.Notify("File send failed", result.Path)
		}
	}
}

// handleClipboardNotify synthesizes text/uri-list for non-UOS peers when
// the GNOME-style target is present but the standard one isn't, then
// records this Machine as clipboard owner for the (possibly augmented)
// target set.
func (m *Machine) handleClipboardNotify(n *frame.ClipboardNotify) {
	if n == nil {
		return
	}
	targets := n.Targets
	m.mu.Lock()
	nonUOS := m.os != frame.OSUOS
	m.mu.Unlock()
	if nonUOS && containsTarget(targets, targetGnomeCopiedFiles) && !containsTarget(targets, targetURIList) {
		targets = append(append([]string{}, targets...), targetURIList)
	}
	m.manager.SetClipboardOwner(m, targets)
}

// NotifyClipboardChanged sends ClipboardNotify to this peer if it is
// currently paired, the outbound half of the clipboard bridge: the
// Manager calls this on every other tracked Machine when one peer
// announces new clipboard content. A non-Paired Machine silently drops
// the notify -- there's no connection to send it on.
func (m *Machine) NotifyClipboardChanged(targets []string) {
	if m.State() != StatePaired {
		return
	}
	m.send(frame.Message{
		Variant:         frame.VariantClipboardNotify,
		ClipboardNotify: &frame.ClipboardNotify{Targets: targets},
	})
}

func containsTarget(targets []string, target string) bool {
	for _, t := range targets {
		if t == target {
			return true
		}
	}
	return false
}

func (m *Machine) handleClipboardGetContentRequest(req *frame.ClipboardGetContentRequest) {
	if req == nil {
		return
	}
	target := req.Target
	m.manager.ReadClipboardContent(target, func(content []byte) {
		m.send(frame.Message{
			Variant: frame.VariantClipboardGetContentResponse,
			ClipboardGetContentResponse: &frame.ClipboardGetContentResponse{
				Target:  target,
				Content: content,
			},
		})
	})
}

// handleClipboardGetContentResponse: path-like lines get prefixed with the
// peer's FUSE mountpoint so they resolve through the mount, and for a
// non-UOS peer's gnome-copied-files target, text/uri-list is additionally
// populated from the first file URI.
func (m *Machine) handleClipboardGetContentResponse(resp *frame.ClipboardGetContentResponse) {
	if resp == nil {
		return
	}
	m.mu.Lock()
	mountpoint := ""
	if m.fuseClient != nil {
		mountpoint = m.fuseClient.Mountpoint()
	}
	nonUOS := m.os != frame.OSUOS
	m.mu.Unlock()

	rewritten := rewritePaths(string(resp.Content), mountpoint)
	deliver := frame.ClipboardGetContentResponse{Target: resp.Target, Content: []byte(rewritten)}

	if sink := m.clipboardSink(); sink != nil {
		sink.SetContent(deliver.Target, deliver.Content)
		if nonUOS && resp.Target == targetGnomeCopiedFiles {
			if uriList := firstFileURIPath(rewritten); uriList != "" {
				sink.SetContent(targetURIList, []byte(uriList))
			}
		}
	}
}

// rewritePaths prefixes every absolute or file:// path-like line in
// content with mountpoint, leaving non-path lines (e.g. the leading
// "copy"/"cut" action marker GNOME's format carries) untouched.
func rewritePaths(content, mountpoint string) string {
	if mountpoint == "" {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "file://"):
			lines[i] = "file://" + path.Join(mountpoint, strings.TrimPrefix(line, "file://"))
		case strings.HasPrefix(line, "/"):
			lines[i] = path.Join(mountpoint, line)
		}
	}
	return strings.Join(lines, "\n")
}

// firstFileURIPath extracts the filesystem path component of the first
// file:// line in content, the value text/uri-list is synthesized from.
func firstFileURIPath(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "file://") {
			return strings.TrimPrefix(line, "file://")
		}
	}
	return ""
}
