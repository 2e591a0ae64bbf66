package main

import (
	"time"

	"github.com/linuxdeepin/dde-cooperation/internal/discovery"
	"github.com/linuxdeepin/dde-cooperation/internal/logging"
	"github.com/linuxdeepin/dde-cooperation/internal/machine"
	"github.com/linuxdeepin/dde-cooperation/internal/manager"
)

// broadcastIntervalMs is how often this daemon advertises itself on the
// LAN. The ping/offline timings a Machine applies to a peer it has already
// observed are fixed, but the self-broadcast interval is left to the
// daemon; a fraction of the 25s offline window keeps a freshly started
// daemon well inside every peer's window before it ages out.
const broadcastIntervalMs = 5_000

// broadcastLoop periodically advertises this device's identity on the LAN
// beacon socket until the Manager is closed (Broadcast then fails because
// the socket is gone, which is this loop's exit signal).
func broadcastLoop(mgr *manager.Manager, local machine.LocalIdentity, tcpPort uint16, beaconSocket *discovery.Socket, log logging.Logger) {
	ticker := time.NewTicker(broadcastIntervalMs * time.Millisecond)
	defer ticker.Stop()

	self := discovery.Beacon{
		Key:     local.Key,
		Info:    local.Info,
		TCPPort: tcpPort,
	}

	for range ticker.C {
		if err := beaconSocket.Broadcast(self); err != nil {
			log.Errorf("beacon broadcast stopped: %v", err)
			return
		}
	}
}
