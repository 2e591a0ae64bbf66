// Command cooperation-daemon is the process entrypoint: it wires the
// framed-codec, event-loop, discovery, rate-limiting, manager and machine
// packages together into a running daemon, flag-and-signal-driven startup
// and shutdown.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/linuxdeepin/dde-cooperation/internal/discovery"
	"github.com/linuxdeepin/dde-cooperation/internal/frame"
	"github.com/linuxdeepin/dde-cooperation/internal/logging"
	"github.com/linuxdeepin/dde-cooperation/internal/machine"
	"github.com/linuxdeepin/dde-cooperation/internal/manager"
	"github.com/linuxdeepin/dde-cooperation/internal/netloop"
)

func main() {
	defaultCfg := machine.DefaultConfig()
	var (
		listenPort       = flag.Int("port", 0, "TCP port to listen on for peer connections (0 picks an ephemeral port)")
		dataDir          = flag.String("data-dir", defaultCfg.DataDir, "directory FUSE mounts are created under")
		receivedFilesDir = flag.String("received-files-dir", defaultCfg.ReceivedFilesDir, "directory incoming files are copied into")
		deviceName       = flag.String("name", defaultDeviceName(), "this device's advertised name")
		verbose          = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	log := logging.New(logLevelFromEnv(*verbose), "cooperation-daemon")

	cfg := machine.DefaultConfig()
	cfg.DataDir = *dataDir
	cfg.ReceivedFilesDir = *receivedFilesDir

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Errorf("creating data dir: %v", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.ReceivedFilesDir, 0o755); err != nil {
		log.Errorf("creating received-files dir: %v", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *listenPort))
	if err != nil {
		log.Errorf("listen: %v", err)
		os.Exit(1)
	}
	tcpPort := uint16(ln.Addr().(*net.TCPAddr).Port)

	beaconSocket, err := discovery.Listen()
	if err != nil {
		log.Errorf("beacon listen: %v", err)
		os.Exit(1)
	}

	loop := netloop.New(log.WithField("component", "loop"))
	go loop.Run()

	local := machine.LocalIdentity{
		Key: discovery.ScanKey,
		Info: frame.DeviceInfo{
			UUID:       loadOrCreateUUID(cfg.DataDir, log),
			Name:       *deviceName,
			OS:         frame.OSLinux,
			Compositor: detectCompositor(),
		},
	}

	mgr := manager.New(loop, log, cfg, local, tcpPort, beaconSocket)
	go mgr.Run()
	go acceptLoop(ln, mgr)
	go broadcastLoop(mgr, local, tcpPort, beaconSocket, log)

	log.Infof("cooperation-daemon %s listening on tcp/%d, beacon on udp/%d", local.Info.UUID, tcpPort, discovery.BeaconPort)

	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGTERM, os.Interrupt)
	<-term

	log.Infof("shutting down")
	ln.Close()
	mgr.Close()
	loop.Stop()
}

// acceptLoop hands every inbound TCP connection to the Manager, which
// matches it against a tracked Machine by source address.
func acceptLoop(ln net.Listener, mgr *manager.Manager) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		mgr.AcceptConn(conn)
	}
}

func logLevelFromEnv(verbose bool) int {
	if verbose {
		return logging.LevelDebug
	}
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logging.LevelDebug
	case "error":
		return logging.LevelError
	case "silent":
		return logging.LevelSilent
	default:
		return logging.LevelInfo
	}
}

func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil {
		return "cooperation-daemon"
	}
	return host
}

func detectCompositor() frame.Compositor {
	switch os.Getenv("XDG_SESSION_TYPE") {
	case "wayland":
		return frame.CompositorWayland
	case "x11":
		return frame.CompositorX11
	default:
		return frame.CompositorNone
	}
}
