package wrappers

import (
	"context"
	"net"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
)

// FuseServer listens on an ephemeral TCP port and is the serving side of a
// peer's FUSE export: it owns only the listener lifecycle a Machine needs
// -- Start, Port, Close -- the byte-serving loop against local disk is
// itself an external collaborator.
type FuseServer struct {
	listener net.Listener
}

// StartFuseServer binds an ephemeral port, returning accepted=false-worthy
// errors to the caller rather than ever partially starting.
func StartFuseServer() (*FuseServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return &FuseServer{listener: ln}, nil
}

// Port reports the bound ephemeral port, sent back in FsResponse.
func (s *FuseServer) Port() uint16 {
	return uint16(s.listener.Addr().(*net.TCPAddr).Port)
}

// Accept blocks for the next inbound connection from a FuseClient peer.
func (s *FuseServer) Accept() (net.Conn, error) {
	return s.listener.Accept()
}

// Close drops the listener; this is all that happens on session teardown,
// the server is simply dropped.
func (s *FuseServer) Close() error {
	return s.listener.Close()
}

// FuseClient mounts a remote FuseServer's export at mountpoint using the
// jacobsa/fuse kernel bridge. The fuseutil.FileSystem that actually answers
// read/write/lookup ops against the network connection is itself an
// external collaborator; FuseClient only owns the mount's lifecycle.
type FuseClient struct {
	mfs        *fuse.MountedFileSystem
	mountpoint string
}

// MountFuseClient mounts fs at mountpoint.
func MountFuseClient(mountpoint string, fs fuseutil.FileSystem, cfg *fuse.MountConfig) (*FuseClient, error) {
	server := fuseutil.NewFileSystemServer(fs)
	mfs, err := fuse.Mount(mountpoint, server, cfg)
	if err != nil {
		return nil, err
	}
	return &FuseClient{mfs: mfs, mountpoint: mountpoint}, nil
}

// Mountpoint reports where the remote export is visible locally.
func (c *FuseClient) Mountpoint() string { return c.mountpoint }

// Exit unmounts and joins the mount goroutine.
func (c *FuseClient) Exit() error {
	if err := fuse.Unmount(c.mountpoint); err != nil {
		return err
	}
	return c.mfs.Join(context.Background())
}
