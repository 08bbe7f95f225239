//go:build linux

package transport

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// fileConn is an RFCOMM stream socket driven through the runtime poller so
// Close unblocks a pending Read.
type fileConn struct {
	f      *os.File
	remote string
}

func newFileConn(fd int, remote string) (*fileConn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rfcomm: set nonblock: %w", err)
	}
	return &fileConn{f: os.NewFile(uintptr(fd), "rfcomm"), remote: remote}, nil
}

func (c *fileConn) Read(p []byte) (int, error)  { return c.f.Read(p) }
func (c *fileConn) Write(p []byte) (int, error) { return c.f.Write(p) }
func (c *fileConn) Close() error                { return c.f.Close() }
func (c *fileConn) RemoteAddr() string          { return c.remote }

// Listen creates the socket, binds it and listens with a backlog of one.
func (t *SocketTransport) Listen(ctx context.Context) (Listener, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("rfcomm: socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrRFCOMM{Channel: t.channel}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rfcomm: bind channel %d: %w", t.channel, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("rfcomm: listen: %w", err)
	}

	channel := t.channel
	if sa, err := unix.Getsockname(fd); err == nil {
		if rc, ok := sa.(*unix.SockaddrRFCOMM); ok {
			channel = rc.Channel
		}
	}

	f := os.NewFile(uintptr(fd), "rfcomm-listener")
	raw, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("rfcomm: %w", err)
	}
	return &socketListener{f: f, raw: raw, channel: channel}, nil
}

// pickRFCOMMChannel binds channel 0 and listens, which makes the kernel
// assign the first free channel, then releases the socket.
func pickRFCOMMChannel() (uint8, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return 0, fmt.Errorf("rfcomm: socket: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Bind(fd, &unix.SockaddrRFCOMM{}); err != nil {
		return 0, fmt.Errorf("rfcomm: bind: %w", err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		return 0, fmt.Errorf("rfcomm: listen: %w", err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, fmt.Errorf("rfcomm: getsockname: %w", err)
	}
	rc, ok := sa.(*unix.SockaddrRFCOMM)
	if !ok || rc.Channel == 0 {
		return 0, fmt.Errorf("rfcomm: no channel assigned")
	}
	return rc.Channel, nil
}

type socketListener struct {
	f       *os.File
	raw     syscall.RawConn
	channel uint8
	closed  atomic.Bool
}

func (l *socketListener) Addr() string { return fmt.Sprintf("RFCOMM channel %d", l.channel) }

func (l *socketListener) Accept(ctx context.Context) (Conn, error) {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	var (
		nfd   int
		sa    unix.Sockaddr
		opErr error
	)
	err := l.raw.Read(func(fd uintptr) bool {
		nfd, sa, opErr = unix.Accept4(int(fd), unix.SOCK_CLOEXEC)
		return opErr != unix.EAGAIN
	})
	switch {
	case ctx.Err() != nil:
		if err == nil && opErr == nil {
			unix.Close(nfd)
		}
		return nil, ctx.Err()
	case l.closed.Load():
		return nil, ErrClosed
	case err != nil:
		return nil, fmt.Errorf("rfcomm: accept: %w", err)
	case opErr != nil:
		return nil, fmt.Errorf("rfcomm: accept: %w", opErr)
	}

	remote := "unknown"
	if rc, ok := sa.(*unix.SockaddrRFCOMM); ok {
		remote = fmt.Sprintf("%s channel %d", formatBDAddr(rc.Addr), rc.Channel)
	}
	return newFileConn(nfd, remote)
}

func (l *socketListener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.f.Close()
}
