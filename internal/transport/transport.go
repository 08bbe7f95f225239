// Package transport provides the listening endpoints the connection server
// accepts clients on. Every Listener hands out at most one client.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrClosed is returned by Accept after the listener has been closed.
	ErrClosed = errors.New("transport: listener closed")
	// ErrBusy is returned to a second client while one is already pending.
	ErrBusy = errors.New("transport: a client is already connected")
	// ErrUnsupported is returned on platforms without the required stack.
	ErrUnsupported = errors.New("transport: not supported on this platform")
)

// Transport creates a fresh listening endpoint for each session.
type Transport interface {
	// Name returns a short identifier used in log lines.
	Name() string
	// Listen creates the endpoint and starts advertising it.
	Listen(ctx context.Context) (Listener, error)
}

// Listener accepts exactly one client.
type Listener interface {
	// Accept blocks until a client connects, ctx is done or the listener is closed.
	Accept(ctx context.Context) (Conn, error)
	// Addr describes where the listener can be reached.
	Addr() string
	Close() error
}

// Conn is an accepted client. Read returns 0 bytes or io.EOF when the peer
// hangs up.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() string
}

// formatBDAddr renders a little-endian kernel bdaddr as AA:BB:CC:DD:EE:FF.
func formatBDAddr(addr [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		addr[5], addr[4], addr[3], addr[2], addr[1], addr[0])
}

// devicePathMAC extracts the address from a BlueZ object path such as
// /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF. Unknown paths are returned as is.
func devicePathMAC(path string) string {
	i := strings.LastIndex(path, "/dev_")
	if i < 0 {
		return path
	}
	return strings.ReplaceAll(path[i+len("/dev_"):], "_", ":")
}
