package transport

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialConfig holds the RFCOMM tty settings.
type SerialConfig struct {
	PortPath string // e.g. /dev/rfcomm0
	BaudRate int
}

// SerialTransport reads commands from an RFCOMM tty bound by
// `rfcomm watch`, which creates the device node when a client connects.
type SerialTransport struct {
	portPath string
	baudRate int
	poll     time.Duration
	open     func(path string, mode *serial.Mode) (serial.Port, error)
}

// NewSerialTransport creates a tty transport.
func NewSerialTransport(cfg SerialConfig) *SerialTransport {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	return &SerialTransport{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		poll:     500 * time.Millisecond,
		open:     serial.Open,
	}
}

func (t *SerialTransport) Name() string { return "rfcomm-tty" }

func (t *SerialTransport) Listen(ctx context.Context) (Listener, error) {
	if t.portPath == "" {
		return nil, fmt.Errorf("serial: no port path configured")
	}
	return &serialListener{t: t, done: make(chan struct{})}, nil
}

type serialListener struct {
	t    *SerialTransport
	once sync.Once
	done chan struct{}
}

func (l *serialListener) Addr() string { return l.t.portPath }

// Accept polls until the tty can be opened.
func (l *serialListener) Accept(ctx context.Context) (Conn, error) {
	mode := &serial.Mode{
		BaudRate: l.t.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	logged := false
	for {
		port, err := l.t.open(l.t.portPath, mode)
		if err == nil {
			return &serialConn{port: port, path: l.t.portPath}, nil
		}
		if !logged {
			log.Printf("[serial] waiting for %s: %v", l.t.portPath, err)
			logged = true
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.done:
			return nil, ErrClosed
		case <-time.After(l.t.poll):
		}
	}
}

func (l *serialListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// serialConn has no read timeout; a hangup on the tty reads as 0 bytes.
type serialConn struct {
	port serial.Port
	path string
}

func (c *serialConn) Read(p []byte) (int, error)  { return c.port.Read(p) }
func (c *serialConn) Write(p []byte) (int, error) { return c.port.Write(p) }
func (c *serialConn) Close() error                { return c.port.Close() }
func (c *serialConn) RemoteAddr() string          { return c.path }
