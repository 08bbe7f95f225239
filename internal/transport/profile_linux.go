//go:build linux

package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBus            = "org.bluez"
	bluezProfileManager = "org.bluez.ProfileManager1"
	bluezProfileIface   = "org.bluez.Profile1"
	bluezRejected       = "org.bluez.Error.Rejected"

	profilePath = dbus.ObjectPath("/launcherd/profile")
)

// Listen exports the Profile1 object and registers it with BlueZ.
func (t *ProfileTransport) Listen(ctx context.Context) (Listener, error) {
	// dbus.SystemBus is a shared cached connection; it is never closed here.
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: system bus: %w", err)
	}

	cfg, err := resolveChannel(t.cfg)
	if err != nil {
		return nil, err
	}

	h := &profileHandler{conns: make(chan Conn, 1)}
	if err := conn.Export(h, profilePath, bluezProfileIface); err != nil {
		return nil, fmt.Errorf("bluez: export profile: %w", err)
	}

	manager := conn.Object(bluezBus, "/org/bluez")
	call := manager.CallWithContext(ctx, bluezProfileManager+".RegisterProfile", 0,
		profilePath, cfg.UUID, profileOptions(cfg))
	if call.Err != nil {
		conn.Export(nil, profilePath, bluezProfileIface)
		return nil, fmt.Errorf("bluez: register profile %s: %w", cfg.UUID, call.Err)
	}

	return &profileListener{
		handler: h,
		addr:    fmt.Sprintf("BlueZ profile %s on RFCOMM channel %d", cfg.UUID, cfg.Channel),
		done:    make(chan struct{}),
		unregister: func() error {
			defer conn.Export(nil, profilePath, bluezProfileIface)
			call := conn.Object(bluezBus, "/org/bluez").Call(bluezProfileManager+".UnregisterProfile", 0, profilePath)
			return call.Err
		},
	}, nil
}

// freeChannel asks the kernel for an unused RFCOMM channel.
var freeChannel = pickRFCOMMChannel

// resolveChannel replaces channel 0 with a free channel so the SDP record
// can name it.
func resolveChannel(cfg ProfileConfig) (ProfileConfig, error) {
	if cfg.Channel > 0 {
		return cfg, nil
	}
	ch, err := freeChannel()
	if err != nil {
		return cfg, fmt.Errorf("bluez: pick rfcomm channel: %w", err)
	}
	cfg.Channel = int(ch)
	log.Printf("[bluez] using free RFCOMM channel %d", ch)
	return cfg, nil
}

// profileOptions are the RegisterProfile options. cfg.Channel must already
// be resolved; the full SDP record advertises the serial-port class.
func profileOptions(cfg ProfileConfig) map[string]dbus.Variant {
	opts := map[string]dbus.Variant{
		"Name":                  dbus.MakeVariant(cfg.Name),
		"Role":                  dbus.MakeVariant("server"),
		"Service":               dbus.MakeVariant(cfg.UUID),
		"RequireAuthentication": dbus.MakeVariant(false),
		"RequireAuthorization":  dbus.MakeVariant(false),
		"AutoConnect":           dbus.MakeVariant(false),
		"Channel":               dbus.MakeVariant(uint16(cfg.Channel)),
		"ServiceRecord":         dbus.MakeVariant(sdpRecord(cfg)),
	}
	return opts
}

// profileHandler implements org.bluez.Profile1. Only methods returning
// *dbus.Error are exported on the bus.
type profileHandler struct {
	mu     sync.Mutex
	taken  bool
	closed bool
	conns  chan Conn
}

func (h *profileHandler) Release() *dbus.Error {
	log.Printf("[bluez] profile released")
	return nil
}

func (h *profileHandler) NewConnection(device dbus.ObjectPath, fd dbus.UnixFD, props map[string]dbus.Variant) *dbus.Error {
	c, err := newFileConn(int(fd), devicePathMAC(string(device)))
	if err != nil {
		return dbus.MakeFailedError(err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.taken {
		c.Close()
		log.Printf("[bluez] rejected %s: %v", c.RemoteAddr(), ErrBusy)
		return &dbus.Error{Name: bluezRejected, Body: []interface{}{ErrBusy.Error()}}
	}
	h.taken = true
	h.conns <- c
	return nil
}

func (h *profileHandler) RequestDisconnection(device dbus.ObjectPath) *dbus.Error {
	log.Printf("[bluez] disconnection requested by %s", devicePathMAC(string(device)))
	return nil
}

type profileListener struct {
	handler    *profileHandler
	addr       string
	unregister func() error
	once       sync.Once
	done       chan struct{}
}

func (l *profileListener) Addr() string { return l.addr }

func (l *profileListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.handler.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrClosed
	}
}

// Close unregisters the profile, which also removes the SDP record and
// stops BlueZ listening on the channel.
func (l *profileListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)

		l.handler.mu.Lock()
		l.handler.closed = true
		select {
		case c := <-l.handler.conns:
			c.Close()
		default:
		}
		l.handler.mu.Unlock()

		if uerr := l.unregister(); uerr != nil {
			err = fmt.Errorf("bluez: unregister profile: %w", uerr)
		}
	})
	return err
}
