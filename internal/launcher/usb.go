package launcher

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/google/gousb"
)

// HID class SET_REPORT issued over the default control endpoint.
const (
	requestType      = 0x21
	requestSetReport = 0x09

	// Original reports go out as output report 0.
	originalValue = 0x0200

	thunderMove = 0x02
	thunderLED  = 0x03

	thunderReportLen = 8
)

// controller is the single gousb.Device method the launcher needs.
type controller interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// Config holds USB settings for the launcher.
type Config struct {
	// Timeout bounds each control transfer. Zero means the libusb default (unlimited).
	Timeout time.Duration
}

// Device is an opened, claimed launcher.
//
// A Device is owned by one dispatch loop; the mutex only keeps Close from
// racing an in-flight transfer during shutdown.
type Device struct {
	mu      sync.Mutex
	model   Model
	ctrl    controller
	release []func() error // run in reverse order on Close
	logger  *log.Logger
}

// Open probes the supported launchers in order and opens the first one found.
//
// On Linux the HID driver usually owns interface 0, so auto-detach is enabled
// (failure is ignored; the driver may already be gone), configuration 1 is
// selected and interface 0 is claimed.
func Open(cfg Config) (*Device, error) {
	ctx := gousb.NewContext()

	var usbDev *gousb.Device
	model, err := probe(func(m Model) (bool, error) {
		d, err := ctx.OpenDeviceWithVIDPID(gousb.ID(m.Vendor), gousb.ID(m.Product))
		if err != nil {
			return false, err
		}
		if d == nil {
			return false, nil
		}
		usbDev = d
		return true, nil
	})
	if err != nil {
		ctx.Close()
		return nil, err
	}

	d := newDevice(model, usbDev)
	d.release = append(d.release, ctx.Close, usbDev.Close)
	usbDev.ControlTimeout = cfg.Timeout

	if runtime.GOOS == "linux" {
		if err := usbDev.SetAutoDetach(true); err != nil {
			log.Printf("[launcher] kernel driver auto-detach failed: %v (ignored)", err)
		}
		usbCfg, err := usbDev.Config(1)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("launcher: set configuration: %w", err)
		}
		d.release = append(d.release, usbCfg.Close)

		intf, err := usbCfg.Interface(0, 0)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("launcher: claim interface 0: %w", err)
		}
		d.release = append(d.release, func() error { intf.Close(); return nil })
	}

	log.Printf("[launcher] opened %s", model)
	return d, nil
}

// probe calls open for each supported model in order and stops at the first
// match. open reports (false, nil) when the model is not attached.
func probe(open func(Model) (bool, error)) (Model, error) {
	for _, m := range Models {
		found, err := open(m)
		if err != nil {
			return Model{}, fmt.Errorf("launcher: probe %s: %w", m, err)
		}
		if found {
			return m, nil
		}
	}
	return Model{}, ErrDeviceNotFound
}

func newDevice(model Model, ctrl controller) *Device {
	return &Device{model: model, ctrl: ctrl, logger: log.Default()}
}

func (d *Device) Name() string     { return "USB " + d.model.String() }
func (d *Device) Variant() Variant { return d.model.Variant }

// Send issues one direction or stop code using the variant's report layout.
func (d *Device) Send(code Code) error {
	switch d.model.Variant {
	case Thunder:
		return d.control(0, thunderReport(thunderMove, byte(code)))
	case Original:
		return d.control(originalValue, []byte{byte(code)})
	}
	return fmt.Errorf("launcher: send %s: unsupported variant %s", code, d.model.Variant)
}

// SetLED switches the Thunder LED. The Original has none; the call is logged
// and nothing is sent.
func (d *Device) SetLED(on bool) error {
	if d.model.Variant != Thunder {
		d.logger.Printf("[launcher] there is no LED on this device (%s)", d.model.Variant)
		return nil
	}
	var state byte
	if on {
		state = 0x01
	}
	return d.control(0, thunderReport(thunderLED, state))
}

// Close releases the interface, configuration, device and USB context.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for i := len(d.release) - 1; i >= 0; i-- {
		if err := d.release[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.release = nil
	return errors.Join(errs...)
}

func (d *Device) control(value uint16, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.ctrl.Control(requestType, requestSetReport, value, 0, payload); err != nil {
		return fmt.Errorf("launcher: control transfer % x: %w", payload, err)
	}
	return nil
}

func thunderReport(kind, arg byte) []byte {
	report := make([]byte, thunderReportLen)
	report[0] = kind
	report[1] = arg
	return report
}
