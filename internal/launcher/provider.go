package launcher

import (
	"errors"
	"fmt"
)

// Provider is the interface that all launcher backends must implement.
// The USB Device is the real implementation; Demo logs transfers instead
// of issuing them.
type Provider interface {
	// Name returns the human-readable name of this launcher backend.
	Name() string
	// Variant returns the detected hardware model.
	Variant() Variant
	// Send issues a single direction or stop code.
	Send(code Code) error
	// SetLED switches the LED on or off where the hardware has one.
	SetLED(on bool) error
	// Close releases the device.
	Close() error
}

// ErrDeviceNotFound is returned by Open when neither supported
// vendor/product pair is attached.
var ErrDeviceNotFound = errors.New("launcher: missile device not found")

// Code is the wire-level byte sent to the launcher.
type Code byte

const (
	Down  Code = 0x01
	Up    Code = 0x02
	Left  Code = 0x04
	Right Code = 0x08
	Fire  Code = 0x10
	Stop  Code = 0x20
)

func (c Code) String() string {
	switch c {
	case Down:
		return "DOWN"
	case Up:
		return "UP"
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	case Fire:
		return "FIRE"
	case Stop:
		return "STOP"
	}
	return fmt.Sprintf("0x%02x", byte(c))
}

// Variant identifies one of the supported physical launcher models.
type Variant int

const (
	VariantUnknown Variant = iota
	// Thunder is the Dream Cheeky Thunder (0x2123:0x1010), 8-byte reports with LED.
	Thunder
	// Original is the first-generation launcher (0x0a81:0x0701), 1-byte reports, no LED.
	Original
)

func (v Variant) String() string {
	switch v {
	case Thunder:
		return "Thunder"
	case Original:
		return "Original"
	}
	return "Unknown"
}

// Model pairs a variant with the USB ids it enumerates as.
type Model struct {
	Variant Variant
	Vendor  uint16
	Product uint16
}

func (m Model) String() string {
	return fmt.Sprintf("%s (%04x:%04x)", m.Variant, m.Vendor, m.Product)
}

// Models lists the supported launchers in probe order.
var Models = []Model{
	{Variant: Thunder, Vendor: 0x2123, Product: 0x1010},
	{Variant: Original, Vendor: 0x0a81, Product: 0x0701},
}
