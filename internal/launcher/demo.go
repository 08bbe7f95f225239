package launcher

import (
	"log"
	"sync"
)

// DemoProvider simulates a Thunder launcher for development without hardware.
// Every transfer is logged and the last state is kept for inspection.
type DemoProvider struct {
	mu      sync.Mutex
	last    Code
	led     bool
	sent    int
	running bool
}

func NewDemoProvider() *DemoProvider {
	return &DemoProvider{running: true, last: Stop}
}

func (d *DemoProvider) Name() string     { return "Demo (Simulated)" }
func (d *DemoProvider) Variant() Variant { return Thunder }

func (d *DemoProvider) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

func (d *DemoProvider) Send(code Code) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = code
	d.sent++
	log.Printf("[demo] send %s % x", code, thunderReport(thunderMove, byte(code)))
	return nil
}

func (d *DemoProvider) SetLED(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.led = on
	d.sent++
	log.Printf("[demo] led on=%v", on)
	return nil
}

// State returns the last code sent, the LED state and the transfer count.
func (d *DemoProvider) State() (last Code, led bool, transfers int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.led, d.sent
}
