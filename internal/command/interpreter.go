package command

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shaunagostinho/launcher-bridge/internal/launcher"
)

// Park moves to the bottom-left end stops.
const (
	parkDownDuration = 2000 * time.Millisecond
	parkLeftDuration = 7000 * time.Millisecond
)

// ErrUnknownSet is returned by RunSet for a name not in Sets.
var ErrUnknownSet = errors.New("command: unknown command set")

// Actuator is the part of a launcher the interpreter drives.
type Actuator interface {
	Send(code launcher.Code) error
	SetLED(on bool) error
}

// Interpreter dispatches commands to a single actuator. It is not safe for
// concurrent use: timed moves block the caller and are never interleaved.
type Interpreter struct {
	dev Actuator

	// Sleep blocks for a timed move. Defaults to time.Sleep.
	Sleep func(time.Duration)
	// Logger receives unknown-command lines. Defaults to log.Default().
	Logger *log.Logger
}

// NewInterpreter creates an Interpreter driving dev.
func NewInterpreter(dev Actuator) *Interpreter {
	return &Interpreter{
		dev:    dev,
		Sleep:  time.Sleep,
		Logger: log.Default(),
	}
}

// Run parses raw and executes it. Unknown tokens are logged and are not an error.
func (i *Interpreter) Run(raw string) error {
	return i.Execute(Parse(raw))
}

// Execute performs exactly one device action for cmd. Device errors are
// returned unchanged.
func (i *Interpreter) Execute(cmd Command) error {
	if code, ok := cmd.direction(); ok {
		return i.dev.Send(code)
	}

	switch cmd.Kind {
	case Park:
		if err := i.TimedMove(launcher.Down, parkDownDuration); err != nil {
			return err
		}
		return i.TimedMove(launcher.Left, parkLeftDuration)
	case LEDOn:
		return i.dev.SetLED(true)
	case LEDOff:
		return i.dev.SetLED(false)
	}

	i.Logger.Printf("[command] error: unknown command: '%s'", cmd.Token)
	return nil
}

// TimedMove sends code, blocks for d, then sends STOP. It cannot be cancelled.
func (i *Interpreter) TimedMove(code launcher.Code, d time.Duration) error {
	if err := i.dev.Send(code); err != nil {
		return err
	}
	i.Sleep(d)
	return i.dev.Send(launcher.Stop)
}

// Step is one entry of a scripted command set.
type Step struct {
	Command string
	// Value is stored with the step but not applied on replay.
	Value int
}

// Sets are the predefined scripted routines.
var Sets = map[string][]Step{
	"test": {
		{"led", 0},
		{"led", 1},
		{"right", 1500},
		{"up", 1500},
		{"down", 1500},
		{"left", 1500},
		{"led", 0},
	},
}

// RunSet replays the named set through Run. Step values are ignored, so
// directional steps are untimed moves.
func (i *Interpreter) RunSet(name string) error {
	steps, ok := Sets[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSet, name)
	}
	for _, st := range steps {
		if err := i.Run(st.Command); err != nil {
			return fmt.Errorf("command: set %s step %s: %w", name, st.Command, err)
		}
	}
	return nil
}
