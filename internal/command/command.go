// Package command turns text tokens from the client into launcher actions.
package command

import (
	"strings"

	"github.com/shaunagostinho/launcher-bridge/internal/launcher"
)

// Kind enumerates the recognized commands.
type Kind int

const (
	Unknown Kind = iota
	Right
	Left
	Up
	Down
	Stop
	Park // zero, park and reset
	LEDOn
	LEDOff
)

func (k Kind) String() string {
	switch k {
	case Right:
		return "right"
	case Left:
		return "left"
	case Up:
		return "up"
	case Down:
		return "down"
	case Stop:
		return "stop"
	case Park:
		return "park"
	case LEDOn:
		return "led-on"
	case LEDOff:
		return "led-off"
	}
	return "unknown"
}

// Command is a parsed token. Token keeps the lower-cased input for logging.
type Command struct {
	Kind  Kind
	Token string
}

var tokens = map[string]Kind{
	"right":   Right,
	"left":    Left,
	"up":      Up,
	"down":    Down,
	"stop":    Stop,
	"zero":    Park,
	"park":    Park,
	"reset":   Park,
	"led-on":  LEDOn,
	"led-off": LEDOff,
}

// Parse lower-cases raw and looks it up. Anything not in the vocabulary,
// including tokens with surrounding whitespace, is Unknown.
func Parse(raw string) Command {
	token := strings.ToLower(raw)
	return Command{Kind: tokens[token], Token: token}
}

// direction maps single-move kinds to their wire code.
func (c Command) direction() (launcher.Code, bool) {
	switch c.Kind {
	case Right:
		return launcher.Right, true
	case Left:
		return launcher.Left, true
	case Up:
		return launcher.Up, true
	case Down:
		return launcher.Down, true
	case Stop:
		return launcher.Stop, true
	}
	return 0, false
}
