// Package bulb talks to the Tasmota smart bulb: the command model, its wire
// encoding, the HTTP client, and the dispatcher that drains the outbound queue.
package bulb

import (
	"fmt"
	"strings"
)

// Kind tags the variant held by a Command.
type Kind uint8

const (
	KindNone Kind = iota
	KindHSB
	KindWhite
	KindDimmer
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindHSB:
		return "hsb"
	case KindWhite:
		return "white"
	case KindDimmer:
		return "dimmer"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Command is an instruction for the bulb. It is comparable with ==.
// The zero value is "no command".
type Command struct {
	Kind       Kind   `json:"kind"`
	Hue        uint16 `json:"hue,omitempty"`
	Saturation uint8  `json:"saturation,omitempty"`
	Brightness uint8  `json:"brightness,omitempty"`
	Level      uint8  `json:"level,omitempty"` // white or dimmer level, 0-100
}

// HSBColor builds a color command. Hue is 0-360, saturation and brightness 0-100.
func HSBColor(hue uint16, saturation, brightness uint8) Command {
	return Command{Kind: KindHSB, Hue: hue, Saturation: saturation, Brightness: brightness}
}

// White builds a flat white command at the given brightness.
func White(level uint8) Command {
	return Command{Kind: KindWhite, Level: level}
}

// Dimmer builds a dimmer command at the given percentage.
func Dimmer(level uint8) Command {
	return Command{Kind: KindDimmer, Level: level}
}

// IsZero reports whether c carries no instruction.
func (c Command) IsZero() bool {
	return c.Kind == KindNone
}

// String returns the Tasmota console form, e.g. "HSBColor 240,100,100".
func (c Command) String() string {
	switch c.Kind {
	case KindHSB:
		return fmt.Sprintf("HSBColor %d,%d,%d", c.Hue, c.Saturation, c.Brightness)
	case KindWhite:
		return fmt.Sprintf("White %d", c.Level)
	case KindDimmer:
		return fmt.Sprintf("Dimmer %d", c.Level)
	default:
		return ""
	}
}

// Encode returns the command as embedded in the cmnd query parameter.
// Tasmota expects the space as %20 and literal commas.
func (c Command) Encode() string {
	return strings.ReplaceAll(c.String(), " ", "%20")
}
