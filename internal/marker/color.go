// Package marker maps the RFID tags embedded in the marker set to logical colors
// and to the light parameters each color stands for.
package marker

import (
	"fmt"
	"strings"
)

// Color is one of the fixed set of marker colors.
// The zero value None means "no marker".
type Color uint8

const (
	None Color = iota
	Red
	Brown
	BlueLagoon
	Green
	Black
	SandyTan
	Gray
	Pink
	Blue
	Yellow
	Orange
	Violet
)

var colorNames = map[Color]string{
	None:       "none",
	Red:        "red",
	Brown:      "brown",
	BlueLagoon: "blue_lagoon",
	Green:      "green",
	Black:      "black",
	SandyTan:   "sandy_tan",
	Gray:       "gray",
	Pink:       "pink",
	Blue:       "blue",
	Yellow:     "yellow",
	Orange:     "orange",
	Violet:     "violet",
}

// Colors returns every real marker color in declaration order.
func Colors() []Color {
	colors := make([]Color, 0, int(Violet))
	for c := Red; c <= Violet; c++ {
		colors = append(colors, c)
	}
	return colors
}

// Valid reports whether c is a real marker color.
func (c Color) Valid() bool {
	return c >= Red && c <= Violet
}

// String returns the stable lower-case name of the color.
func (c Color) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("color(%d)", uint8(c))
}

// MarshalText implements encoding.TextMarshaler so colors render by name in JSON.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseColor resolves a color by name (case-insensitive).
func ParseColor(name string) (Color, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range colorNames {
		if n == name && c != None {
			return c, nil
		}
	}
	return None, fmt.Errorf("unknown marker color %q", name)
}
