// Package state owns the device state. A single Core goroutine applies
// commands one at a time and emits bulb commands and display snapshots.
package state

import (
	"time"

	"github.com/dokzlo13/markerd/internal/bulb"
	"github.com/dokzlo13/markerd/internal/marker"
)

// Dimmer levels. The dimmer is a binary toggle, not a dial.
const (
	DimmerOff uint8 = 0
	DimmerOn  uint8 = 100
)

// DeviceState is the aggregate mutated only by the Core.
// Zero time values are the "long ago" sentinel so that nothing flashes right after boot.
type DeviceState struct {
	LastMarkerColor          marker.Color `json:"last_marker_color"` // marker.None when no marker is active
	LastMarkerColorUpdatedAt time.Time    `json:"last_marker_color_updated_at"`
	IsConnected              bool         `json:"is_connected"`
	IntendedBulbState        bulb.Command `json:"intended_bulb_state"` // zero when nothing was intended yet
	DimmerLevel              uint8        `json:"dimmer_level"`
	LastButtonPressAt        time.Time    `json:"last_button_press_at"`
}

// HasMarker reports whether a marker is active.
func (s DeviceState) HasMarker() bool {
	return s.LastMarkerColor != marker.None
}

// HasIntent reports whether the core has ever decided on a bulb state.
func (s DeviceState) HasIntent() bool {
	return !s.IntendedBulbState.IsZero()
}
