package state

import "github.com/dokzlo13/markerd/internal/marker"

// Command is an input to the state core. The set of variants is closed:
// SetMarkerColor, ClearMarkerColor, SetConnected, SyncState and ToggleDimmer.
type Command interface {
	// Name returns a short identifier for logs and events.
	Name() string
	isCommand()
}

// SetMarkerColor reports that a recognized marker is in the reader field.
type SetMarkerColor struct {
	Color marker.Color
}

// ClearMarkerColor drops the active marker and returns the bulb to white.
type ClearMarkerColor struct{}

// SetConnected reports the current wireless link state.
type SetConnected struct {
	Connected bool
}

// SyncState asks the core to re-assert the intended bulb state.
type SyncState struct{}

// ToggleDimmer flips the dimmer between 0 and 100.
type ToggleDimmer struct{}

func (SetMarkerColor) Name() string   { return "set_marker_color" }
func (ClearMarkerColor) Name() string { return "clear_marker_color" }
func (SetConnected) Name() string     { return "set_connected" }
func (SyncState) Name() string        { return "sync_state" }
func (ToggleDimmer) Name() string     { return "toggle_dimmer" }

func (SetMarkerColor) isCommand()   {}
func (ClearMarkerColor) isCommand() {}
func (SetConnected) isCommand()     {}
func (SyncState) isCommand()        {}
func (ToggleDimmer) isCommand()     {}
