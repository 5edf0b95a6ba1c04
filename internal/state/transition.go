package state

import (
	"time"

	"github.com/dokzlo13/markerd/internal/bulb"
	"github.com/dokzlo13/markerd/internal/marker"
)

// ClearCommand is sent to the bulb when the active marker is cleared.
var ClearCommand = bulb.White(100)

// Effects are the side effects of one transition.
// When both apply, the bulb command is enqueued before the broadcast.
type Effects struct {
	Bulb      bulb.Command // zero means nothing to enqueue
	Broadcast bool
}

// None reports whether the transition had no observable effect.
func (e Effects) None() bool {
	return e.Bulb.IsZero() && !e.Broadcast
}

// Transition applies cmd to s and returns the new state and the effects to emit.
// It is pure: the same inputs always produce the same outputs.
func Transition(s DeviceState, cmd Command, now time.Time) (DeviceState, Effects) {
	switch c := cmd.(type) {
	case SetMarkerColor:
		return setMarkerColor(s, c.Color, now)
	case ClearMarkerColor:
		return clearMarkerColor(s, now)
	case SetConnected:
		return setConnected(s, c.Connected)
	case SyncState:
		return syncState(s)
	case ToggleDimmer:
		return toggleDimmer(s, now)
	}
	return s, Effects{}
}

// setMarkerColor activates a marker. Re-reading the active marker is a no-op.
// Values outside the marker set never reach here from the inputs; they are ignored.
func setMarkerColor(s DeviceState, color marker.Color, now time.Time) (DeviceState, Effects) {
	if !color.Valid() || s.LastMarkerColor == color {
		return s, Effects{}
	}

	p := marker.Params(color)
	cmd := bulb.HSBColor(p.Hue, p.Saturation, p.Brightness)

	s.LastMarkerColor = color
	s.LastMarkerColorUpdatedAt = now
	s.DimmerLevel = DimmerOn
	s.IntendedBulbState = cmd

	return s, Effects{Bulb: cmd, Broadcast: true}
}

// clearMarkerColor drops the active marker. Clearing when nothing is active is a no-op.
func clearMarkerColor(s DeviceState, now time.Time) (DeviceState, Effects) {
	if !s.HasMarker() {
		return s, Effects{}
	}

	s.LastMarkerColor = marker.None
	s.LastMarkerColorUpdatedAt = now
	s.IntendedBulbState = ClearCommand

	return s, Effects{Bulb: ClearCommand, Broadcast: true}
}

// setConnected records the link state. Reconnecting re-sends the intended state
// because the bulb missed anything sent while the link was down.
func setConnected(s DeviceState, connected bool) (DeviceState, Effects) {
	if s.IsConnected == connected {
		return s, Effects{}
	}

	reconnected := !s.IsConnected && connected
	s.IsConnected = connected

	effects := Effects{Broadcast: true}
	if reconnected && s.HasIntent() {
		effects.Bulb = s.IntendedBulbState
	}
	return s, effects
}

// syncState re-asserts the intended state while connected.
func syncState(s DeviceState) (DeviceState, Effects) {
	if !s.IsConnected || !s.HasIntent() {
		return s, Effects{}
	}
	return s, Effects{Bulb: s.IntendedBulbState}
}

// toggleDimmer flips the dimmer between off and full.
func toggleDimmer(s DeviceState, now time.Time) (DeviceState, Effects) {
	if s.DimmerLevel == DimmerOff {
		s.DimmerLevel = DimmerOn
	} else {
		s.DimmerLevel = DimmerOff
	}
	s.LastButtonPressAt = now

	cmd := bulb.Dimmer(s.DimmerLevel)
	s.IntendedBulbState = cmd

	return s, Effects{Bulb: cmd, Broadcast: true}
}
