// Package led renders the device state onto the status LED.
package led

import (
	"time"

	"github.com/dokzlo13/markerd/internal/state"
)

// Timing holds the window constants of the LED patterns.
type Timing struct {
	FlashOn      time.Duration // first pulse of the marker double flash
	FlashOff     time.Duration // gap between the two pulses
	FlashCycle   time.Duration // end of the second pulse, measured from the marker update
	SlowBlinkOn  time.Duration // on time of the disconnected blink
	SlowBlinkOff time.Duration // off time of the disconnected blink
	ButtonFlash  time.Duration // single flash after a button press
}

// DefaultTiming returns the stock timing constants.
func DefaultTiming() Timing {
	return Timing{
		FlashOn:      100 * time.Millisecond,
		FlashOff:     100 * time.Millisecond,
		FlashCycle:   300 * time.Millisecond,
		SlowBlinkOn:  500 * time.Millisecond,
		SlowBlinkOff: 1500 * time.Millisecond,
		ButtonFlash:  150 * time.Millisecond,
	}
}

// Pattern names the visual pattern currently selected.
type Pattern int

const (
	PatternOff Pattern = iota
	PatternSlowBlink
	PatternButtonFlash
	PatternMarkerFlash
)

// String returns a human-readable name for the pattern.
func (p Pattern) String() string {
	switch p {
	case PatternOff:
		return "off"
	case PatternSlowBlink:
		return "slow_blink"
	case PatternButtonFlash:
		return "button_flash"
	case PatternMarkerFlash:
		return "marker_flash"
	default:
		return "unknown"
	}
}

// Select picks the pattern for s at now.
// Disconnected masks everything, then button flash, then marker flash.
func Select(now time.Time, s state.DeviceState, t Timing) Pattern {
	if !s.IsConnected {
		return PatternSlowBlink
	}
	if since(now, s.LastButtonPressAt) < t.ButtonFlash {
		return PatternButtonFlash
	}
	if since(now, s.LastMarkerColorUpdatedAt) < t.FlashCycle {
		return PatternMarkerFlash
	}
	return PatternOff
}

// Signal returns whether the LED should be lit at now.
func Signal(now time.Time, s state.DeviceState, t Timing) bool {
	switch Select(now, s, t) {
	case PatternSlowBlink:
		period := t.SlowBlinkOn + t.SlowBlinkOff
		if period <= 0 {
			return false
		}
		phase := time.Duration(now.UnixMilli()) * time.Millisecond % period
		return phase < t.SlowBlinkOn
	case PatternButtonFlash:
		return true
	case PatternMarkerFlash:
		d := since(now, s.LastMarkerColorUpdatedAt)
		return d < t.FlashOn || d >= t.FlashOn+t.FlashOff
	default:
		return false
	}
}

// since returns now-then, treating the zero time as infinitely long ago.
func since(now, then time.Time) time.Duration {
	if then.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	d := now.Sub(then)
	if d < 0 {
		return 0
	}
	return d
}
