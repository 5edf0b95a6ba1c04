// Package gpio drives the push button and status LED through /dev/gpiomem.
package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/stianeikeland/go-rpio/v4"
)

// Board owns the memory-mapped GPIO range.
type Board struct {
	mu     sync.Mutex
	closed bool
}

// Open maps the GPIO registers. It fails on machines without a Broadcom SoC.
func Open() (*Board, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open gpio: %w", err)
	}
	log.Info().Msg("GPIO opened")
	return &Board{}, nil
}

// Button configures pin as an input.
func (b *Board) Button(pin int, activeLow bool) *Button {
	p := rpio.Pin(pin)
	p.Input()
	if activeLow {
		p.PullUp()
	} else {
		p.PullDown()
	}
	log.Debug().Int("pin", pin).Bool("active_low", activeLow).Msg("Button pin configured")
	return &Button{pin: p, activeLow: activeLow}
}

// LED configures pin as an output, initially off.
func (b *Board) LED(pin int, activeLow bool) *LED {
	p := rpio.Pin(pin)
	p.Output()
	l := &LED{pin: p, activeLow: activeLow}
	_ = l.Set(false)
	log.Debug().Int("pin", pin).Bool("active_low", activeLow).Msg("LED pin configured")
	return l
}

// Close unmaps the registers.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return rpio.Close()
}

// Button reads a push button wired to a GPIO pin.
type Button struct {
	pin       rpio.Pin
	activeLow bool
}

// Pressed reports whether the button is held down.
func (b *Button) Pressed() (bool, error) {
	return active(b.pin.Read(), b.activeLow), nil
}

// LED drives an LED wired to a GPIO pin.
type LED struct {
	pin       rpio.Pin
	activeLow bool
}

// Set switches the LED on or off.
func (l *LED) Set(on bool) error {
	if level(on, l.activeLow) == rpio.High {
		l.pin.High()
	} else {
		l.pin.Low()
	}
	return nil
}

func active(s rpio.State, activeLow bool) bool {
	if activeLow {
		return s == rpio.Low
	}
	return s == rpio.High
}

func level(on, activeLow bool) rpio.State {
	if on != activeLow {
		return rpio.High
	}
	return rpio.Low
}

// VirtualButton is a ButtonReader for machines without GPIO.
// It stays released unless Set is called.
type VirtualButton struct {
	mu      sync.Mutex
	pressed bool
}

// Set holds or releases the button.
func (v *VirtualButton) Set(pressed bool) {
	v.mu.Lock()
	v.pressed = pressed
	v.mu.Unlock()
}

// Pressed reports the held state.
func (v *VirtualButton) Pressed() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pressed, nil
}
