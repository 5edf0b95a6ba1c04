package input

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/markerd/internal/state"
)

// Button defaults.
const (
	DefaultButtonInterval = 100 * time.Millisecond
	DefaultLongPress      = 2 * time.Second
)

// ButtonReader samples the push button. Pressed is true while held down.
type ButtonReader interface {
	Pressed() (bool, error)
}

// ButtonPoller samples a button and maps gestures to state commands.
//
// A press released before longPress submits ToggleDimmer. Holding for
// longPress submits ClearMarkerColor once and suppresses the toggle.
// With longPress == 0 every press edge toggles immediately.
type ButtonPoller struct {
	reader    ButtonReader
	core      Submitter
	interval  time.Duration
	longPress time.Duration
	clock     func() time.Time
	errorLog  rate.Sometimes

	held      bool
	pressedAt time.Time
	longFired bool
}

// NewButtonPoller creates a poller. A negative longPress disables the long gesture.
func NewButtonPoller(reader ButtonReader, core Submitter, interval, longPress time.Duration) *ButtonPoller {
	if interval <= 0 {
		interval = DefaultButtonInterval
	}
	if longPress < 0 {
		longPress = 0
	}
	return &ButtonPoller{
		reader:    reader,
		core:      core,
		interval:  interval,
		longPress: longPress,
		clock:     time.Now,
		errorLog:  rate.Sometimes{Interval: 10 * time.Second},
	}
}

// Run samples until ctx is cancelled.
func (b *ButtonPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", b.interval).
		Dur("long_press", b.longPress).
		Msg("Button poller started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Button poller stopped")
			return
		case <-ticker.C:
			if !b.sample(ctx, b.clock()) {
				log.Info().Msg("Button poller stopped")
				return
			}
		}
	}
}

// sample reads the button once and advances the gesture state machine.
func (b *ButtonPoller) sample(ctx context.Context, now time.Time) bool {
	pressed, err := b.reader.Pressed()
	if err != nil {
		b.errorLog.Do(func() {
			log.Warn().Err(err).Msg("Failed to read button")
		})
		return true
	}

	cmd := b.gesture(pressed, now)
	if cmd == nil {
		return true
	}
	log.Debug().Str("command", cmd.Name()).Msg("Button gesture")
	return submit(ctx, b.core, "button", cmd)
}

func (b *ButtonPoller) gesture(pressed bool, now time.Time) state.Command {
	switch {
	case pressed && !b.held:
		b.held = true
		b.pressedAt = now
		b.longFired = false
		if b.longPress == 0 {
			return state.ToggleDimmer{}
		}
	case pressed && b.held:
		if b.longPress > 0 && !b.longFired && now.Sub(b.pressedAt) >= b.longPress {
			b.longFired = true
			return state.ClearMarkerColor{}
		}
	case !pressed && b.held:
		b.held = false
		if b.longPress > 0 && !b.longFired {
			return state.ToggleDimmer{}
		}
	}
	return nil
}
