package led

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/state"
)

// DefaultInterval is how often the renderer re-evaluates the LED.
const DefaultInterval = 10 * time.Millisecond

// Output drives a physical (or simulated) LED.
type Output interface {
	Set(on bool) error
}

// Renderer reads the latest DeviceState broadcast and drives an Output.
// It never feeds anything back into the state core.
type Renderer struct {
	out      Output
	slot     *state.Slot[state.DeviceState]
	timing   Timing
	interval time.Duration
	clock    func() time.Time

	current state.DeviceState
	lit     bool
	pattern Pattern
	primed  bool
}

// NewRenderer creates a renderer for out.
func NewRenderer(out Output, slot *state.Slot[state.DeviceState], timing Timing, interval time.Duration) *Renderer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Renderer{
		out:      out,
		slot:     slot,
		timing:   timing,
		interval: interval,
		clock:    time.Now,
	}
}

// Run renders until ctx is cancelled, then switches the LED off.
func (r *Renderer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("LED renderer started")

	for {
		r.tick(r.clock())

		select {
		case <-ctx.Done():
			if err := r.out.Set(false); err != nil {
				log.Warn().Err(err).Msg("Failed to switch LED off")
			}
			log.Info().Msg("LED renderer stopped")
			return
		case <-ticker.C:
		}
	}
}

// tick picks up a fresh snapshot, if any, and updates the output when the
// on/off decision changes.
func (r *Renderer) tick(now time.Time) {
	if s, ok := r.slot.Take(); ok {
		r.current = s
	}

	pattern := Select(now, r.current, r.timing)
	if !r.primed || pattern != r.pattern {
		log.Debug().Str("pattern", pattern.String()).Msg("LED pattern")
		r.pattern = pattern
	}

	on := Signal(now, r.current, r.timing)
	if r.primed && on == r.lit {
		return
	}
	if err := r.out.Set(on); err != nil {
		log.Warn().Err(err).Bool("on", on).Msg("Failed to drive LED")
		return
	}
	r.lit = on
	r.primed = true
}

// LogOutput is an Output that only logs transitions. Used when no GPIO is available.
type LogOutput struct{}

// Set logs the new LED level at trace.
func (LogOutput) Set(on bool) error {
	log.Trace().Bool("on", on).Msg("LED")
	return nil
}
