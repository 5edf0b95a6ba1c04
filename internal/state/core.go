package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/bulb"
	"github.com/dokzlo13/markerd/internal/eventbus"
)

// DefaultCommandBuffer is the capacity of the inbound command channel.
const DefaultCommandBuffer = 16

// ErrStopped is returned by Submit once the core has stopped running.
var ErrStopped = errors.New("state core stopped")

// Core is the single owner of DeviceState. It processes one command at a time,
// in arrival order, to completion. Other components reach it only through Submit.
type Core struct {
	commands chan Command
	queue    chan<- bulb.Command
	slot     *Slot[DeviceState]
	bus      *eventbus.Bus
	clock    func() time.Time

	stopped   chan struct{}
	ready     chan struct{}
	readyOnce sync.Once

	// Owned by the Run goroutine.
	state DeviceState
	seq   uint64
}

// Option configures a Core.
type Option func(*Core)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Core) { c.clock = clock }
}

// WithBus publishes a state_changed event after each effective transition.
func WithBus(bus *eventbus.Bus) Option {
	return func(c *Core) { c.bus = bus }
}

// WithCommandBuffer sets the inbound channel capacity.
func WithCommandBuffer(size int) Option {
	return func(c *Core) {
		if size >= 0 {
			c.commands = make(chan Command, size)
		}
	}
}

// NewCore creates a core that enqueues bulb commands on queue and
// broadcasts snapshots into slot.
func NewCore(queue chan<- bulb.Command, slot *Slot[DeviceState], opts ...Option) *Core {
	c := &Core{
		commands: make(chan Command, DefaultCommandBuffer),
		queue:    queue,
		slot:     slot,
		clock:    time.Now,
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit hands a command to the core. It blocks while the command buffer is
// full and returns early only if ctx is cancelled or the core has stopped.
func (c *Core) Submit(ctx context.Context, cmd Command) error {
	select {
	case c.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// Ready reports whether the core has processed at least one command,
// including commands that changed nothing.
func (c *Core) Ready() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// Run processes commands until ctx is cancelled.
func (c *Core) Run(ctx context.Context) error {
	defer close(c.stopped)

	log.Info().Msg("State core started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("State core stopping")
			return nil
		case cmd := <-c.commands:
			if err := c.handle(ctx, cmd); err != nil {
				log.Info().Str("command", cmd.Name()).Msg("State core stopped while enqueueing")
				return nil
			}
		}
	}
}

// handle applies one command and emits its effects: enqueue first, then broadcast.
// The only way it fails is ctx being cancelled while the outbound queue is full.
func (c *Core) handle(ctx context.Context, cmd Command) error {
	defer c.readyOnce.Do(func() { close(c.ready) })

	if sm, ok := cmd.(SetMarkerColor); ok && !sm.Color.Valid() {
		log.Warn().Str("color", sm.Color.String()).Msg("Ignoring marker color outside the marker set")
		return nil
	}

	next, effects := Transition(c.state, cmd, c.clock())
	c.state = next

	if effects.None() {
		log.Debug().Str("command", cmd.Name()).Msg("No state change")
		return nil
	}

	if !effects.Bulb.IsZero() {
		select {
		case c.queue <- effects.Bulb:
		default:
			log.Warn().Str("command", effects.Bulb.String()).Msg("Bulb queue full, waiting")
			select {
			case c.queue <- effects.Bulb:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if effects.Broadcast {
		c.slot.Set(next)
	}

	c.seq++
	c.logTransition(cmd, next, effects)
	c.publish(cmd, next, effects)
	return nil
}

func (c *Core) logTransition(cmd Command, s DeviceState, effects Effects) {
	event := log.Info().
		Str("command", cmd.Name()).
		Uint64("seq", c.seq).
		Str("marker", s.LastMarkerColor.String()).
		Bool("connected", s.IsConnected).
		Uint8("dimmer", s.DimmerLevel)
	if !effects.Bulb.IsZero() {
		event = event.Str("enqueued", effects.Bulb.String())
	}
	event.Msg("State transition")
}

func (c *Core) publish(cmd Command, s DeviceState, effects Effects) {
	data := map[string]interface{}{
		"seq":       c.seq,
		"command":   cmd.Name(),
		"state":     s,
		"broadcast": effects.Broadcast,
	}
	if !effects.Bulb.IsZero() {
		data["enqueued"] = effects.Bulb.String()
	}
	c.bus.Publish(eventbus.Event{Type: eventbus.EventTypeStateChanged, Data: data})
}
