package bulb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/eventbus"
)

// DefaultQueueSize absorbs a burst of marker taps without buffering indefinitely.
const DefaultQueueSize = 8

// Sender delivers one command to the bulb.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

// DispatcherConfig controls pacing of outbound commands.
type DispatcherConfig struct {
	Timeout        time.Duration // per-command delivery timeout
	SettleDelay    time.Duration // pause after each command so the bulb's fade can finish
	FailureBackoff time.Duration // pause after a transport failure instead of SettleDelay
}

// DefaultDispatcherConfig returns the tuned defaults for a Tasmota bulb.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Timeout:        5 * time.Second,
		SettleDelay:    500 * time.Millisecond,
		FailureBackoff: 2 * time.Second,
	}
}

// Result describes the outcome of one dispatched command.
type Result struct {
	ID       string
	Command  Command
	Err      error
	Duration time.Duration
}

// Dispatcher drains the outbound queue strictly in order, one command at a time.
// Failed commands are logged and dropped; the state core re-asserts intended
// state on reconnect and on periodic sync.
type Dispatcher struct {
	sender Sender
	queue  <-chan Command
	config DispatcherConfig
	bus    *eventbus.Bus
	sleep  func(ctx context.Context, d time.Duration)
}

// NewDispatcher creates a dispatcher reading from queue. bus may be nil.
func NewDispatcher(sender Sender, queue <-chan Command, config DispatcherConfig, bus *eventbus.Bus) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}

	return &Dispatcher{
		sender: sender,
		queue:  queue,
		config: config,
		bus:    bus,
		sleep:  sleepContext,
	}
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Info().
		Dur("timeout", d.config.Timeout).
		Dur("settle_delay", d.config.SettleDelay).
		Msg("Bulb dispatcher started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Bulb dispatcher stopping")
			return nil
		case cmd := <-d.queue:
			result := d.dispatch(ctx, cmd)
			d.publish(result)

			pause := d.config.SettleDelay
			var transportErr *TransportError
			if errors.As(result.Err, &transportErr) && d.config.FailureBackoff > pause {
				pause = d.config.FailureBackoff
			}
			d.sleep(ctx, pause)
		}
	}
}

// dispatch sends a single command with the configured timeout.
func (d *Dispatcher) dispatch(ctx context.Context, cmd Command) Result {
	result := Result{
		ID:      uuid.NewString(),
		Command: cmd,
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	start := time.Now()
	result.Err = d.sender.Send(sendCtx, cmd)
	result.Duration = time.Since(start)

	if result.Err != nil {
		log.Warn().
			Err(result.Err).
			Str("dispatch_id", result.ID).
			Str("command", cmd.String()).
			Dur("duration", result.Duration).
			Msg("Bulb command failed, dropping")
		return result
	}

	log.Info().
		Str("dispatch_id", result.ID).
		Str("command", cmd.String()).
		Dur("duration", result.Duration).
		Msg("Bulb command sent")
	return result
}

func (d *Dispatcher) publish(result Result) {
	data := map[string]interface{}{
		"dispatch_id": result.ID,
		"kind":        result.Command.Kind.String(),
		"command":     result.Command.String(),
		"ok":          result.Err == nil,
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		data["error"] = result.Err.Error()
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.EventTypeBulbDispatched, Data: data})
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
