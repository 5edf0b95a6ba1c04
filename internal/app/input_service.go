package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/config"
	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/gpio"
	"github.com/dokzlo13/markerd/internal/input"
	"github.com/dokzlo13/markerd/internal/led"
	"github.com/dokzlo13/markerd/internal/state"
)

// InputService wraps the input sources and the status LED.
// Without GPIO the button is virtual and the LED only logs.
type InputService struct {
	Board    *gpio.Board // nil when GPIO is disabled or unavailable
	Presence *input.Presence
	Button   input.ButtonReader
	Virtual  *gpio.VirtualButton // set when Button is virtual

	RFID         *input.RFIDPoller
	Buttons      *input.ButtonPoller
	Connectivity *input.ConnectivityMonitor
	Sync         *input.SyncTicker
	LED          *led.Renderer
}

// NewInputService opens the GPIO board if configured and builds every poller.
func NewInputService(cfg *config.Config, core input.Submitter, slot *state.Slot[state.DeviceState], bus *eventbus.Bus) *InputService {
	s := &InputService{
		Presence: input.NewPresence(cfg.Inputs.RFID.PresenceTTL.Duration()),
	}

	var output led.Output = led.LogOutput{}
	if cfg.GPIO.Enabled {
		board, err := gpio.Open()
		if err != nil {
			log.Warn().Err(err).Msg("GPIO unavailable, using virtual button and log LED")
		} else {
			s.Board = board
			s.Button = board.Button(cfg.GPIO.ButtonPin, cfg.GPIO.ButtonActiveLow)
			output = board.LED(cfg.GPIO.LEDPin, cfg.GPIO.LEDActiveLow)
			log.Info().
				Int("button_pin", cfg.GPIO.ButtonPin).
				Int("led_pin", cfg.GPIO.LEDPin).
				Msg("GPIO opened")
		}
	}
	if s.Button == nil {
		s.Virtual = &gpio.VirtualButton{}
		s.Button = s.Virtual
	}

	s.RFID = input.NewRFIDPoller(s.Presence, core, bus, cfg.Inputs.RFID.Interval.Duration())
	s.Buttons = input.NewButtonPoller(s.Button, core, cfg.Inputs.Button.Interval.Duration(), cfg.Inputs.Button.GetLongPress())
	s.Connectivity = input.NewConnectivityMonitor(
		input.NewTCPProbe(cfg.Inputs.Connectivity.Address, cfg.Inputs.Connectivity.Timeout.Duration()),
		core,
		cfg.Inputs.Connectivity.Interval.Duration(),
	)
	s.Sync = input.NewSyncTicker(core, cfg.Inputs.Sync.Interval.Duration())
	s.LED = led.NewRenderer(output, slot, timingFromConfig(cfg.LED), cfg.LED.Refresh.Duration())

	return s
}

// Start runs the LED renderer and every input source.
func (s *InputService) Start(ctx context.Context, g *group) {
	g.Go(func() { s.LED.Run(ctx) })
	g.Go(func() { s.Connectivity.Run(ctx) })
	g.Go(func() { s.RFID.Run(ctx) })
	g.Go(func() { s.Buttons.Run(ctx) })
	g.Go(func() { s.Sync.Run(ctx) })
}

// Close releases the GPIO board.
func (s *InputService) Close() {
	if s.Board != nil {
		if err := s.Board.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close GPIO")
		}
	}
}

func timingFromConfig(c config.LEDConfig) led.Timing {
	return led.Timing{
		FlashOn:      c.FlashOn.Duration(),
		FlashOff:     c.FlashOff.Duration(),
		FlashCycle:   c.FlashCycle.Duration(),
		SlowBlinkOn:  c.SlowBlinkOn.Duration(),
		SlowBlinkOff: c.SlowBlinkOff.Duration(),
		ButtonFlash:  c.ButtonFlash.Duration(),
	}
}
