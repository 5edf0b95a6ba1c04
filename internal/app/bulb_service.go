package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/bulb"
	"github.com/dokzlo13/markerd/internal/config"
	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/state"
)

// BulbService wraps the state core and everything downstream of it:
// the outbound queue, the dispatcher and the Tasmota client.
type BulbService struct {
	cfg *config.Config

	Client     *bulb.Client
	Queue      chan bulb.Command
	Dispatcher *bulb.Dispatcher
	Core       *state.Core
	Slot       *state.Slot[state.DeviceState]
}

// NewBulbService creates the core and dispatcher without starting them.
func NewBulbService(cfg *config.Config, bus *eventbus.Bus) *BulbService {
	client := bulb.NewClient(cfg.Bulb.Address, cfg.Bulb.Timeout.Duration())
	queue := make(chan bulb.Command, cfg.Bulb.QueueSize)
	slot := state.NewSlot[state.DeviceState]()

	core := state.NewCore(queue, slot,
		state.WithBus(bus),
		state.WithCommandBuffer(cfg.Core.CommandBuffer),
	)

	dispatcher := bulb.NewDispatcher(client, queue, bulb.DispatcherConfig{
		Timeout:        cfg.Bulb.Timeout.Duration(),
		SettleDelay:    cfg.Bulb.SettleDelay.Duration(),
		FailureBackoff: cfg.Bulb.FailureBackoff.Duration(),
	}, bus)

	return &BulbService{
		cfg:        cfg,
		Client:     client,
		Queue:      queue,
		Dispatcher: dispatcher,
		Core:       core,
		Slot:       slot,
	}
}

// Start runs the core and the dispatcher in background goroutines.
func (s *BulbService) Start(ctx context.Context, g *group) {
	g.Go(func() {
		if err := s.Core.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("State core error")
		}
	})
	g.Go(func() {
		if err := s.Dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Dispatcher error")
		}
	})
}

// Close releases the HTTP client.
func (s *BulbService) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
}
