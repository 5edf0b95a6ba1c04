package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/config"
	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/webhook"
)

// group tracks background goroutines so Stop can wait for them.
type group struct {
	wg sync.WaitGroup
}

func (g *group) Go(fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// Wait blocks until every goroutine returned or the timeout elapsed.
func (g *group) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config
	g   group

	// Core infrastructure
	Bus *eventbus.Bus

	// Core and bulb side
	Bulb *BulbService

	// Inputs and LED
	Inputs *InputService

	// Optional observers
	Ledger    *LedgerService
	MQTT      *MQTTService
	Telemetry *TelemetryService

	// Outer surface
	Webhook *WebhookService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize event bus
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Initialize state core, dispatcher and bulb client
	s.Bulb = NewBulbService(cfg, s.Bus)

	// Initialize inputs (opens GPIO when enabled)
	s.Inputs = NewInputService(cfg, s.Bulb.Core, s.Bulb.Slot, s.Bus)

	var err error

	// Initialize audit ledger
	if cfg.Ledger.Enabled {
		s.Ledger, err = NewLedgerService(cfg, s.Bus)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	// Initialize MQTT bridge
	if cfg.MQTT.Enabled {
		s.MQTT, err = NewMQTTService(cfg, s.Inputs.Presence, s.Bus)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	// Initialize InfluxDB telemetry
	if cfg.InfluxDB.Enabled {
		s.Telemetry, err = NewTelemetryService(cfg, s.Bus)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	// Initialize webhook service
	deps := webhook.Deps{
		Core:  s.Bulb.Core,
		Slot:  s.Bulb.Slot,
		Ready: s.Bulb.Core,
		Tags:  s.Inputs.Presence,
		Bus:   s.Bus,
	}
	if s.Ledger != nil {
		deps.History = s.Ledger.Ledger
	}
	if s.Inputs.Virtual != nil {
		deps.Button = s.Inputs.Virtual
	}
	s.Webhook = NewWebhookService(cfg, deps)

	return s, nil
}

// Start starts all services in the correct order: the core and dispatcher
// first so inputs never submit into a core that is not running.
func (s *Services) Start(ctx context.Context) error {
	s.Bulb.Start(ctx, &s.g)
	s.Inputs.Start(ctx, &s.g)
	if s.Ledger != nil {
		s.Ledger.Start(ctx, &s.g)
	}
	s.Webhook.Start(ctx, &s.g)

	log.Debug().
		Bool("ledger", s.Ledger != nil).
		Bool("mqtt", s.MQTT != nil).
		Bool("influxdb", s.Telemetry != nil).
		Bool("gpio", s.Inputs.Board != nil).
		Msg("Services started")
	return nil
}

// Stop waits for background goroutines to exit, then releases resources.
// The caller cancels the context passed to Start first.
func (s *Services) Stop() error {
	if !s.g.Wait(s.cfg.ShutdownTimeout.Duration()) {
		log.Warn().Msg("Timed out waiting for services to stop")
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Webhook != nil {
		s.Webhook.Close()
	}
	// Drain the bus before closing the observers it feeds.
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.Telemetry != nil {
		s.Telemetry.Close()
	}
	if s.Ledger != nil {
		s.Ledger.Close()
	}
	if s.Inputs != nil {
		s.Inputs.Close()
	}
	if s.Bulb != nil {
		s.Bulb.Close()
	}
}
