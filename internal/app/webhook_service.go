package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/config"
	"github.com/dokzlo13/markerd/internal/webhook"
)

// WebhookService wraps the HTTP control server and its websocket hub.
type WebhookService struct {
	cfg    *config.Config
	server *webhook.Server
	Hub    *webhook.Hub
}

// NewWebhookService creates the server and a hub streaming state_changed from deps.Bus.
func NewWebhookService(cfg *config.Config, deps webhook.Deps) *WebhookService {
	hub := webhook.NewHub(deps.Slot)
	if deps.Bus != nil {
		hub.Register(deps.Bus)
	}
	deps.Hub = hub
	deps.TagRate = cfg.Webhook.TagRate

	return &WebhookService{
		cfg:    cfg,
		server: webhook.NewServer(cfg.Webhook.Host, cfg.Webhook.Port, deps),
		Hub:    hub,
	}
}

// Start begins the webhook server if enabled.
func (s *WebhookService) Start(ctx context.Context, g *group) {
	if !s.cfg.Webhook.Enabled {
		log.Debug().Msg("Webhook server disabled")
		return
	}

	g.Go(func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("Webhook server error")
		}
	})
}

// Close disconnects websocket clients.
func (s *WebhookService) Close() {
	if s.Hub != nil {
		s.Hub.Close()
	}
}
