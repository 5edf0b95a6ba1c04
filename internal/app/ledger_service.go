package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/config"
	"github.com/dokzlo13/markerd/internal/db"
	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/ledger"
)

// LedgerService keeps the SQLite audit trail of dispatches and transitions.
// It is write-only from the core's perspective: nothing is restored from it.
type LedgerService struct {
	cfg *config.Config

	DB     *db.DB
	Ledger *ledger.Ledger
}

// NewLedgerService opens the database and subscribes the ledger to the bus.
func NewLedgerService(cfg *config.Config, bus *eventbus.Bus) (*LedgerService, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	l := ledger.New(database.DB)
	l.Register(bus)

	log.Info().Str("path", cfg.Database.Path).Msg("Event ledger opened")

	return &LedgerService{cfg: cfg, DB: database, Ledger: l}, nil
}

// Start runs periodic retention cleanup.
func (s *LedgerService) Start(ctx context.Context, g *group) {
	g.Go(func() {
		s.Ledger.RunRetention(ctx, s.cfg.Ledger.GetRetention(), s.cfg.Ledger.CleanupInterval.Duration())
	})
}

// Close closes the database.
func (s *LedgerService) Close() {
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
