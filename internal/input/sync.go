package input

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/state"
)

// DefaultSyncInterval is how often the intended bulb state is re-sent.
const DefaultSyncInterval = 10 * time.Second

// SyncTicker periodically submits SyncState.
type SyncTicker struct {
	core     Submitter
	interval time.Duration
}

// NewSyncTicker creates a ticker.
func NewSyncTicker(core Submitter, interval time.Duration) *SyncTicker {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &SyncTicker{core: core, interval: interval}
}

// Run submits SyncState every interval until ctx is cancelled.
func (s *SyncTicker) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("Sync ticker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Sync ticker stopped")
			return
		case <-ticker.C:
			if !submit(ctx, s.core, "sync", state.SyncState{}) {
				log.Info().Msg("Sync ticker stopped")
				return
			}
		}
	}
}
