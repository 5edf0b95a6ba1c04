// Package input turns hardware and network observations into state commands.
package input

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/state"
)

// Submitter accepts state commands. *state.Core implements it.
type Submitter interface {
	Submit(ctx context.Context, cmd state.Command) error
}

// submit forwards cmd and reports whether the caller should keep running.
func submit(ctx context.Context, s Submitter, source string, cmd state.Command) bool {
	err := s.Submit(ctx, cmd)
	switch {
	case err == nil:
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, state.ErrStopped):
		return false
	default:
		log.Error().Err(err).Str("source", source).Str("command", cmd.Name()).Msg("Failed to submit command")
		return true
	}
}
