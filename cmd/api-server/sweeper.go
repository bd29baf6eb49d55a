package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-agenda/internal/appointment"
)

// runSweeper completes elapsed confirmed appointments every interval until
// ctx is done.
func runSweeper(ctx context.Context, svc *appointment.Service, interval time.Duration, log zerolog.Logger) {
	log = log.With().Str("component", "sweeper").Logger()
	log.Info().Dur("interval", interval).Msg("sweeper started")

	// Run once at startup
	sweepOnce(ctx, svc, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping sweeper")
			return
		case <-ticker.C:
			sweepOnce(ctx, svc, log)
		}
	}
}

func sweepOnce(ctx context.Context, svc *appointment.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CompleteElapsed(runCtx, start)
	if err != nil {
		log.Error().Err(err).Int("completed", n).Msg("sweep run failed")
		return
	}
	if n > 0 {
		log.Info().Int("completed", n).Dur("took", time.Since(start)).Msg("sweep run complete")
	}
}
