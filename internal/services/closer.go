package services

import (
	"context"
	"time"

	"contest-vote-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// ContestCloser periodically finalizes contests whose voting window has passed
type ContestCloser struct {
	store    repository.Store
	ranking  *RankingService
	interval time.Duration
	now      func() time.Time
}

// NewContestCloser creates a worker that sweeps every interval
func NewContestCloser(store repository.Store, ranking *RankingService, interval time.Duration) *ContestCloser {
	return &ContestCloser{
		store:    store,
		ranking:  ranking,
		interval: interval,
		now:      time.Now,
	}
}

// Start runs one sweep immediately, then every interval until ctx is done
func (w *ContestCloser) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Msg("Contest closer started")

	w.Sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Sweep(ctx)
		case <-ctx.Done():
			log.Info().Msg("Contest closer stopped")
			return
		}
	}
}

// Sweep finalizes every expired contest and returns how many were closed
func (w *ContestCloser) Sweep(ctx context.Context) int {
	contests, err := w.store.ListContestsToClose(ctx, w.now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list expired contests")
		return 0
	}

	closed := 0
	for _, contest := range contests {
		if ctx.Err() != nil {
			break
		}
		if _, err := w.ranking.FinalizeContest(ctx, contest.ID); err != nil {
			log.Error().Err(err).Str("contest_id", contest.ID).Msg("Failed to finalize contest")
			continue
		}
		closed++
	}

	if closed > 0 {
		log.Info().Int("closed", closed).Msg("Contest sweep complete")
	}
	return closed
}
