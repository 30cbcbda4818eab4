package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"contest-vote-backend/internal/metrics"
	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// ErrStandingsUnavailable is returned for running contests without a live preview
var ErrStandingsUnavailable = errors.New("standings are not available until the contest closes")

// StandingsResult is the ranked output of a contest
type StandingsResult struct {
	ContestID              string            `json:"contest_id"`
	Final                  bool              `json:"final"`
	InsufficientVotingData bool              `json:"insufficient_voting_data"`
	Standings              []models.Standing `json:"standings"`
}

// Winners returns the standings flagged as winners
func (r *StandingsResult) Winners() []models.Standing {
	var winners []models.Standing
	for _, st := range r.Standings {
		if st.Winner {
			winners = append(winners, st)
		}
	}
	return winners
}

// RankPhotos orders photos by rating, then vote count, then upload time, then id.
// When fewer than two photos were ever compared there is no ranking signal,
// so upload order is used, insufficient is true and nobody is flagged as a
// winner. Otherwise the first winnerCount entries are winners.
func RankPhotos(photos []*models.Photo, winnerCount int) (standings []models.Standing, insufficient bool) {
	ranked := append([]*models.Photo(nil), photos...)

	compared := 0
	for _, p := range ranked {
		if p.VoteCount > 0 {
			compared++
		}
	}
	insufficient = compared < 2

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if !insufficient {
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
			if a.VoteCount != b.VoteCount {
				return a.VoteCount > b.VoteCount
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	standings = make([]models.Standing, len(ranked))
	for i, p := range ranked {
		standings[i] = models.Standing{
			Rank:      i + 1,
			PhotoID:   p.ID,
			OwnerID:   p.OwnerID,
			Rating:    p.Rating,
			VoteCount: p.VoteCount,
			Winner:    !insufficient && i < winnerCount,
		}
	}
	return standings, insufficient
}

// RankingService resolves contest standings and finalizes contests
type RankingService struct {
	store    repository.Store
	cache    *StandingsCache
	hub      *ContestHub
	notifier WinnerNotifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewRankingService creates a new ranking service
func NewRankingService(store repository.Store, cache *StandingsCache, hub *ContestHub, notifier WinnerNotifier) *RankingService {
	return &RankingService{
		store:    store,
		cache:    cache,
		hub:      hub,
		notifier: notifier,
		now:      time.Now,
	}
}

// Instrument records finalization timings on m
func (s *RankingService) Instrument(m *metrics.Metrics) {
	s.metrics = m
}

// Standings returns the final standings of a finished contest, or a live
// preview when the organizer enabled one.
func (s *RankingService) Standings(ctx context.Context, contestID string) (*StandingsResult, error) {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}

	if contest.Status == models.ContestFinished {
		standings, err := s.store.GetStandings(ctx, contestID)
		if err != nil {
			return nil, err
		}
		return &StandingsResult{
			ContestID:              contestID,
			Final:                  true,
			InsufficientVotingData: contest.InsufficientVotingData,
			Standings:              standings,
		}, nil
	}

	if !contest.LiveStandings {
		return nil, ErrStandingsUnavailable
	}

	var gen int64
	cacheable := false
	if s.cache != nil {
		cached, g, err := s.cache.Get(ctx, contestID)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("contest_id", contestID).Msg("Failed to read standings cache")
		case cached != nil:
			return cached, nil
		default:
			gen, cacheable = g, true
		}
	}

	photos, err := s.store.ListPhotos(ctx, contestID, models.PhotoApproved)
	if err != nil {
		return nil, err
	}
	standings, insufficient := RankPhotos(photos, contest.WinnerCount)
	result := &StandingsResult{
		ContestID:              contestID,
		InsufficientVotingData: insufficient,
		Standings:              standings,
	}

	if cacheable {
		if _, err := s.cache.Set(ctx, result, gen); err != nil {
			log.Warn().Err(err).Str("contest_id", contestID).Msg("Failed to write standings cache")
		}
	}
	return result, nil
}

// FinalizeContest closes voting, freezes the ranking and announces winners.
// Finalizing an already finished contest returns its stored standings.
func (s *RankingService) FinalizeContest(ctx context.Context, contestID string) (*StandingsResult, error) {
	start := time.Now()
	var result *StandingsResult
	var contest *models.Contest
	alreadyFinished := false

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		contest, err = tx.LockContest(ctx, contestID)
		if err != nil {
			return err
		}

		if contest.Status == models.ContestFinished {
			alreadyFinished = true
			standings, err := tx.GetStandings(ctx, contestID)
			if err != nil {
				return err
			}
			result = &StandingsResult{
				ContestID:              contestID,
				Final:                  true,
				InsufficientVotingData: contest.InsufficientVotingData,
				Standings:              standings,
			}
			return nil
		}

		photos, err := tx.ListPhotos(ctx, contestID, models.PhotoApproved)
		if err != nil {
			return err
		}
		standings, insufficient := RankPhotos(photos, contest.WinnerCount)

		if err := tx.FinishContest(ctx, contestID, s.now(), insufficient); err != nil {
			return err
		}
		if err := tx.SaveStandings(ctx, contestID, standings); err != nil {
			return err
		}

		result = &StandingsResult{
			ContestID:              contestID,
			Final:                  true,
			InsufficientVotingData: insufficient,
			Standings:              standings,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize contest: %w", err)
	}
	if alreadyFinished {
		return result, nil
	}
	s.metrics.ObserveFinalize(time.Since(start))

	log.Info().
		Str("contest_id", contestID).
		Int("photos", len(result.Standings)).
		Bool("insufficient_voting_data", result.InsufficientVotingData).
		Msg("Contest finalized")

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, contestID); err != nil {
			log.Warn().Err(err).Str("contest_id", contestID).Msg("Failed to invalidate standings cache")
		}
	}

	if s.hub != nil {
		s.hub.Broadcast(contestID, WSMessage{
			Type:      "contest_finished",
			ContestID: contestID,
			Data:      result,
		})
	}

	if winners := result.Winners(); s.notifier != nil && len(winners) > 0 {
		if err := s.notifier.NotifyWinners(ctx, contest, winners); err != nil {
			log.Error().Err(err).Str("contest_id", contestID).Msg("Failed to notify winners")
		}
	}

	return result, nil
}
