package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contest-vote-backend/internal/metrics"
	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// VoteOutcome discriminates the result of casting a vote
type VoteOutcome string

const (
	VoteAccepted     VoteOutcome = "ok"
	VotingClosed     VoteOutcome = "voting_closed"
	InvalidPhotoPair VoteOutcome = "invalid_photo_pair"
	DuplicatePair    VoteOutcome = "duplicate_pair"
	QuotaExceeded    VoteOutcome = "quota_exceeded"
)

// VoteResult is returned by CastVote for every precondition outcome. Only
// storage failures are reported as errors.
type VoteResult struct {
	Outcome             VoteOutcome   `json:"status"`
	Limit               string        `json:"limit,omitempty"`
	Reason              string        `json:"reason,omitempty"`
	VoteID              string        `json:"vote_id,omitempty"`
	VotesRemaining      int           `json:"votes_remaining"`
	DailyVotesRemaining int           `json:"daily_votes_remaining"`
	Update              *RatingUpdate `json:"-"`
}

// errPairRace aborts a vote transaction that lost a race on the same pair
var errPairRace = errors.New("pair voted concurrently")

// VoteService is the vote ledger: it validates a vote, records it and applies
// the rating update in a single store transaction.
type VoteService struct {
	store   repository.Store
	quotas  *QuotaManager
	cache   *StandingsCache
	hub     *ContestHub
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewVoteService creates a new vote service
func NewVoteService(store repository.Store, quotas *QuotaManager, cache *StandingsCache, hub *ContestHub) *VoteService {
	return &VoteService{
		store:  store,
		quotas: quotas,
		cache:  cache,
		hub:    hub,
		now:    time.Now,
	}
}

// Instrument records vote outcomes on m
func (s *VoteService) Instrument(m *metrics.Metrics) {
	s.metrics = m
}

// CastVote records that voterID preferred winnerID over loserID.
// Preconditions are checked in order: voting window, photo pair validity,
// repeated pair, quota.
func (s *VoteService) CastVote(ctx context.Context, contestID, voterID, winnerID, loserID string) (*VoteResult, error) {
	result, err := s.castVote(ctx, contestID, voterID, winnerID, loserID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveVote(string(result.Outcome))
	return result, nil
}

func (s *VoteService) castVote(ctx context.Context, contestID, voterID, winnerID, loserID string) (*VoteResult, error) {
	now := s.now()
	var result *VoteResult
	var contest *models.Contest

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		contest, err = tx.GetContest(ctx, contestID)
		if err != nil {
			return err
		}

		quota, err := tx.LockQuota(ctx, contestID, voterID)
		if err != nil {
			return err
		}
		s.quotas.Refresh(quota, now)

		reject := func(outcome VoteOutcome, reason string) {
			status := s.quotas.Status(contest, quota)
			result = &VoteResult{
				Outcome:             outcome,
				Reason:              reason,
				VotesRemaining:      status.VotesRemaining,
				DailyVotesRemaining: status.DailyVotesRemaining,
			}
		}

		if !contest.VotingOpen(now) {
			reject(VotingClosed, "voting has not started or has ended")
			return nil
		}

		if winnerID == "" || loserID == "" || winnerID == loserID {
			reject(InvalidPhotoPair, "winner and loser must be two different photos")
			return nil
		}

		photos, err := tx.LockPhotos(ctx, winnerID, loserID)
		if err != nil {
			return err
		}
		winner, loser := photos[winnerID], photos[loserID]
		if reason := validatePair(contestID, voterID, winner, loser); reason != "" {
			reject(InvalidPhotoPair, reason)
			return nil
		}

		voted, err := tx.PairVoted(ctx, contestID, voterID, models.NewPairKey(winnerID, loserID))
		if err != nil {
			return err
		}
		if voted {
			reject(DuplicatePair, "pair already voted")
			return nil
		}

		if limit := s.quotas.ExceededLimit(contest, quota); limit != "" {
			reject(QuotaExceeded, limit+" vote limit reached")
			result.Limit = limit
			return nil
		}

		vote := &models.Vote{
			ID:            uuid.New().String(),
			ContestID:     contestID,
			VoterID:       voterID,
			WinnerPhotoID: winnerID,
			LoserPhotoID:  loserID,
			CreatedAt:     now,
		}
		if err := tx.InsertVote(ctx, vote); err != nil {
			if errors.Is(err, repository.ErrPairAlreadyVoted) {
				return errPairRace
			}
			return err
		}

		update := ApplyVote(contest.KFactor, winner, loser)
		if err := tx.SetRating(ctx, winner.ID, winner.Rating, winner.VoteCount); err != nil {
			return err
		}
		if err := tx.SetRating(ctx, loser.ID, loser.Rating, loser.VoteCount); err != nil {
			return err
		}

		s.quotas.Record(quota, now)
		if err := tx.SaveQuota(ctx, quota); err != nil {
			return err
		}

		status := s.quotas.Status(contest, quota)
		result = &VoteResult{
			Outcome:             VoteAccepted,
			VoteID:              vote.ID,
			VotesRemaining:      status.VotesRemaining,
			DailyVotesRemaining: status.DailyVotesRemaining,
			Update:              &update,
		}
		return nil
	})
	if errors.Is(err, errPairRace) {
		// The concurrent winner already holds this pair; report the current quota
		status, statusErr := s.VoteStatus(ctx, contestID, voterID)
		if statusErr != nil {
			return nil, statusErr
		}
		return &VoteResult{
			Outcome:             DuplicatePair,
			Reason:              "pair already voted",
			VotesRemaining:      status.VotesRemaining,
			DailyVotesRemaining: status.DailyVotesRemaining,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cast vote: %w", err)
	}

	if result.Outcome == VoteAccepted {
		s.afterVote(ctx, contest, result)
	}
	return result, nil
}

func (s *VoteService) afterVote(ctx context.Context, contest *models.Contest, result *VoteResult) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, contest.ID); err != nil {
			log.Warn().Err(err).Str("contest_id", contest.ID).Msg("Failed to invalidate standings cache")
		}
	}
	if s.hub != nil && contest.LiveStandings {
		s.hub.Broadcast(contest.ID, WSMessage{
			Type:      "vote_recorded",
			ContestID: contest.ID,
			Data:      result.Update,
		})
	}
}

func validatePair(contestID, voterID string, winner, loser *models.Photo) string {
	if winner == nil || loser == nil {
		return "unknown photo"
	}
	for _, photo := range []*models.Photo{winner, loser} {
		if photo.ContestID != contestID {
			return "photo does not belong to contest"
		}
		if photo.Status != models.PhotoApproved {
			return "photo is not approved for voting"
		}
		if photo.OwnerID == voterID {
			return "cannot vote on own photo"
		}
	}
	return ""
}

// VoteStatus reports the voter's remaining votes and whether a vote would be
// accepted right now.
func (s *VoteService) VoteStatus(ctx context.Context, contestID, voterID string) (*QuotaStatus, error) {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}

	quota, err := s.store.GetQuota(ctx, contestID, voterID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	s.quotas.Refresh(quota, now)
	status := s.quotas.Status(contest, quota)
	status.CanVote = status.CanVote && contest.VotingOpen(now)
	return &status, nil
}
