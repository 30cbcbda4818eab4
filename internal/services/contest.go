package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"contest-vote-backend/internal/config"
	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrForbidden is returned when the caller may not act on a contest
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput wraps request validation failures
	ErrInvalidInput = errors.New("invalid input")
	// ErrContestFinished is returned for changes to a contest that has ended
	ErrContestFinished = errors.New("contest is finished")
)

// CreateContestRequest describes a new contest. Nil limits take the
// configured defaults; a zero limit disables it.
type CreateContestRequest struct {
	Title          string    `json:"title"`
	VotingOpensAt  time.Time `json:"voting_opens_at"`
	VotingClosesAt time.Time `json:"voting_closes_at"`
	MaxTotalVotes  *int      `json:"max_total_votes"`
	MaxDailyVotes  *int      `json:"max_daily_votes"`
	WinnerCount    int       `json:"winner_count"`
	KFactor        *float64  `json:"k_factor"`
	LiveStandings  bool      `json:"live_standings"`
}

// ContestService registers contests and their voting rules
type ContestService struct {
	store    repository.Store
	ranking  *RankingService
	defaults config.VotingConfig
	now      func() time.Time
}

// NewContestService creates a new contest service
func NewContestService(store repository.Store, ranking *RankingService, defaults config.VotingConfig) *ContestService {
	return &ContestService{
		store:    store,
		ranking:  ranking,
		defaults: defaults,
		now:      time.Now,
	}
}

// CreateContest registers a contest organized by the caller
func (s *ContestService) CreateContest(ctx context.Context, caller Claims, req CreateContestRequest) (*models.Contest, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}

	contest := &models.Contest{
		ID:             uuid.New().String(),
		OrganizerID:    caller.UserID,
		Title:          strings.TrimSpace(req.Title),
		Status:         models.ContestActive,
		VotingOpensAt:  req.VotingOpensAt,
		VotingClosesAt: req.VotingClosesAt,
		MaxTotalVotes:  s.defaults.DefaultMaxTotalVotes,
		MaxDailyVotes:  s.defaults.DefaultMaxDailyVotes,
		WinnerCount:    req.WinnerCount,
		KFactor:        s.defaults.KFactor,
		LiveStandings:  req.LiveStandings,
		CreatedAt:      s.now(),
	}
	if contest.VotingOpensAt.IsZero() {
		contest.VotingOpensAt = contest.CreatedAt
	}
	if req.MaxTotalVotes != nil {
		contest.MaxTotalVotes = *req.MaxTotalVotes
	}
	if req.MaxDailyVotes != nil {
		contest.MaxDailyVotes = *req.MaxDailyVotes
	}
	if contest.WinnerCount == 0 {
		contest.WinnerCount = s.defaults.DefaultWinnerCount
	}
	if req.KFactor != nil {
		contest.KFactor = *req.KFactor
	}

	if err := validateContest(contest); err != nil {
		return nil, err
	}

	if err := s.store.CreateContest(ctx, contest); err != nil {
		return nil, fmt.Errorf("failed to create contest: %w", err)
	}

	log.Info().
		Str("contest_id", contest.ID).
		Str("organizer_id", contest.OrganizerID).
		Time("closes_at", contest.VotingClosesAt).
		Msg("Contest created")

	return contest, nil
}

// GetContest returns a contest by id
func (s *ContestService) GetContest(ctx context.Context, contestID string) (*models.Contest, error) {
	return s.store.GetContest(ctx, contestID)
}

func validateContest(c *models.Contest) error {
	switch {
	case c.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	case c.VotingClosesAt.IsZero():
		return fmt.Errorf("%w: voting_closes_at is required", ErrInvalidInput)
	case !c.VotingOpensAt.Before(c.VotingClosesAt):
		return fmt.Errorf("%w: voting must open before it closes", ErrInvalidInput)
	case c.MaxTotalVotes < 0 || c.MaxDailyVotes < 0:
		return fmt.Errorf("%w: vote limits must not be negative", ErrInvalidInput)
	case c.KFactor <= 0:
		return fmt.Errorf("%w: k_factor must be positive", ErrInvalidInput)
	}

	switch c.WinnerCount {
	case 1, 3, 9:
	default:
		return fmt.Errorf("%w: winner_count must be 1, 3 or 9", ErrInvalidInput)
	}
	return nil
}

// canManage reports whether the caller organizes the contest or is an admin
func canManage(caller Claims, contest *models.Contest) bool {
	return caller.Role == models.RoleAdmin ||
		(caller.Role == models.RoleOrganizer && contest.OrganizerID == caller.UserID)
}

// CloseContest finalizes a contest on behalf of its organizer
func (s *ContestService) CloseContest(ctx context.Context, caller Claims, contestID string) (*StandingsResult, error) {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !canManage(caller, contest) {
		return nil, ErrForbidden
	}
	return s.ranking.FinalizeContest(ctx, contestID)
}

// ListVotes returns the vote ledger of a contest in cast order, for the
// organizer's audit of a running or finished contest
func (s *ContestService) ListVotes(ctx context.Context, caller Claims, contestID string) ([]*models.Vote, error) {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !canManage(caller, contest) {
		return nil, ErrForbidden
	}
	return s.store.ListVotes(ctx, contestID)
}
