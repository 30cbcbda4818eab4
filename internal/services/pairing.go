package services

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"contest-vote-backend/internal/metrics"
	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"
)

// PairOutcome discriminates the result of a pair request
type PairOutcome string

const (
	PairServed             PairOutcome = "ok"
	PairVotingClosed       PairOutcome = "voting_closed"
	InsufficientCandidates PairOutcome = "insufficient_candidates"
	NoMorePairs            PairOutcome = "no_more_pairs"
)

// PairResult is returned by NextPair. PhotoA and PhotoB are set only when
// Outcome is PairServed.
type PairResult struct {
	Outcome PairOutcome   `json:"status"`
	PhotoA  *models.Photo `json:"photo_a,omitempty"`
	PhotoB  *models.Photo `json:"photo_b,omitempty"`
}

// PairingService picks the next two photos to show a voter, favoring
// photos that have been compared the least.
type PairingService struct {
	store           repository.Store
	photoService    *PhotoService
	stratumFraction float64
	metrics         *metrics.Metrics
	now             func() time.Time
	newRand         func() *rand.Rand
}

// NewPairingService creates a new pairing service
func NewPairingService(store repository.Store, photoService *PhotoService, stratumFraction float64) *PairingService {
	return &PairingService{
		store:           store,
		photoService:    photoService,
		stratumFraction: stratumFraction,
		now:             time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
		},
	}
}

// Instrument records pair outcomes on m
func (s *PairingService) Instrument(m *metrics.Metrics) {
	s.metrics = m
}

// NextPair returns two approved photos of the contest, neither owned by the
// voter, that the voter has not voted on together yet.
func (s *PairingService) NextPair(ctx context.Context, contestID, voterID string) (*PairResult, error) {
	result, err := s.nextPair(ctx, contestID, voterID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePair(string(result.Outcome))
	return result, nil
}

func (s *PairingService) nextPair(ctx context.Context, contestID, voterID string) (*PairResult, error) {
	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if !contest.VotingOpen(s.now()) {
		return &PairResult{Outcome: PairVotingClosed}, nil
	}

	photos, err := s.store.ListPhotos(ctx, contestID, models.PhotoApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	candidates := make([]*models.Photo, 0, len(photos))
	for _, photo := range photos {
		if photo.OwnerID != voterID {
			candidates = append(candidates, photo)
		}
	}
	if len(candidates) < 2 {
		return &PairResult{Outcome: InsufficientCandidates}, nil
	}

	seen, err := s.store.VotedPairs(ctx, contestID, voterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load voted pairs: %w", err)
	}

	a, b, ok := SelectPair(candidates, seen, s.stratumFraction, s.newRand())
	if !ok {
		return &PairResult{Outcome: NoMorePairs}, nil
	}

	if s.photoService != nil {
		s.photoService.AttachViewURLs(ctx, a, b)
	}

	return &PairResult{Outcome: PairServed, PhotoA: a, PhotoB: b}, nil
}

// SelectPair chooses an unseen pair from candidates.
//
// Candidates are ordered by vote count and the search starts in the lowest
// stratum (fraction of the pool, at least two photos). Within a stratum the
// anchor is a least-compared photo that still has an unseen partner, and the
// partner is drawn among unseen partners, preferring ones compared at most
// once more than the anchor. The stratum doubles until it covers the whole
// pool. The returned order is randomized.
func SelectPair(candidates []*models.Photo, seen models.PairSet, fraction float64, rng *rand.Rand) (*models.Photo, *models.Photo, bool) {
	n := len(candidates)
	if n < 2 {
		return nil, nil, false
	}

	sorted := append([]*models.Photo(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].VoteCount != sorted[j].VoteCount {
			return sorted[i].VoteCount < sorted[j].VoteCount
		}
		return sorted[i].ID < sorted[j].ID
	})

	size := max(2, int(math.Ceil(float64(n)*fraction)))
	for {
		size = min(size, n)
		if a, b, ok := pickInStratum(sorted[:size], seen, rng); ok {
			if rng.IntN(2) == 1 {
				a, b = b, a
			}
			return a, b, true
		}
		if size == n {
			return nil, nil, false
		}
		size *= 2
	}
}

// pickInStratum expects stratum sorted by vote count ascending
func pickInStratum(stratum []*models.Photo, seen models.PairSet, rng *rand.Rand) (*models.Photo, *models.Photo, bool) {
	for start := 0; start < len(stratum); {
		// Group of photos sharing the lowest remaining vote count
		end := start + 1
		for end < len(stratum) && stratum[end].VoteCount == stratum[start].VoteCount {
			end++
		}

		level := append([]*models.Photo(nil), stratum[start:end]...)
		rng.Shuffle(len(level), func(i, j int) { level[i], level[j] = level[j], level[i] })

		for _, anchor := range level {
			var near, far []*models.Photo
			for _, other := range stratum {
				if other.ID == anchor.ID || seen.Has(anchor.ID, other.ID) {
					continue
				}
				if other.VoteCount <= anchor.VoteCount+1 {
					near = append(near, other)
				} else {
					far = append(far, other)
				}
			}
			if len(near) > 0 {
				return anchor, near[rng.IntN(len(near))], true
			}
			if len(far) > 0 {
				return anchor, far[rng.IntN(len(far))], true
			}
		}

		start = end
	}
	return nil, nil, false
}
