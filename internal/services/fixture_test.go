package services

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fixture wires the voting services over a memory store with a movable clock
type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *repository.MemoryStore
	contest *models.Contest
	clock   time.Time
	uploads int

	votes   *VoteService
	pairing *PairingService
	ranking *RankingService
}

func newFixture(t *testing.T, photos int, configure func(c *models.Contest)) *fixture {
	t.Helper()

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: repository.NewMemoryStore(),
		clock: testNow,
	}
	now := func() time.Time { return f.clock }

	f.contest = &models.Contest{
		ID:             "c1",
		OrganizerID:    "org",
		Title:          "Harbour lights",
		Status:         models.ContestActive,
		VotingOpensAt:  testNow.Add(-time.Hour),
		VotingClosesAt: testNow.Add(30 * 24 * time.Hour),
		WinnerCount:    1,
		KFactor:        32,
		CreatedAt:      testNow.Add(-2 * time.Hour),
	}
	if configure != nil {
		configure(f.contest)
	}
	if err := f.store.CreateContest(f.ctx, f.contest); err != nil {
		t.Fatalf("CreateContest() error = %v", err)
	}

	for i := 1; i <= photos; i++ {
		f.addPhoto(fmt.Sprintf("p%02d", i), fmt.Sprintf("owner-%02d", i), true)
	}

	f.votes = NewVoteService(f.store, NewQuotaManager(), nil, nil)
	f.votes.now = now

	f.pairing = NewPairingService(f.store, nil, 0.25)
	f.pairing.now = now
	rng := rand.New(rand.NewPCG(7, 11))
	f.pairing.newRand = func() *rand.Rand { return rng }

	f.ranking = NewRankingService(f.store, nil, nil, nil)
	f.ranking.now = now

	return f
}

func (f *fixture) addPhoto(id, owner string, approve bool) {
	f.t.Helper()
	f.uploads++
	photo := &models.Photo{
		ID:        id,
		ContestID: f.contest.ID,
		OwnerID:   owner,
		Status:    models.PhotoPending,
		CreatedAt: testNow.Add(-time.Hour).Add(time.Duration(f.uploads) * time.Minute),
	}
	if err := f.store.CreatePhoto(f.ctx, photo); err != nil {
		f.t.Fatalf("CreatePhoto(%s) error = %v", id, err)
	}
	if approve {
		if err := f.store.ApprovePhoto(f.ctx, id, 1000); err != nil {
			f.t.Fatalf("ApprovePhoto(%s) error = %v", id, err)
		}
	}
}

func (f *fixture) cast(voter, winner, loser string) *VoteResult {
	f.t.Helper()
	res, err := f.votes.CastVote(f.ctx, f.contest.ID, voter, winner, loser)
	if err != nil {
		f.t.Fatalf("CastVote(%s, %s>%s) error = %v", voter, winner, loser, err)
	}
	return res
}

func (f *fixture) photo(id string) *models.Photo {
	f.t.Helper()
	p, err := f.store.GetPhoto(f.ctx, id)
	if err != nil {
		f.t.Fatalf("GetPhoto(%s) error = %v", id, err)
	}
	return p
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) < tolerance
}
