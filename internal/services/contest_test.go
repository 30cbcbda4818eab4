package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"contest-vote-backend/internal/config"
	"contest-vote-backend/internal/models"
	"contest-vote-backend/internal/repository"
)

var (
	organizer = Claims{UserID: "org", Role: models.RoleOrganizer}
	admin     = Claims{UserID: "root", Role: models.RoleAdmin}
	voter     = Claims{UserID: "voter-1", Role: models.RoleVoter}
)

func newContestService(store repository.Store) *ContestService {
	s := NewContestService(store, NewRankingService(store, nil, nil, nil), config.VotingConfig{
		BaseRating:           config.DefaultBaseRating,
		KFactor:              config.DefaultKFactor,
		DefaultMaxDailyVotes: config.DefaultMaxDailyVotes,
		DefaultWinnerCount:   config.DefaultWinnerCount,
	})
	s.now = func() time.Time { return testNow }
	return s
}

func TestCreateContest_AppliesDefaults(t *testing.T) {
	ctx := context.Background()
	s := newContestService(repository.NewMemoryStore())

	contest, err := s.CreateContest(ctx, organizer, CreateContestRequest{
		Title:          "  Night markets ",
		VotingClosesAt: testNow.Add(72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateContest() error = %v", err)
	}

	if contest.Title != "Night markets" || contest.OrganizerID != "org" {
		t.Errorf("contest = %+v", contest)
	}
	if !contest.VotingOpensAt.Equal(testNow) {
		t.Errorf("opens at %s, want now", contest.VotingOpensAt)
	}
	if contest.MaxTotalVotes != 0 || contest.MaxDailyVotes != config.DefaultMaxDailyVotes {
		t.Errorf("limits = (%d, %d), want (0, %d)", contest.MaxTotalVotes, contest.MaxDailyVotes, config.DefaultMaxDailyVotes)
	}
	if contest.KFactor != config.DefaultKFactor || contest.WinnerCount != 1 {
		t.Errorf("k = %.1f winners = %d", contest.KFactor, contest.WinnerCount)
	}

	stored, err := s.GetContest(ctx, contest.ID)
	if err != nil || stored.Status != models.ContestActive {
		t.Errorf("GetContest() = %+v, %v", stored, err)
	}
}

func TestCreateContest_ExplicitZeroDisablesLimit(t *testing.T) {
	s := newContestService(repository.NewMemoryStore())
	zero, k := 0, 16.0

	contest, err := s.CreateContest(context.Background(), admin, CreateContestRequest{
		Title:          "Rooftops",
		VotingClosesAt: testNow.Add(time.Hour),
		MaxDailyVotes:  &zero,
		KFactor:        &k,
		WinnerCount:    9,
	})
	if err != nil {
		t.Fatalf("CreateContest() error = %v", err)
	}
	if contest.MaxDailyVotes != 0 || contest.KFactor != 16 || contest.WinnerCount != 9 {
		t.Errorf("contest = %+v", contest)
	}
}

func TestCreateContest_Rejects(t *testing.T) {
	negative := -1
	zeroK := 0.0
	valid := CreateContestRequest{Title: "Bridges", VotingClosesAt: testNow.Add(time.Hour)}

	tests := []struct {
		name   string
		caller Claims
		mutate func(r *CreateContestRequest)
		want   error
	}{
		{"voter", voter, nil, ErrForbidden},
		{"no title", organizer, func(r *CreateContestRequest) { r.Title = " " }, ErrInvalidInput},
		{"no close", organizer, func(r *CreateContestRequest) { r.VotingClosesAt = time.Time{} }, ErrInvalidInput},
		{"closes before opening", organizer, func(r *CreateContestRequest) { r.VotingOpensAt = testNow.Add(2 * time.Hour) }, ErrInvalidInput},
		{"winner tier", organizer, func(r *CreateContestRequest) { r.WinnerCount = 5 }, ErrInvalidInput},
		{"negative quota", organizer, func(r *CreateContestRequest) { r.MaxTotalVotes = &negative }, ErrInvalidInput},
		{"zero k", organizer, func(r *CreateContestRequest) { r.KFactor = &zeroK }, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newContestService(repository.NewMemoryStore())
			req := valid
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			if _, err := s.CreateContest(context.Background(), tt.caller, req); !errors.Is(err, tt.want) {
				t.Errorf("CreateContest() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCloseContest_Permissions(t *testing.T) {
	f := newFixture(t, 2, nil)
	s := newContestService(f.store)

	other := Claims{UserID: "someone-else", Role: models.RoleOrganizer}
	for _, caller := range []Claims{voter, other} {
		if _, err := s.CloseContest(f.ctx, caller, "c1"); !errors.Is(err, ErrForbidden) {
			t.Errorf("CloseContest(%s) error = %v, want ErrForbidden", caller.UserID, err)
		}
	}

	result, err := s.CloseContest(f.ctx, organizer, "c1")
	if err != nil {
		t.Fatalf("CloseContest() error = %v", err)
	}
	if !result.Final {
		t.Error("result not final")
	}

	if _, err := s.CloseContest(f.ctx, admin, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("CloseContest(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListVotes_StaffLedger(t *testing.T) {
	f := newFixture(t, 3, nil)
	s := newContestService(f.store)

	f.cast("voter-1", "p01", "p02")
	f.cast("voter-2", "p03", "p01")
	f.cast("voter-1", "p02", "p01") // duplicate pair, not recorded

	other := Claims{UserID: "someone-else", Role: models.RoleOrganizer}
	for _, caller := range []Claims{voter, other} {
		if _, err := s.ListVotes(f.ctx, caller, "c1"); !errors.Is(err, ErrForbidden) {
			t.Errorf("ListVotes(%s) error = %v, want ErrForbidden", caller.UserID, err)
		}
	}

	for _, caller := range []Claims{organizer, admin} {
		votes, err := s.ListVotes(f.ctx, caller, "c1")
		if err != nil {
			t.Fatalf("ListVotes(%s) error = %v", caller.UserID, err)
		}
		if len(votes) != 2 {
			t.Fatalf("ListVotes(%s) = %d votes, want 2", caller.UserID, len(votes))
		}
		if votes[0].WinnerPhotoID != "p01" || votes[1].WinnerPhotoID != "p03" {
			t.Errorf("ledger order = %s, %s", votes[0].WinnerPhotoID, votes[1].WinnerPhotoID)
		}
	}

	if _, err := s.ListVotes(f.ctx, admin, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("ListVotes(missing) error = %v, want ErrNotFound", err)
	}
}
