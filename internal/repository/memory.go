package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"contest-vote-backend/internal/models"
)

type quotaKey struct {
	contestID string
	voterID   string
}

// MemoryStore implements Store in process memory. Transactions are serialized
// and their writes are staged until commit.
type MemoryStore struct {
	mu        sync.Mutex
	users     map[string]*models.User
	contests  map[string]*models.Contest
	photos    map[string]*models.Photo
	quotas    map[quotaKey]*models.VoterQuota
	votes     []*models.Vote
	pairs     map[quotaKey]models.PairSet
	standings map[string][]models.Standing
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*models.User),
		contests:  make(map[string]*models.Contest),
		photos:    make(map[string]*models.Photo),
		quotas:    make(map[quotaKey]*models.VoterQuota),
		pairs:     make(map[quotaKey]models.PairSet),
		standings: make(map[string][]models.Standing),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("failed to create user: duplicate id %s", user.ID)
	}
	u := *user
	u.Token = ""
	s.users[user.ID] = &u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	u := *user
	return &u, nil
}

func (s *MemoryStore) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	user.PushToken = pushToken
	return nil
}

func (s *MemoryStore) CreateContest(ctx context.Context, contest *models.Contest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contests[contest.ID]; exists {
		return fmt.Errorf("failed to create contest: duplicate id %s", contest.ID)
	}
	c := *contest
	s.contests[contest.ID] = &c
	return nil
}

func (s *MemoryStore) GetContest(ctx context.Context, id string) (*models.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getContest(id)
}

func (s *MemoryStore) getContest(id string) (*models.Contest, error) {
	contest, ok := s.contests[id]
	if !ok {
		return nil, fmt.Errorf("contest %s: %w", id, ErrNotFound)
	}
	c := *contest
	return &c, nil
}

func (s *MemoryStore) ListContestsToClose(ctx context.Context, now time.Time) ([]*models.Contest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var contests []*models.Contest
	for _, contest := range s.contests {
		if contest.Status == models.ContestActive && !contest.VotingClosesAt.After(now) {
			c := *contest
			contests = append(contests, &c)
		}
	}
	sort.Slice(contests, func(i, j int) bool {
		return contests[i].VotingClosesAt.Before(contests[j].VotingClosesAt)
	})
	return contests, nil
}

func (s *MemoryStore) CreatePhoto(ctx context.Context, photo *models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.photos[photo.ID]; exists {
		return fmt.Errorf("failed to create photo: duplicate id %s", photo.ID)
	}
	if _, ok := s.contests[photo.ContestID]; !ok {
		return fmt.Errorf("failed to create photo: contest %s: %w", photo.ContestID, ErrNotFound)
	}
	p := *photo
	s.photos[photo.ID] = &p
	return nil
}

func (s *MemoryStore) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, ok := s.photos[id]
	if !ok {
		return nil, fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	p := *photo
	return &p, nil
}

func (s *MemoryStore) ListPhotos(ctx context.Context, contestID string, status models.PhotoStatus) ([]*models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listPhotos(contestID, status, nil), nil
}

func (s *MemoryStore) listPhotos(contestID string, status models.PhotoStatus, staged map[string]*models.Photo) []*models.Photo {
	var photos []*models.Photo
	for id, photo := range s.photos {
		if override, ok := staged[id]; ok {
			photo = override
		}
		if photo.ContestID == contestID && photo.Status == status {
			p := *photo
			photos = append(photos, &p)
		}
	}
	sort.Slice(photos, func(i, j int) bool {
		if !photos[i].CreatedAt.Equal(photos[j].CreatedAt) {
			return photos[i].CreatedAt.Before(photos[j].CreatedAt)
		}
		return photos[i].ID < photos[j].ID
	})
	return photos
}

func (s *MemoryStore) ApprovePhoto(ctx context.Context, photoID string, baseRating float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, ok := s.photos[photoID]
	if !ok {
		return fmt.Errorf("photo %s: %w", photoID, ErrNotFound)
	}
	if photo.Status == models.PhotoApproved {
		return nil
	}
	photo.Status = models.PhotoApproved
	photo.Rating = baseRating
	photo.VoteCount = 0
	return nil
}

func (s *MemoryStore) RejectPhoto(ctx context.Context, photoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	photo, ok := s.photos[photoID]
	if !ok {
		return fmt.Errorf("photo %s: %w", photoID, ErrNotFound)
	}
	photo.Status = models.PhotoRejected
	return nil
}

func (s *MemoryStore) GetQuota(ctx context.Context, contestID, voterID string) (*models.VoterQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quota, ok := s.quotas[quotaKey{contestID, voterID}]; ok {
		q := *quota
		return &q, nil
	}
	return &models.VoterQuota{ContestID: contestID, VoterID: voterID}, nil
}

func (s *MemoryStore) VotedPairs(ctx context.Context, contestID, voterID string) (models.PairSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pairs := make(models.PairSet)
	for key := range s.pairs[quotaKey{contestID, voterID}] {
		pairs[key] = struct{}{}
	}
	return pairs, nil
}

func (s *MemoryStore) ListVotes(ctx context.Context, contestID string) ([]*models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var votes []*models.Vote
	for _, vote := range s.votes {
		if vote.ContestID == contestID {
			v := *vote
			votes = append(votes, &v)
		}
	}
	return votes, nil
}

func (s *MemoryStore) GetStandings(ctx context.Context, contestID string) ([]models.Standing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Standing(nil), s.standings[contestID]...), nil
}

// InTx holds the store lock for the whole of fn and applies staged writes
// only when fn succeeds.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:     s,
		contests:  make(map[string]*models.Contest),
		photos:    make(map[string]*models.Photo),
		quotas:    make(map[quotaKey]*models.VoterQuota),
		standings: make(map[string][]models.Standing),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) Close() {}

// memTx stages writes on top of the committed MemoryStore state
type memTx struct {
	store     *MemoryStore
	contests  map[string]*models.Contest
	photos    map[string]*models.Photo
	quotas    map[quotaKey]*models.VoterQuota
	votes     []*models.Vote
	standings map[string][]models.Standing
}

func (t *memTx) commit() {
	s := t.store
	for id, c := range t.contests {
		s.contests[id] = c
	}
	for id, p := range t.photos {
		s.photos[id] = p
	}
	for key, q := range t.quotas {
		s.quotas[key] = q
	}
	for _, v := range t.votes {
		s.votes = append(s.votes, v)
		key := quotaKey{v.ContestID, v.VoterID}
		if s.pairs[key] == nil {
			s.pairs[key] = make(models.PairSet)
		}
		s.pairs[key][v.Pair()] = struct{}{}
	}
	for id, st := range t.standings {
		s.standings[id] = st
	}
}

func (t *memTx) GetContest(ctx context.Context, id string) (*models.Contest, error) {
	if c, ok := t.contests[id]; ok {
		cp := *c
		return &cp, nil
	}
	return t.store.getContest(id)
}

func (t *memTx) LockContest(ctx context.Context, id string) (*models.Contest, error) {
	return t.GetContest(ctx, id)
}

func (t *memTx) photo(id string) (*models.Photo, bool) {
	if p, ok := t.photos[id]; ok {
		return p, true
	}
	p, ok := t.store.photos[id]
	return p, ok
}

func (t *memTx) LockPhotos(ctx context.Context, ids ...string) (map[string]*models.Photo, error) {
	locked := make(map[string]*models.Photo, len(ids))
	for _, id := range ids {
		if p, ok := t.photo(id); ok {
			cp := *p
			locked[id] = &cp
		}
	}
	return locked, nil
}

func (t *memTx) ListPhotos(ctx context.Context, contestID string, status models.PhotoStatus) ([]*models.Photo, error) {
	return t.store.listPhotos(contestID, status, t.photos), nil
}

func (t *memTx) SetRating(ctx context.Context, photoID string, rating float64, voteCount int) error {
	p, ok := t.photo(photoID)
	if !ok {
		return fmt.Errorf("photo %s: %w", photoID, ErrNotFound)
	}
	cp := *p
	cp.Rating = rating
	cp.VoteCount = voteCount
	t.photos[photoID] = &cp
	return nil
}

func (t *memTx) LockQuota(ctx context.Context, contestID, voterID string) (*models.VoterQuota, error) {
	key := quotaKey{contestID, voterID}
	if q, ok := t.quotas[key]; ok {
		cp := *q
		return &cp, nil
	}
	if q, ok := t.store.quotas[key]; ok {
		cp := *q
		return &cp, nil
	}
	q := &models.VoterQuota{ContestID: contestID, VoterID: voterID}
	t.quotas[key] = q
	cp := *q
	return &cp, nil
}

func (t *memTx) SaveQuota(ctx context.Context, q *models.VoterQuota) error {
	cp := *q
	t.quotas[quotaKey{q.ContestID, q.VoterID}] = &cp
	return nil
}

func (t *memTx) PairVoted(ctx context.Context, contestID, voterID string, pair models.PairKey) (bool, error) {
	if _, ok := t.store.pairs[quotaKey{contestID, voterID}][pair]; ok {
		return true, nil
	}
	for _, v := range t.votes {
		if v.ContestID == contestID && v.VoterID == voterID && v.Pair() == pair {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertVote(ctx context.Context, vote *models.Vote) error {
	voted, err := t.PairVoted(ctx, vote.ContestID, vote.VoterID, vote.Pair())
	if err != nil {
		return err
	}
	if voted {
		return ErrPairAlreadyVoted
	}
	v := *vote
	t.votes = append(t.votes, &v)
	return nil
}

func (t *memTx) FinishContest(ctx context.Context, contestID string, finishedAt time.Time, insufficientData bool) error {
	c, err := t.GetContest(ctx, contestID)
	if err != nil {
		return err
	}
	c.Status = models.ContestFinished
	c.FinishedAt = &finishedAt
	c.InsufficientVotingData = insufficientData
	t.contests[contestID] = c
	return nil
}

func (t *memTx) SaveStandings(ctx context.Context, contestID string, standings []models.Standing) error {
	t.standings[contestID] = append([]models.Standing(nil), standings...)
	return nil
}

func (t *memTx) GetStandings(ctx context.Context, contestID string) ([]models.Standing, error) {
	if st, ok := t.standings[contestID]; ok {
		return append([]models.Standing(nil), st...), nil
	}
	return append([]models.Standing(nil), t.store.standings[contestID]...), nil
}
