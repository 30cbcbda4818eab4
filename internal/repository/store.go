package repository

import (
	"context"
	"errors"
	"time"

	"contest-vote-backend/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrPairAlreadyVoted is returned when a vote would repeat a voter's pair
	ErrPairAlreadyVoted = errors.New("pair already voted")
)

// Store is the single data-access layer behind the voting services.
// Rating, ledger and quota mutations only happen inside InTx.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error

	CreateContest(ctx context.Context, contest *models.Contest) error
	GetContest(ctx context.Context, id string) (*models.Contest, error)
	ListContestsToClose(ctx context.Context, now time.Time) ([]*models.Contest, error)

	CreatePhoto(ctx context.Context, photo *models.Photo) error
	GetPhoto(ctx context.Context, id string) (*models.Photo, error)
	ListPhotos(ctx context.Context, contestID string, status models.PhotoStatus) ([]*models.Photo, error)
	// ApprovePhoto puts a pending photo into the voting pool at the given rating
	ApprovePhoto(ctx context.Context, photoID string, baseRating float64) error
	RejectPhoto(ctx context.Context, photoID string) error

	// GetQuota returns the voter's quota row, or a zero row if none exists yet
	GetQuota(ctx context.Context, contestID, voterID string) (*models.VoterQuota, error)
	VotedPairs(ctx context.Context, contestID, voterID string) (models.PairSet, error)
	// ListVotes returns the contest's ledger in cast order for the staff export
	ListVotes(ctx context.Context, contestID string) ([]*models.Vote, error)

	GetStandings(ctx context.Context, contestID string) ([]models.Standing, error)

	// InTx runs fn in a transaction. Any error from fn rolls it back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// Tx is the transactional view used by vote casting and contest finalization
type Tx interface {
	// GetContest reads the contest and holds a shared lock on it
	GetContest(ctx context.Context, id string) (*models.Contest, error)
	// LockContest reads the contest and holds an exclusive lock on it
	LockContest(ctx context.Context, id string) (*models.Contest, error)
	// LockPhotos locks the given photo rows; missing ids are absent from the result
	LockPhotos(ctx context.Context, ids ...string) (map[string]*models.Photo, error)
	ListPhotos(ctx context.Context, contestID string, status models.PhotoStatus) ([]*models.Photo, error)
	SetRating(ctx context.Context, photoID string, rating float64, voteCount int) error

	// LockQuota locks the voter's quota row, creating a zero row if needed
	LockQuota(ctx context.Context, contestID, voterID string) (*models.VoterQuota, error)
	SaveQuota(ctx context.Context, quota *models.VoterQuota) error

	PairVoted(ctx context.Context, contestID, voterID string, pair models.PairKey) (bool, error)
	InsertVote(ctx context.Context, vote *models.Vote) error

	FinishContest(ctx context.Context, contestID string, finishedAt time.Time, insufficientData bool) error
	SaveStandings(ctx context.Context, contestID string, standings []models.Standing) error
	GetStandings(ctx context.Context, contestID string) ([]models.Standing, error)
}
