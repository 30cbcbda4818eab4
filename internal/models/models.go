package models

import "time"

// Role is the access level carried in a user's token
type Role string

const (
	RoleVoter     Role = "voter"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// User represents an authenticated account that can vote or organize contests
type User struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Token     string    `json:"token,omitempty"`
	PushToken *string   `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ContestStatus is the lifecycle state of a contest
type ContestStatus string

const (
	ContestActive   ContestStatus = "active"
	ContestFinished ContestStatus = "finished"
)

// Contest holds the voting window and the organizer-configured voting rules.
// A zero MaxTotalVotes or MaxDailyVotes means the limit is not enforced.
type Contest struct {
	ID                     string        `json:"id"`
	OrganizerID            string        `json:"organizer_id"`
	Title                  string        `json:"title"`
	Status                 ContestStatus `json:"status"`
	VotingOpensAt          time.Time     `json:"voting_opens_at"`
	VotingClosesAt         time.Time     `json:"voting_closes_at"`
	MaxTotalVotes          int           `json:"max_total_votes"`
	MaxDailyVotes          int           `json:"max_daily_votes"`
	WinnerCount            int           `json:"winner_count"`
	KFactor                float64       `json:"k_factor"`
	LiveStandings          bool          `json:"live_standings"`
	InsufficientVotingData bool          `json:"insufficient_voting_data"`
	CreatedAt              time.Time     `json:"created_at"`
	FinishedAt             *time.Time    `json:"finished_at,omitempty"`
}

// VotingOpen reports whether votes are accepted at the given instant
func (c *Contest) VotingOpen(now time.Time) bool {
	if c.Status == ContestFinished {
		return false
	}
	return !now.Before(c.VotingOpensAt) && now.Before(c.VotingClosesAt)
}

// PhotoStatus is the moderation state of a photo
type PhotoStatus string

const (
	PhotoPending  PhotoStatus = "pending"
	PhotoApproved PhotoStatus = "approved"
	PhotoRejected PhotoStatus = "rejected"
)

// Photo is a contest entry together with its rating state
type Photo struct {
	ID        string      `json:"id"`
	ContestID string      `json:"contest_id"`
	OwnerID   string      `json:"owner_id"`
	S3Key     string      `json:"-"`
	URL       string      `json:"url,omitempty"`
	Status    PhotoStatus `json:"status"`
	Rating    float64     `json:"rating"`
	VoteCount int         `json:"vote_count"`
	CreatedAt time.Time   `json:"created_at"`
}

// Vote is an immutable record of one pairwise decision
type Vote struct {
	ID            string    `json:"id"`
	ContestID     string    `json:"contest_id"`
	VoterID       string    `json:"voter_id"`
	WinnerPhotoID string    `json:"winner_photo_id"`
	LoserPhotoID  string    `json:"loser_photo_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Pair returns the unordered photo pair the vote was cast on
func (v *Vote) Pair() PairKey {
	return NewPairKey(v.WinnerPhotoID, v.LoserPhotoID)
}

// VoterQuota is the per-contest vote accounting of one voter
type VoterQuota struct {
	ContestID      string    `json:"contest_id"`
	VoterID        string    `json:"voter_id"`
	TotalVotesCast int       `json:"total_votes_cast"`
	VotesCastToday int       `json:"votes_cast_today"`
	LastVoteDay    time.Time `json:"last_vote_day"`
}

// PairKey identifies an unordered pair of photos. Low is always the smaller id.
type PairKey struct {
	Low  string
	High string
}

// NewPairKey builds the canonical key for two photo ids in any order
func NewPairKey(a, b string) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// PairSet is the set of pairs a voter has already voted on in a contest
type PairSet map[PairKey]struct{}

// Has reports whether the unordered pair (a, b) is in the set
func (s PairSet) Has(a, b string) bool {
	_, ok := s[NewPairKey(a, b)]
	return ok
}

// Add inserts the unordered pair (a, b)
func (s PairSet) Add(a, b string) {
	s[NewPairKey(a, b)] = struct{}{}
}

// Standing is one row of a contest ranking
type Standing struct {
	Rank      int     `json:"rank"`
	PhotoID   string  `json:"photo_id"`
	OwnerID   string  `json:"owner_id"`
	Rating    float64 `json:"rating"`
	VoteCount int     `json:"vote_count"`
	Winner    bool    `json:"winner"`
}
