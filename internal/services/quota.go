package services

import (
	"time"

	"contest-vote-backend/internal/models"
)

// Unlimited is reported as the remaining count when a limit is not enforced
const Unlimited = -1

// Quota limits
const (
	LimitTotal = "total"
	LimitDaily = "daily"
)

// QuotaStatus is the vote status shape consumed by the voting UI
type QuotaStatus struct {
	VotesRemaining      int  `json:"votes_remaining"`
	DailyVotesRemaining int  `json:"daily_votes_remaining"`
	CanVote             bool `json:"can_vote"`
}

// QuotaManager enforces per-voter total and daily limits. Daily counters are
// reset lazily at the UTC day boundary.
type QuotaManager struct{}

// NewQuotaManager creates a new quota manager
func NewQuotaManager() *QuotaManager {
	return &QuotaManager{}
}

func voteDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Refresh resets the daily counter when now falls on a later day than the
// last recorded vote.
func (m *QuotaManager) Refresh(q *models.VoterQuota, now time.Time) {
	today := voteDay(now)
	if !voteDay(q.LastVoteDay).Equal(today) {
		q.VotesCastToday = 0
		q.LastVoteDay = today
	}
}

// ExceededLimit returns which limit blocks the next vote, or "" if none does.
// The total limit is reported first.
func (m *QuotaManager) ExceededLimit(c *models.Contest, q *models.VoterQuota) string {
	if c.MaxTotalVotes > 0 && q.TotalVotesCast >= c.MaxTotalVotes {
		return LimitTotal
	}
	if c.MaxDailyVotes > 0 && q.VotesCastToday >= c.MaxDailyVotes {
		return LimitDaily
	}
	return ""
}

// CanVote reports whether both limits still have room
func (m *QuotaManager) CanVote(c *models.Contest, q *models.VoterQuota) bool {
	return m.ExceededLimit(c, q) == ""
}

// Record counts one accepted vote
func (m *QuotaManager) Record(q *models.VoterQuota, now time.Time) {
	m.Refresh(q, now)
	q.TotalVotesCast++
	q.VotesCastToday++
}

// Status reports remaining votes. Call Refresh first.
func (m *QuotaManager) Status(c *models.Contest, q *models.VoterQuota) QuotaStatus {
	return QuotaStatus{
		VotesRemaining:      remaining(c.MaxTotalVotes, q.TotalVotesCast),
		DailyVotesRemaining: remaining(c.MaxDailyVotes, q.VotesCastToday),
		CanVote:             m.CanVote(c, q),
	}
}

func remaining(limit, used int) int {
	if limit <= 0 {
		return Unlimited
	}
	return max(limit-used, 0)
}
