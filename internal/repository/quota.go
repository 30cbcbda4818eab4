package repository

import (
	"context"
	"fmt"

	"contest-vote-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const quotaColumns = `contest_id, voter_id, total_votes_cast, votes_cast_today, last_vote_day`

func scanQuota(row pgx.Row) (*models.VoterQuota, error) {
	var q models.VoterQuota
	err := row.Scan(&q.ContestID, &q.VoterID, &q.TotalVotesCast, &q.VotesCastToday, &q.LastVoteDay)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// GetQuota returns the voter's quota row without locking it
func (s *PostgresStore) GetQuota(ctx context.Context, contestID, voterID string) (*models.VoterQuota, error) {
	query := `SELECT ` + quotaColumns + ` FROM voter_quotas WHERE contest_id = $1 AND voter_id = $2`
	quota, err := scanQuota(s.db.QueryRow(ctx, query, contestID, voterID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return &models.VoterQuota{ContestID: contestID, VoterID: voterID}, nil
		}
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}
	return quota, nil
}

func (t *pgTx) LockQuota(ctx context.Context, contestID, voterID string) (*models.VoterQuota, error) {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO voter_quotas (contest_id, voter_id)
		VALUES ($1, $2)
		ON CONFLICT (contest_id, voter_id) DO NOTHING`,
		contestID, voterID)
	if err != nil {
		return nil, fmt.Errorf("failed to create quota: %w", err)
	}

	query := `SELECT ` + quotaColumns + ` FROM voter_quotas WHERE contest_id = $1 AND voter_id = $2 FOR UPDATE`
	quota, err := scanQuota(t.tx.QueryRow(ctx, query, contestID, voterID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock quota: %w", err)
	}
	return quota, nil
}

func (t *pgTx) SaveQuota(ctx context.Context, q *models.VoterQuota) error {
	query := `
		UPDATE voter_quotas
		SET total_votes_cast = $1, votes_cast_today = $2, last_vote_day = $3
		WHERE contest_id = $4 AND voter_id = $5
	`
	result, err := t.tx.Exec(ctx, query, q.TotalVotesCast, q.VotesCastToday, q.LastVoteDay, q.ContestID, q.VoterID)
	if err != nil {
		return fmt.Errorf("failed to save quota: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("quota %s/%s: %w", q.ContestID, q.VoterID, ErrNotFound)
	}
	return nil
}
