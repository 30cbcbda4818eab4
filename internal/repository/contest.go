package repository

import (
	"context"
	"fmt"
	"time"

	"contest-vote-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const contestColumns = `
	id, organizer_id, title, status, voting_opens_at, voting_closes_at,
	max_total_votes, max_daily_votes, winner_count, k_factor,
	live_standings, insufficient_voting_data, created_at, finished_at`

func scanContest(row pgx.Row) (*models.Contest, error) {
	var c models.Contest
	var status string
	err := row.Scan(
		&c.ID, &c.OrganizerID, &c.Title, &status, &c.VotingOpensAt, &c.VotingClosesAt,
		&c.MaxTotalVotes, &c.MaxDailyVotes, &c.WinnerCount, &c.KFactor,
		&c.LiveStandings, &c.InsufficientVotingData, &c.CreatedAt, &c.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = models.ContestStatus(status)
	return &c, nil
}

func getContest(ctx context.Context, q querier, id, lock string) (*models.Contest, error) {
	query := `SELECT` + contestColumns + ` FROM contests WHERE id = $1 ` + lock
	contest, err := scanContest(q.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("contest %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get contest: %w", err)
	}
	return contest, nil
}

// CreateContest creates a new contest
func (s *PostgresStore) CreateContest(ctx context.Context, c *models.Contest) error {
	query := `
		INSERT INTO contests (` + contestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.Exec(ctx, query,
		c.ID, c.OrganizerID, c.Title, string(c.Status), c.VotingOpensAt, c.VotingClosesAt,
		c.MaxTotalVotes, c.MaxDailyVotes, c.WinnerCount, c.KFactor,
		c.LiveStandings, c.InsufficientVotingData, c.CreatedAt, c.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contest: %w", err)
	}
	return nil
}

// GetContest retrieves a contest by ID
func (s *PostgresStore) GetContest(ctx context.Context, id string) (*models.Contest, error) {
	return getContest(ctx, s.db, id, "")
}

// ListContestsToClose returns active contests whose voting window has ended
func (s *PostgresStore) ListContestsToClose(ctx context.Context, now time.Time) ([]*models.Contest, error) {
	query := `SELECT` + contestColumns + `
		FROM contests
		WHERE status = 'active' AND voting_closes_at <= $1
		ORDER BY voting_closes_at
	`
	rows, err := s.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired contests: %w", err)
	}
	defer rows.Close()

	var contests []*models.Contest
	for rows.Next() {
		contest, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contest: %w", err)
		}
		contests = append(contests, contest)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contests: %w", err)
	}

	return contests, nil
}

func (t *pgTx) GetContest(ctx context.Context, id string) (*models.Contest, error) {
	return getContest(ctx, t.tx, id, "FOR SHARE")
}

func (t *pgTx) LockContest(ctx context.Context, id string) (*models.Contest, error) {
	return getContest(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) FinishContest(ctx context.Context, contestID string, finishedAt time.Time, insufficientData bool) error {
	query := `
		UPDATE contests
		SET status = 'finished', finished_at = $1, insufficient_voting_data = $2
		WHERE id = $3
	`
	result, err := t.tx.Exec(ctx, query, finishedAt, insufficientData, contestID)
	if err != nil {
		return fmt.Errorf("failed to finish contest: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("contest %s: %w", contestID, ErrNotFound)
	}
	return nil
}
