package repository

import (
	"context"
	"fmt"

	"contest-vote-backend/internal/models"
)

func getStandings(ctx context.Context, q querier, contestID string) ([]models.Standing, error) {
	query := `
		SELECT rank, photo_id, owner_id, rating, vote_count, winner
		FROM standings
		WHERE contest_id = $1
		ORDER BY rank
	`
	rows, err := q.Query(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get standings: %w", err)
	}
	defer rows.Close()

	var standings []models.Standing
	for rows.Next() {
		var st models.Standing
		if err := rows.Scan(&st.Rank, &st.PhotoID, &st.OwnerID, &st.Rating, &st.VoteCount, &st.Winner); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		standings = append(standings, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating standings: %w", err)
	}

	return standings, nil
}

// GetStandings returns the stored final standings of a contest, best first
func (s *PostgresStore) GetStandings(ctx context.Context, contestID string) ([]models.Standing, error) {
	return getStandings(ctx, s.db, contestID)
}

func (t *pgTx) GetStandings(ctx context.Context, contestID string) ([]models.Standing, error) {
	return getStandings(ctx, t.tx, contestID)
}

func (t *pgTx) SaveStandings(ctx context.Context, contestID string, standings []models.Standing) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM standings WHERE contest_id = $1`, contestID); err != nil {
		return fmt.Errorf("failed to clear standings: %w", err)
	}

	query := `
		INSERT INTO standings (contest_id, rank, photo_id, owner_id, rating, vote_count, winner)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, st := range standings {
		_, err := t.tx.Exec(ctx, query, contestID, st.Rank, st.PhotoID, st.OwnerID, st.Rating, st.VoteCount, st.Winner)
		if err != nil {
			return fmt.Errorf("failed to save standing %d: %w", st.Rank, err)
		}
	}
	return nil
}
