package repository

import (
	"context"
	"fmt"

	"contest-vote-backend/internal/models"
)

// VotedPairs returns every unordered pair the voter has voted on in a contest
func (s *PostgresStore) VotedPairs(ctx context.Context, contestID, voterID string) (models.PairSet, error) {
	query := `
		SELECT photo_low_id, photo_high_id
		FROM votes
		WHERE contest_id = $1 AND voter_id = $2
	`
	rows, err := s.db.Query(ctx, query, contestID, voterID)
	if err != nil {
		return nil, fmt.Errorf("failed to get voted pairs: %w", err)
	}
	defer rows.Close()

	pairs := make(models.PairSet)
	for rows.Next() {
		var key models.PairKey
		if err := rows.Scan(&key.Low, &key.High); err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		pairs[key] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pairs: %w", err)
	}

	return pairs, nil
}

// ListVotes returns the ledger of a contest in the order votes were cast
func (s *PostgresStore) ListVotes(ctx context.Context, contestID string) ([]*models.Vote, error) {
	query := `
		SELECT id, contest_id, voter_id, winner_photo_id, loser_photo_id, created_at
		FROM votes
		WHERE contest_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.Query(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get votes: %w", err)
	}
	defer rows.Close()

	var votes []*models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ID, &v.ContestID, &v.VoterID, &v.WinnerPhotoID, &v.LoserPhotoID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating votes: %w", err)
	}

	return votes, nil
}

func (t *pgTx) PairVoted(ctx context.Context, contestID, voterID string, pair models.PairKey) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM votes
			WHERE contest_id = $1 AND voter_id = $2 AND photo_low_id = $3 AND photo_high_id = $4
		)
	`
	var exists bool
	err := t.tx.QueryRow(ctx, query, contestID, voterID, pair.Low, pair.High).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check voted pair: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertVote(ctx context.Context, vote *models.Vote) error {
	query := `
		INSERT INTO votes (id, contest_id, voter_id, winner_photo_id, loser_photo_id, photo_low_id, photo_high_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	pair := vote.Pair()
	_, err := t.tx.Exec(ctx, query,
		vote.ID, vote.ContestID, vote.VoterID, vote.WinnerPhotoID, vote.LoserPhotoID,
		pair.Low, pair.High, vote.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPairAlreadyVoted
		}
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}
