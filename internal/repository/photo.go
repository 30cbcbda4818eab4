package repository

import (
	"context"
	"fmt"

	"contest-vote-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const photoColumns = `id, contest_id, owner_id, s3_key, status, rating, vote_count, created_at`

func scanPhoto(row pgx.Row) (*models.Photo, error) {
	var photo models.Photo
	var status string
	err := row.Scan(
		&photo.ID, &photo.ContestID, &photo.OwnerID, &photo.S3Key,
		&status, &photo.Rating, &photo.VoteCount, &photo.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	photo.Status = models.PhotoStatus(status)
	return &photo, nil
}

func collectPhotos(rows pgx.Rows) ([]*models.Photo, error) {
	defer rows.Close()

	var photos []*models.Photo
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}

	return photos, nil
}

func listPhotos(ctx context.Context, q querier, contestID string, status models.PhotoStatus) ([]*models.Photo, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE contest_id = $1 AND status = $2
		ORDER BY created_at, id
	`
	rows, err := q.Query(ctx, query, contestID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to get photos: %w", err)
	}
	return collectPhotos(rows)
}

// CreatePhoto creates a new photo
func (s *PostgresStore) CreatePhoto(ctx context.Context, photo *models.Photo) error {
	query := `
		INSERT INTO photos (` + photoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.Exec(ctx, query,
		photo.ID, photo.ContestID, photo.OwnerID, photo.S3Key,
		string(photo.Status), photo.Rating, photo.VoteCount, photo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

// GetPhoto retrieves a photo by ID
func (s *PostgresStore) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`
	photo, err := scanPhoto(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("photo %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return photo, nil
}

// ListPhotos retrieves the photos of a contest in a given status, oldest first
func (s *PostgresStore) ListPhotos(ctx context.Context, contestID string, status models.PhotoStatus) ([]*models.Photo, error) {
	return listPhotos(ctx, s.db, contestID, status)
}

// ApprovePhoto moves a photo into the voting pool with a fresh rating
func (s *PostgresStore) ApprovePhoto(ctx context.Context, photoID string, baseRating float64) error {
	query := `
		UPDATE photos SET status = 'approved', rating = $1, vote_count = 0
		WHERE id = $2 AND status <> 'approved'
	`
	result, err := s.db.Exec(ctx, query, baseRating, photoID)
	if err != nil {
		return fmt.Errorf("failed to approve photo: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Already approved photos keep their rating
		if _, err := s.GetPhoto(ctx, photoID); err != nil {
			return err
		}
	}
	return nil
}

// RejectPhoto removes a photo from moderation
func (s *PostgresStore) RejectPhoto(ctx context.Context, photoID string) error {
	query := `UPDATE photos SET status = 'rejected' WHERE id = $1`
	result, err := s.db.Exec(ctx, query, photoID)
	if err != nil {
		return fmt.Errorf("failed to reject photo: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("photo %s: %w", photoID, ErrNotFound)
	}
	return nil
}

func (t *pgTx) LockPhotos(ctx context.Context, ids ...string) (map[string]*models.Photo, error) {
	// Rows are always locked in id order
	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`
	rows, err := t.tx.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock photos: %w", err)
	}
	photos, err := collectPhotos(rows)
	if err != nil {
		return nil, err
	}

	locked := make(map[string]*models.Photo, len(photos))
	for _, photo := range photos {
		locked[photo.ID] = photo
	}
	return locked, nil
}

func (t *pgTx) ListPhotos(ctx context.Context, contestID string, status models.PhotoStatus) ([]*models.Photo, error) {
	return listPhotos(ctx, t.tx, contestID, status)
}

func (t *pgTx) SetRating(ctx context.Context, photoID string, rating float64, voteCount int) error {
	query := `UPDATE photos SET rating = $1, vote_count = $2 WHERE id = $3`
	result, err := t.tx.Exec(ctx, query, rating, voteCount, photoID)
	if err != nil {
		return fmt.Errorf("failed to set rating: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("photo %s: %w", photoID, ErrNotFound)
	}
	return nil
}
