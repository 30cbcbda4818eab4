package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on top of a pgx connection pool
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema. Safe to call on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InTx runs fn inside a read-committed transaction
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close releases the pool
func (s *PostgresStore) Close() {
	s.db.Close()
}

// pgTx implements Tx over a pgx transaction
type pgTx struct {
	tx pgx.Tx
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    role TEXT NOT NULL DEFAULT 'voter',
    push_token TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS contests (
    id TEXT PRIMARY KEY,
    organizer_id TEXT NOT NULL,
    title TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'finished')),
    voting_opens_at TIMESTAMPTZ NOT NULL,
    voting_closes_at TIMESTAMPTZ NOT NULL,
    max_total_votes INTEGER NOT NULL DEFAULT 0,
    max_daily_votes INTEGER NOT NULL DEFAULT 0,
    winner_count INTEGER NOT NULL DEFAULT 1,
    k_factor DOUBLE PRECISION NOT NULL,
    live_standings BOOLEAN NOT NULL DEFAULT FALSE,
    insufficient_voting_data BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_contests_closing ON contests(voting_closes_at) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS photos (
    id TEXT PRIMARY KEY,
    contest_id TEXT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
    owner_id TEXT NOT NULL,
    s3_key TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
    rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    vote_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_photos_contest_status ON photos(contest_id, status);

CREATE TABLE IF NOT EXISTS votes (
    id TEXT PRIMARY KEY,
    contest_id TEXT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
    voter_id TEXT NOT NULL,
    winner_photo_id TEXT NOT NULL REFERENCES photos(id),
    loser_photo_id TEXT NOT NULL REFERENCES photos(id),
    photo_low_id TEXT NOT NULL,
    photo_high_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (winner_photo_id <> loser_photo_id),
    UNIQUE (contest_id, voter_id, photo_low_id, photo_high_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_contest_voter ON votes(contest_id, voter_id);

CREATE TABLE IF NOT EXISTS voter_quotas (
    contest_id TEXT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
    voter_id TEXT NOT NULL,
    total_votes_cast INTEGER NOT NULL DEFAULT 0,
    votes_cast_today INTEGER NOT NULL DEFAULT 0,
    last_vote_day DATE NOT NULL DEFAULT CURRENT_DATE,
    PRIMARY KEY (contest_id, voter_id)
);

CREATE TABLE IF NOT EXISTS standings (
    contest_id TEXT NOT NULL REFERENCES contests(id) ON DELETE CASCADE,
    rank INTEGER NOT NULL,
    photo_id TEXT NOT NULL REFERENCES photos(id),
    owner_id TEXT NOT NULL,
    rating DOUBLE PRECISION NOT NULL,
    vote_count INTEGER NOT NULL,
    winner BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (contest_id, rank)
);
`
