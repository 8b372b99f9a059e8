package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	coreerrors "github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

// DedupStore reserves dedup keys in the dedup_keys table.
type DedupStore struct {
	db *DB
}

// NewDedupStore creates a DedupStore.
func (db *DB) NewDedupStore() *DedupStore {
	return &DedupStore{db: db}
}

// Reserve inserts key in one statement. An expired reservation is taken over;
// a live one makes the insert a no-op, so only the inserting caller sees true.
func (s *DedupStore) Reserve(ctx context.Context, key domain.DedupKey, retention time.Duration) (bool, error) {
	var expiresAt *time.Time

	if retention > 0 {
		t := time.Now().Add(retention)
		expiresAt = &t
	}

	var reserved string

	err := s.db.Pool.QueryRow(ctx, `
		INSERT INTO dedup_keys (key, reserved_at, expires_at)
		VALUES ($1, now(), $2)
		ON CONFLICT (key) DO UPDATE
		SET reserved_at = now(), expires_at = EXCLUDED.expires_at
		WHERE dedup_keys.expires_at IS NOT NULL AND dedup_keys.expires_at <= now()
		RETURNING key
	`, key.String(), expiresAt).Scan(&reserved)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("%w: reserve dedup key: %w", coreerrors.ErrDependencyUnavailable, err)
	}

	return true, nil
}

// Release drops a reservation.
func (s *DedupStore) Release(ctx context.Context, key domain.DedupKey) error {
	if _, err := s.db.Pool.Exec(ctx, `DELETE FROM dedup_keys WHERE key = $1`, key.String()); err != nil {
		return fmt.Errorf("%w: release dedup key: %w", coreerrors.ErrDependencyUnavailable, err)
	}

	return nil
}

// PurgeExpired deletes reservations whose retention elapsed.
func (s *DedupStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM dedup_keys WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purge expired dedup keys: %w", err)
	}

	return tag.RowsAffected(), nil
}
