package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	coreerrors "github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

// SourceStore reads and writes the sources table.
type SourceStore struct {
	db *DB
}

// NewSourceStore creates a SourceStore.
func (db *DB) NewSourceStore() *SourceStore {
	return &SourceStore{db: db}
}

const sourceColumns = `id, name, url, active, threshold, is_google_news,
	last_fetched_at, last_error, items_processed, created_at, updated_at`

// ListActiveSources returns active sources ordered by name.
func (s *SourceStore) ListActiveSources(ctx context.Context) ([]domain.Source, error) {
	return s.list(ctx, `SELECT `+sourceColumns+` FROM sources WHERE active ORDER BY name`)
}

// ListSources returns all sources ordered by name.
func (s *SourceStore) ListSources(ctx context.Context) ([]domain.Source, error) {
	return s.list(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name`)
}

func (s *SourceStore) list(ctx context.Context, query string) ([]domain.Source, error) {
	rows, err := s.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list sources: %w", coreerrors.ErrDependencyUnavailable, err)
	}
	defer rows.Close()

	var out []domain.Source

	for rows.Next() {
		var (
			src                  domain.Source
			threshold            pgtype.Int4
			lastFetched          pgtype.Timestamptz
			createdAt, updatedAt pgtype.Timestamptz
		)

		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &src.Active, &threshold, &src.IsGoogleNews,
			&lastFetched, &src.LastError, &src.ItemsProcessed, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}

		src.Threshold = fromInt4Ptr(threshold)
		src.LastFetchedAt = fromTimestamptz(lastFetched)
		src.CreatedAt = fromTimestamptz(createdAt)
		src.UpdatedAt = fromTimestamptz(updatedAt)
		out = append(out, src)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}

	return out, nil
}

// UpsertSource inserts a source or replaces its operator-owned columns,
// matching on URL. Fetch status columns are left untouched.
func (s *SourceStore) UpsertSource(ctx context.Context, src domain.Source) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}

	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO sources (id, name, url, active, threshold, is_google_news)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (url) DO UPDATE
		SET name = EXCLUDED.name,
			active = EXCLUDED.active,
			threshold = EXCLUDED.threshold,
			is_google_news = EXCLUDED.is_google_news,
			updated_at = now()
	`, src.ID, src.Name, src.URL, src.Active, toInt4Ptr(src.Threshold), src.IsGoogleNews)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: source id %s already used by another url", coreerrors.ErrInvalidInput, src.ID)
	}

	if err != nil {
		return fmt.Errorf("upsert source %s: %w", src.URL, err)
	}

	return nil
}

// RecordFetchStatus stores the outcome of a fetch on the source.
func (s *SourceStore) RecordFetchStatus(ctx context.Context, status domain.SourceFetchStatus) error {
	var id string

	err := s.db.Pool.QueryRow(ctx, `
		UPDATE sources
		SET last_fetched_at = $2,
			last_error = $3,
			items_processed = items_processed + $4,
			updated_at = now()
		WHERE id = $1
		RETURNING id
	`, status.SourceID, toTimestamptz(status.FetchedAt), SanitizeUTF8(status.Err), status.Items).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("record fetch status %s: %w", status.SourceID, coreerrors.ErrSourceNotFound)
	}

	if err != nil {
		return fmt.Errorf("record fetch status %s: %w", status.SourceID, err)
	}

	return nil
}
