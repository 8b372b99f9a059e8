package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	coreerrors "github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RecordStore keeps enriched records as JSONB documents. Writes merge with
// the jsonb || operator, so keys a write does not mention are kept.
type RecordStore struct {
	db *DB
}

// NewRecordStore creates a RecordStore.
func (db *DB) NewRecordStore() *RecordStore {
	return &RecordStore{db: db}
}

// Upsert creates the record or merges fields into it.
func (s *RecordStore) Upsert(ctx context.Context, id string, fields map[string]any) error {
	doc, err := encodeFields(fields)
	if err != nil {
		return err
	}

	if _, err := s.db.Pool.Exec(ctx, `
		INSERT INTO records (id, fields)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET fields = records.fields || EXCLUDED.fields, updated_at = now()
	`, id, doc); err != nil {
		return fmt.Errorf("upsert record %s: %w", id, err)
	}

	return nil
}

// Merge updates an existing record.
func (s *RecordStore) Merge(ctx context.Context, id string, fields map[string]any) error {
	doc, err := encodeFields(fields)
	if err != nil {
		return err
	}

	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE records SET fields = fields || $2::jsonb, updated_at = now()
		WHERE id = $1
	`, id, doc)
	if err != nil {
		return fmt.Errorf("merge record %s: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merge record %s: %w", id, coreerrors.ErrRecordNotFound)
	}

	return nil
}

// Get returns one record.
func (s *RecordStore) Get(ctx context.Context, id string) (domain.Record, error) {
	row := s.db.Pool.QueryRow(ctx, `
		SELECT id, fields, created_at, updated_at FROM records WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Record{}, fmt.Errorf("get record %s: %w", id, coreerrors.ErrRecordNotFound)
	}

	if err != nil {
		return domain.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}

	return rec, nil
}

// Query returns records matching filter, oldest first.
func (s *RecordStore) Query(ctx context.Context, filter domain.RecordFilter) ([]domain.Record, error) {
	sqlStr, args, err := buildRecordQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("build record query: %w", err)
	}

	rows, err := s.db.Pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []domain.Record

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return out, nil
}

// buildRecordQuery translates a filter to SQL. A field is non-empty when it
// is present, not JSON null and not "". A field is missing when the key is absent.
func buildRecordQuery(filter domain.RecordFilter) (string, []any, error) {
	q := psql.Select("id", "fields", "created_at", "updated_at").
		From("records").
		OrderBy("created_at", "id")

	for _, f := range filter.NonEmpty {
		q = q.Where(sq.Expr("coalesce(fields->>?, '') <> ''", f))
	}

	for _, f := range filter.Missing {
		q = q.Where(sq.Expr("fields->? IS NULL", f))
	}

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("render sql: %w", err)
	}

	return sqlStr, args, nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var (
		rec                  domain.Record
		raw                  []byte
		createdAt, updatedAt pgtype.Timestamptz
	)

	if err := row.Scan(&rec.ID, &raw, &createdAt, &updatedAt); err != nil {
		return domain.Record{}, err //nolint:wrapcheck // callers wrap with the record id
	}

	rec.Fields = make(map[string]any)
	if err := json.Unmarshal(raw, &rec.Fields); err != nil {
		return domain.Record{}, fmt.Errorf("decode record fields: %w", err)
	}

	rec.CreatedAt = fromTimestamptz(createdAt)
	rec.UpdatedAt = fromTimestamptz(updatedAt)

	return rec, nil
}

func encodeFields(fields map[string]any) ([]byte, error) {
	clean := make(map[string]any, len(fields))

	for k, v := range fields {
		if s, ok := v.(string); ok {
			v = SanitizeUTF8(s)
		}

		clean[k] = v
	}

	doc, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: encode record fields: %w", coreerrors.ErrMalformedPayload, err)
	}

	return doc, nil
}
