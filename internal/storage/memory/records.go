package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

// RecordStore is an in-process field-merging record store. Field values are
// round-tripped through JSON so reads look exactly like the Postgres store's.
type RecordStore struct {
	now func() time.Time

	mu      sync.RWMutex
	records map[string]domain.Record
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{now: time.Now, records: make(map[string]domain.Record)}
}

// Upsert creates the record or merges fields into it.
func (s *RecordStore) Upsert(_ context.Context, id string, fields map[string]any) error {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	rec, ok := s.records[id]
	if !ok {
		rec = domain.Record{ID: id, Fields: make(map[string]any), CreatedAt: now}
	}

	for k, v := range normalized {
		rec.Fields[k] = v
	}

	rec.UpdatedAt = now
	s.records[id] = rec

	return nil
}

// Merge updates an existing record.
func (s *RecordStore) Merge(_ context.Context, id string, fields map[string]any) error {
	normalized, err := normalizeFields(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("merge record %s: %w", id, errors.ErrRecordNotFound)
	}

	for k, v := range normalized {
		rec.Fields[k] = v
	}

	rec.UpdatedAt = s.now()
	s.records[id] = rec

	return nil
}

// Get returns a copy of the record.
func (s *RecordStore) Get(_ context.Context, id string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return domain.Record{}, fmt.Errorf("get record %s: %w", id, errors.ErrRecordNotFound)
	}

	return copyRecord(rec), nil
}

// Query returns records matching filter, oldest first.
func (s *RecordStore) Query(_ context.Context, filter domain.RecordFilter) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Record, 0)

	for _, rec := range s.records {
		if matches(rec, filter) {
			out = append(out, copyRecord(rec))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}

		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

func matches(rec domain.Record, filter domain.RecordFilter) bool {
	for _, f := range filter.NonEmpty {
		v, ok := rec.Fields[f]
		if !ok || v == nil || v == "" {
			return false
		}
	}

	for _, f := range filter.Missing {
		if rec.Has(f) {
			return false
		}
	}

	return true
}

func normalizeFields(fields map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}

	out := make(map[string]any, len(fields))
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}

	return out, nil
}

func copyRecord(rec domain.Record) domain.Record {
	fields := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}

	rec.Fields = fields

	return rec
}
