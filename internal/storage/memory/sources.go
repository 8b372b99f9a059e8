package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

// ErrSourceNotFound is returned when a source ID is unknown.
var ErrSourceNotFound = errors.ErrSourceNotFound

// SourceStore keeps sources in memory, keyed by URL like the sources table.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[string]domain.Source
}

// NewSourceStore creates a store seeded with sources.
func NewSourceStore(sources ...domain.Source) *SourceStore {
	s := &SourceStore{sources: make(map[string]domain.Source)}
	for _, src := range sources {
		_ = s.UpsertSource(context.Background(), src)
	}

	return s
}

// ListActiveSources returns active sources ordered by name.
func (s *SourceStore) ListActiveSources(ctx context.Context) ([]domain.Source, error) {
	all, err := s.ListSources(ctx)
	if err != nil {
		return nil, err
	}

	active := all[:0]
	for _, src := range all {
		if src.Active {
			active = append(active, src)
		}
	}

	return active, nil
}

// ListSources returns all sources ordered by name.
func (s *SourceStore) ListSources(_ context.Context) ([]domain.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Source, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

// UpsertSource inserts or replaces the operator-owned columns of a source.
func (s *SourceStore) UpsertSource(_ context.Context, src domain.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if existing, ok := s.sources[src.URL]; ok {
		existing.Name = src.Name
		existing.Active = src.Active
		existing.Threshold = src.Threshold
		existing.IsGoogleNews = src.IsGoogleNews
		existing.UpdatedAt = now
		s.sources[src.URL] = existing

		return nil
	}

	if src.ID == "" {
		src.ID = uuid.NewString()
	}

	src.CreatedAt = now
	src.UpdatedAt = now
	s.sources[src.URL] = src

	return nil
}

// RecordFetchStatus stores the outcome of a fetch on the source.
func (s *SourceStore) RecordFetchStatus(_ context.Context, status domain.SourceFetchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for url, src := range s.sources {
		if src.ID != status.SourceID {
			continue
		}

		src.LastFetchedAt = status.FetchedAt
		src.LastError = status.Err
		src.ItemsProcessed += int64(status.Items)
		s.sources[url] = src

		return nil
	}

	return fmt.Errorf("record fetch status %s: %w", status.SourceID, ErrSourceNotFound)
}
