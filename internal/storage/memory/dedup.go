package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
)

const dedupCleanupInterval = 10 * time.Minute

// DedupStore keeps reservations in a go-cache instance. Cache.Add only succeeds
// when the key is absent or expired, which is the check-and-set we need.
type DedupStore struct {
	cache *cache.Cache
}

// NewDedupStore creates an empty store.
func NewDedupStore() *DedupStore {
	return &DedupStore{cache: cache.New(cache.NoExpiration, dedupCleanupInterval)}
}

// Reserve inserts key and reports whether this call inserted it.
func (s *DedupStore) Reserve(_ context.Context, key domain.DedupKey, retention time.Duration) (bool, error) {
	ttl := cache.NoExpiration
	if retention > 0 {
		ttl = retention
	}

	if err := s.cache.Add(key.String(), struct{}{}, ttl); err != nil {
		//nolint:nilerr // Add only fails when the key is already present
		return false, nil
	}

	return true, nil
}

// Release drops a reservation.
func (s *DedupStore) Release(_ context.Context, key domain.DedupKey) error {
	s.cache.Delete(key.String())

	return nil
}
