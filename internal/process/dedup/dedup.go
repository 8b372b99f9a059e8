// Package dedup is the admission-side dedup index: it canonicalizes item URLs
// and reserves their keys in a shared store before anything is enqueued.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/dealfanatics/rss-pipeline/internal/core/canonical"
	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
)

// Index answers "has this item been admitted before" with a single atomic
// check-and-set in the backing store.
type Index struct {
	store      ports.DedupStore
	normalizer *canonical.Normalizer
	retention  time.Duration
}

// New creates an Index. A zero retention keeps reservations forever.
func New(store ports.DedupStore, normalizer *canonical.Normalizer, retention time.Duration) *Index {
	return &Index{store: store, normalizer: normalizer, retention: retention}
}

// Key canonicalizes rawURL and returns its dedup key and canonical form.
func (i *Index) Key(rawURL string) (domain.DedupKey, string, error) {
	key, canonicalURL, err := i.normalizer.Key(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("dedup key: %w", err)
	}

	return key, canonicalURL, nil
}

// CheckAndReserve reserves key and reports whether it had already been seen.
// Store failures surface as ErrDependencyUnavailable; the caller must not admit
// the item in that case.
func (i *Index) CheckAndReserve(ctx context.Context, key domain.DedupKey) (bool, error) {
	reserved, err := i.store.Reserve(ctx, key, i.retention)
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w: %w", key, errors.ErrDependencyUnavailable, err)
	}

	return !reserved, nil
}

// Release undoes a reservation whose item was not admitted after all, so the
// next cycle can try again.
func (i *Index) Release(ctx context.Context, key domain.DedupKey) error {
	if err := i.store.Release(ctx, key); err != nil {
		return fmt.Errorf("release %s: %w: %w", key, errors.ErrDependencyUnavailable, err)
	}

	return nil
}
