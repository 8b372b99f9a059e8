package domain

import "time"

// Source is a configured feed origin. The pipeline only reads sources and
// records fetch status; operators own the rest of the row.
type Source struct {
	ID             string    // Stable identifier
	Name           string    // Display name, copied onto every item as feed_name
	URL            string    // RSS or Atom feed URL
	Active         bool      // Inactive sources are skipped by the poller
	Threshold      *int      // Optional per-source admission threshold override
	IsGoogleNews   bool      // Items link to news.google.com redirect pages
	LastFetchedAt  time.Time // Last fetch attempt
	LastError      string    // Error from the last fetch, empty on success
	ItemsProcessed int64     // Running count of items seen from this source
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ThresholdOr returns the source override when set, otherwise def.
func (s Source) ThresholdOr(def int) int {
	if s.Threshold != nil {
		return *s.Threshold
	}

	return def
}

// SourceFetchStatus is the outcome of one fetch, recorded back on the Source.
type SourceFetchStatus struct {
	SourceID  string
	FetchedAt time.Time
	Err       string
	Items     int
}
