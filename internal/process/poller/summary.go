package poller

import (
	"time"

	"github.com/dealfanatics/rss-pipeline/internal/platform/observability"
)

// SourceResult holds the counters of one source within a cycle.
type SourceResult struct {
	SourceID   string
	Source     string
	Fetched    int
	Queued     int
	Duplicates int
	Rejected   int
	Invalid    int
	Failed     int    // Items skipped because a dependency failed; retried next cycle
	Err        string // Fetch failure, empty when the source was reachable
}

// FetchFailed reports whether the source itself could not be fetched.
func (r SourceResult) FetchFailed() bool {
	return r.Err != ""
}

func (r *SourceResult) count(result string) {
	switch result {
	case observability.AdmissionQueued:
		r.Queued++
	case observability.AdmissionDuplicate:
		r.Duplicates++
	case observability.AdmissionRejected:
		r.Rejected++
	case observability.AdmissionInvalid:
		r.Invalid++
	default:
		r.Failed++
	}
}

func (r SourceResult) processed() int {
	return r.Queued + r.Duplicates + r.Rejected + r.Invalid + r.Failed
}

// Summary aggregates one poll cycle.
type Summary struct {
	CycleID       string
	Sources       []SourceResult
	Fetched       int
	Queued        int
	Duplicates    int
	Rejected      int
	Invalid       int
	Failed        int
	SourcesFailed int
	Duration      time.Duration
}

func (s *Summary) aggregate() {
	for _, r := range s.Sources {
		s.Fetched += r.Fetched
		s.Queued += r.Queued
		s.Duplicates += r.Duplicates
		s.Rejected += r.Rejected
		s.Invalid += r.Invalid
		s.Failed += r.Failed

		if r.FetchFailed() {
			s.SourcesFailed++
		}
	}
}

// Partial reports a cycle where some sources or items failed.
func (s Summary) Partial() bool {
	return s.SourcesFailed > 0 || s.Failed > 0
}

// AllSourcesFailed reports a cycle where no source was reachable. It is not an
// error: the next scheduled cycle retries on its own.
func (s Summary) AllSourcesFailed() bool {
	return len(s.Sources) > 0 && s.SourcesFailed == len(s.Sources)
}
