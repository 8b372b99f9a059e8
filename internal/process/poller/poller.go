// Package poller runs feed poll cycles: fetch every active source, reserve each
// item's dedup key, score it, and publish admitted items to the queue.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
	"github.com/dealfanatics/rss-pipeline/internal/platform/observability"
	"github.com/dealfanatics/rss-pipeline/internal/platform/worker"
)

const (
	defaultConcurrency = 4
	releaseTimeout     = 10 * time.Second
)

// Log field constants
const (
	logFieldCycleID  = "cycle_id"
	logFieldSource   = "source"
	logFieldSourceID = "source_id"
	logFieldURL      = "url"
	logFieldDedupKey = "dedup_key"
	logFieldScore    = "score"
)

// DedupIndex is the admission-side dedup check.
type DedupIndex interface {
	Key(rawURL string) (domain.DedupKey, string, error)
	CheckAndReserve(ctx context.Context, key domain.DedupKey) (bool, error)
	Release(ctx context.Context, key domain.DedupKey) error
}

// Scorer makes the admission decision for one item.
type Scorer interface {
	Score(ctx context.Context, item domain.CandidateItem, src domain.Source) (domain.AdmissionDecision, error)
}

// Publisher enqueues admitted payloads.
type Publisher interface {
	Publish(ctx context.Context, body []byte) (string, error)
}

// Config configures the poller.
type Config struct {
	Concurrency int
}

// Poller runs poll cycles. It keeps no state between cycles.
type Poller struct {
	sources     ports.SourceRepository
	fetcher     ports.FeedFetcher
	index       DedupIndex
	scorer      Scorer
	publisher   Publisher
	concurrency int
	logger      *zerolog.Logger
	now         func() time.Time
}

// New creates a Poller.
func New(sources ports.SourceRepository, fetcher ports.FeedFetcher, index DedupIndex, scorer Scorer, publisher Publisher, cfg Config, logger *zerolog.Logger) *Poller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	return &Poller{
		sources:     sources,
		fetcher:     fetcher,
		index:       index,
		scorer:      scorer,
		publisher:   publisher,
		concurrency: cfg.Concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one poll cycle. Per-source and per-item failures are recorded
// in the summary and never returned; the only error is failing to list sources.
func (p *Poller) Run(ctx context.Context) (Summary, error) {
	start := p.now()
	cycleID := uuid.NewString()
	logger := p.logger.With().Str(logFieldCycleID, cycleID).Logger()

	summary := Summary{CycleID: cycleID}

	sources, err := p.sources.ListActiveSources(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active sources: %w", err)
	}

	if len(sources) == 0 {
		logger.Warn().Msg("no active sources configured")

		return summary, nil
	}

	results := make([]SourceResult, len(sources))
	sem := make(chan struct{}, p.concurrency)

	var wg sync.WaitGroup

	for i := range sources {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = SourceResult{SourceID: sources[i].ID, Source: sources[i].Name, Err: ctx.Err().Error()}

				return
			}
			defer func() { <-sem }()

			results[i] = p.pollSource(ctx, sources[i], logger)
		}(i)
	}

	wg.Wait()

	summary.Sources = results
	summary.Duration = p.now().Sub(start)
	summary.aggregate()

	observability.PollCycleDurationSeconds.Observe(summary.Duration.Seconds())
	observability.PollCycleSourcesFailed.Set(float64(summary.SourcesFailed))

	event := logger.Info()
	if summary.AllSourcesFailed() {
		event = logger.Error()
	} else if summary.Partial() {
		event = logger.Warn()
	}

	event.
		Int("sources", len(summary.Sources)).
		Int("sources_failed", summary.SourcesFailed).
		Int("fetched", summary.Fetched).
		Int("queued", summary.Queued).
		Int("duplicates", summary.Duplicates).
		Int("rejected", summary.Rejected).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("poll cycle complete")

	return summary, nil
}

func (p *Poller) pollSource(ctx context.Context, src domain.Source, parent zerolog.Logger) (res SourceResult) {
	logger := parent.With().Str(logFieldSource, src.Name).Str(logFieldSourceID, src.ID).Logger()
	res = SourceResult{SourceID: src.ID, Source: src.Name}

	defer worker.RecoverPanic(&logger, "poll source")

	items, err := p.fetcher.FetchItems(ctx, src)
	p.recordStatus(ctx, src, len(items), err, logger)

	if err != nil {
		observability.SourceFetchFailures.WithLabelValues(src.Name).Inc()
		logger.Warn().Err(err).Msg("source fetch failed")

		res.Err = err.Error()

		return res
	}

	res.Fetched = len(items)
	observability.ItemsFetched.WithLabelValues(src.Name).Add(float64(len(items)))

	for _, item := range items {
		if ctx.Err() != nil {
			// Items not yet reserved are picked up by the next cycle.
			res.Failed += res.Fetched - res.processed()

			break
		}

		result := p.admit(ctx, src, item, logger)
		observability.ItemsAdmitted.WithLabelValues(result).Inc()
		res.count(result)
	}

	return res
}

// admit runs reserve, score and publish for one item and returns its admission result.
func (p *Poller) admit(ctx context.Context, src domain.Source, item domain.CandidateItem, logger zerolog.Logger) string {
	key, canonicalURL, err := p.index.Key(item.Link)
	if err != nil {
		logger.Debug().Err(err).Str(logFieldURL, item.Link).Msg("skipping item with invalid url")

		return observability.AdmissionInvalid
	}

	item.URL = canonicalURL
	itemLogger := logger.With().Str(logFieldURL, canonicalURL).Str(logFieldDedupKey, key.String()).Logger()

	seen, err := p.index.CheckAndReserve(ctx, key)
	if err != nil {
		itemLogger.Warn().Err(err).Msg("dedup index unavailable, skipping item until next cycle")

		return observability.AdmissionFailed
	}

	if seen {
		return observability.AdmissionDuplicate
	}

	decision, err := p.scorer.Score(ctx, item, src)
	if err != nil {
		itemLogger.Warn().Err(err).Msg("scoring failed, releasing reservation")
		p.release(ctx, key, itemLogger)

		return observability.AdmissionFailed
	}

	observability.RelevanceScores.Observe(float64(decision.Score))

	if !decision.Accept {
		itemLogger.Debug().Int(logFieldScore, decision.Score).Int("threshold", decision.Threshold).Msg("item rejected")

		return observability.AdmissionRejected
	}

	body, err := json.Marshal(domain.ArticlePayload{
		Item:     item,
		Key:      key,
		Decision: decision,
		QueuedAt: p.now().UTC(),
	})
	if err != nil {
		itemLogger.Error().Err(err).Msg("failed to encode payload")
		p.release(ctx, key, itemLogger)

		return observability.AdmissionFailed
	}

	messageID, err := p.publisher.Publish(ctx, body)
	if err != nil {
		itemLogger.Warn().Err(err).Msg("publish failed, releasing reservation")
		p.release(ctx, key, itemLogger)

		return observability.AdmissionFailed
	}

	itemLogger.Info().
		Str("message_id", messageID).
		Int(logFieldScore, decision.Score).
		Bool("priority", decision.Priority).
		Msg("item queued")

	return observability.AdmissionQueued
}

func (p *Poller) release(ctx context.Context, key domain.DedupKey, logger zerolog.Logger) {
	// The cycle deadline may already be gone; the release must still land.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := p.index.Release(releaseCtx, key); err != nil {
		logger.Error().Err(err).Msg("failed to release dedup reservation")
	}
}

func (p *Poller) recordStatus(ctx context.Context, src domain.Source, items int, fetchErr error, logger zerolog.Logger) {
	status := domain.SourceFetchStatus{SourceID: src.ID, FetchedAt: p.now().UTC(), Items: items}
	if fetchErr != nil {
		status.Err = fetchErr.Error()
	}

	if err := p.sources.RecordFetchStatus(ctx, status); err != nil {
		logger.Debug().Err(err).Msg("failed to record source fetch status")
	}
}
