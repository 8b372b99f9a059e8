package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/core/keywords"
	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
	"github.com/dealfanatics/rss-pipeline/internal/platform/observability"
)

const (
	defaultRecordsPerRun = 10
	defaultBatchSize     = 15
	defaultRelatedLimit  = 5

	componentKeywords = "keywords"
	logFieldScanID    = "scan_id"

	scanEnriched = "enriched"
	scanEmpty    = "no_keywords"
	scanDeferred = "deferred"
	scanFailed   = "failed"

	stopQuota       = "quota_exhausted"
	stopRateLimited = "rate_limited"
	stopUnavailable = "service_unavailable"
)

// ScanConfig configures the keyword scan.
type ScanConfig struct {
	RecordsPerRun int
	BatchSize     int
	RelatedLimit  int
}

// ScanSummary reports one keyword scan.
type ScanSummary struct {
	ScanID   string
	Found    int
	Enriched int
	Empty    int    // Records with no usable keywords, marked so they are not rescanned
	Deferred int    // Records left for the next run because metrics were not fetched
	Failed   int    // Records whose write failed
	Stopped  string // Why the run stopped early, empty when it completed
}

type longTailKeyword struct {
	Keyword     string `json:"keyword"`
	Volume      int64  `json:"volume"`
	Competition string `json:"competition"`
}

// KeywordScanner attaches search metrics to records that have extracted
// keywords but no metrics yet.
type KeywordScanner struct {
	records ports.RecordStore
	metrics ports.KeywordMetrics
	cfg     ScanConfig
	logger  *zerolog.Logger
}

// NewKeywordScanner creates a KeywordScanner. The batch size is clamped to
// the service's accepted range.
func NewKeywordScanner(records ports.RecordStore, metrics ports.KeywordMetrics, cfg ScanConfig, logger *zerolog.Logger) *KeywordScanner {
	if cfg.RecordsPerRun <= 0 {
		cfg.RecordsPerRun = defaultRecordsPerRun
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	if cfg.RelatedLimit <= 0 {
		cfg.RelatedLimit = defaultRelatedLimit
	}

	cfg.BatchSize = keywords.ClampBatchSize(cfg.BatchSize)

	return &KeywordScanner{records: records, metrics: metrics, cfg: cfg, logger: logger}
}

type pendingRecord struct {
	id       string
	keywords []string
}

// Run performs one scan. Only a failed store query or a configuration error
// from the keyword service is returned; the latter aborts the run because no
// later record can succeed either. Quota exhaustion and throttling stop the
// run early and leave the remaining records for the next scan.
func (s *KeywordScanner) Run(ctx context.Context) (ScanSummary, error) {
	summary := ScanSummary{ScanID: uuid.NewString()}
	logger := s.logger.With().Str(logFieldScanID, summary.ScanID).Logger()

	recs, err := s.records.Query(ctx, domain.RecordFilter{
		NonEmpty: []string{domain.FieldArticleKeywords},
		Missing:  []string{domain.FieldSEOTargetKeywords},
		Limit:    s.cfg.RecordsPerRun,
	})
	if err != nil {
		return summary, fmt.Errorf("query records needing keyword metrics: %w", err)
	}

	summary.Found = len(recs)
	if len(recs) == 0 {
		logger.Info().Msg("no records need keyword metrics")

		return summary, nil
	}

	pending, unique := collectKeywords(recs)

	fetched, stop, err := s.fetchMetrics(ctx, unique, logger)
	if err != nil {
		return summary, err
	}

	summary.Stopped = stop

	for _, rec := range pending {
		if ctx.Err() != nil {
			summary.Deferred++

			continue
		}

		status, err := s.enrichRecord(ctx, rec, fetched, &summary, logger)
		if err != nil {
			return summary, err
		}

		observability.KeywordScanRecords.WithLabelValues(status).Inc()
	}

	logger.Info().
		Int("found", summary.Found).
		Int("enriched", summary.Enriched).
		Int("empty", summary.Empty).
		Int("deferred", summary.Deferred).
		Int("failed", summary.Failed).
		Str("stopped", summary.Stopped).
		Msg("keyword scan complete")

	return summary, nil
}

// collectKeywords parses each record's keywords and returns them with the
// case-insensitively unique keyword list across all records.
func collectKeywords(recs []domain.Record) ([]pendingRecord, []string) {
	pending := make([]pendingRecord, 0, len(recs))
	seen := make(map[string]bool)

	var unique []string

	for _, rec := range recs {
		kws := keywords.Parse(rec.String(domain.FieldArticleKeywords))
		pending = append(pending, pendingRecord{id: rec.ID, keywords: kws})

		for _, kw := range kws {
			lower := strings.ToLower(kw)
			if !seen[lower] {
				seen[lower] = true
				unique = append(unique, kw)
			}
		}
	}

	return pending, unique
}

// fetchMetrics requests metrics batch by batch. The result maps every
// requested keyword (lowercased) to its metric, or to nil when the service
// returned none. Keywords of batches that were never requested are absent.
func (s *KeywordScanner) fetchMetrics(ctx context.Context, unique []string, logger zerolog.Logger) (map[string]*domain.KeywordMetric, string, error) {
	fetched := make(map[string]*domain.KeywordMetric, len(unique))

	for _, batch := range keywords.Chunk(unique, s.cfg.BatchSize) {
		metrics, err := s.metrics.GetMetrics(ctx, batch)
		if err != nil {
			stop, abort := handleServiceError(err, logger)
			if abort != nil {
				return nil, "", abort
			}

			return fetched, stop, nil
		}

		for _, kw := range batch {
			fetched[strings.ToLower(kw)] = nil
		}

		for i := range metrics {
			m := metrics[i]
			fetched[strings.ToLower(m.Keyword)] = &m
		}
	}

	return fetched, "", nil
}

// handleServiceError logs err and decides how the run continues. It returns
// an error only for configuration failures.
func handleServiceError(err error, logger zerolog.Logger) (string, error) {
	switch {
	case errors.Classify(err) == errors.KindConfiguration:
		observability.ConfigurationErrors.WithLabelValues(componentKeywords).Inc()
		logger.Error().Err(err).Msg("keyword service rejected credentials, aborting scan")

		return "", fmt.Errorf("keyword scan: %w", err)
	case errors.Is(err, errors.ErrQuotaExhausted):
		logger.Warn().Err(err).Msg("keyword service quota exhausted, stopping run")

		return stopQuota, nil
	case errors.Is(err, errors.ErrRateLimited):
		logger.Warn().Err(err).Msg("keyword service throttled, stopping run")

		return stopRateLimited, nil
	default:
		logger.Warn().Err(err).Msg("keyword metrics request failed")

		return stopUnavailable, nil
	}
}

func (s *KeywordScanner) enrichRecord(ctx context.Context, rec pendingRecord, fetched map[string]*domain.KeywordMetric, summary *ScanSummary, parent zerolog.Logger) (string, error) {
	logger := parent.With().Str(logFieldRecordID, rec.id).Logger()

	targets := make([]domain.KeywordMetric, 0, len(rec.keywords))

	for _, kw := range rec.keywords {
		m, ok := fetched[strings.ToLower(kw)]
		if !ok {
			summary.Deferred++

			return scanDeferred, nil
		}

		if m != nil {
			targets = append(targets, *m)
		}
	}

	related := s.related(ctx, rec.keywords, summary, logger)

	if err := s.write(ctx, rec.id, targets, related); err != nil {
		summary.Failed++

		if errors.Is(err, errors.ErrRecordNotFound) {
			logger.Warn().Err(err).Msg("record not found, retrying next run")
		} else {
			logger.Error().Err(err).Msg("failed to write keyword metrics")
		}

		return scanFailed, nil
	}

	if len(rec.keywords) == 0 {
		summary.Empty++
		logger.Warn().Msg("no valid keywords, marked as scanned")

		return scanEmpty, nil
	}

	summary.Enriched++

	return scanEnriched, nil
}

// related fetches long-tail suggestions. Failures are non-fatal: the record
// is written with an empty list.
func (s *KeywordScanner) related(ctx context.Context, seeds []string, summary *ScanSummary, logger zerolog.Logger) []longTailKeyword {
	if len(seeds) == 0 || summary.Stopped != "" {
		return []longTailKeyword{}
	}

	ideas, err := s.metrics.RelatedKeywords(ctx, seeds, s.cfg.RelatedLimit)
	if err != nil {
		if errors.Classify(err) == errors.KindConfiguration {
			observability.ConfigurationErrors.WithLabelValues(componentKeywords).Inc()
		}

		if errors.Is(err, errors.ErrQuotaExhausted) {
			summary.Stopped = stopQuota
		}

		logger.Warn().Err(err).Msg("related keywords unavailable")

		return []longTailKeyword{}
	}

	out := make([]longTailKeyword, 0, len(ideas))
	for _, idea := range ideas {
		out = append(out, longTailKeyword{Keyword: idea.Keyword, Volume: idea.Volume, Competition: idea.Competition})
	}

	return out
}

func (s *KeywordScanner) write(ctx context.Context, id string, targets []domain.KeywordMetric, related []longTailKeyword) error {
	targetJSON, err := json.Marshal(targets)
	if err != nil {
		return fmt.Errorf("encode target keywords: %w", err)
	}

	relatedJSON, err := json.Marshal(related)
	if err != nil {
		return fmt.Errorf("encode long-tail keywords: %w", err)
	}

	return s.records.Merge(ctx, id, map[string]any{
		domain.FieldSEOTargetKeywords:   string(targetJSON),
		domain.FieldSEOLongTailKeywords: string(relatedJSON),
	})
}
