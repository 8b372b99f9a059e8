// Package enrichment turns admitted articles into enriched records: article
// text extraction on the consumer path and keyword metrics on a pull scan.
package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
)

// Log field constants
const (
	logFieldRecordID = "record_id"
	logFieldURL      = "url"
)

// Enricher fetches, extracts and stores one admitted article.
type Enricher struct {
	fetcher   ports.ContentFetcher
	extractor ports.Extractor
	records   ports.RecordStore
	logger    *zerolog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(fetcher ports.ContentFetcher, extractor ports.Extractor, records ports.RecordStore, logger *zerolog.Logger) *Enricher {
	return &Enricher{
		fetcher:   fetcher,
		extractor: extractor,
		records:   records,
		logger:    logger,
	}
}

// RecordID is the store id of a payload's record. It is the dedup key, so a
// redelivered message always lands on the same record.
func RecordID(payload domain.ArticlePayload) string {
	return payload.Key.String()
}

// Process enriches one payload. A record that already carries extraction
// output is left alone, so a message redelivered after a successful write
// acks without a second extraction call. Returned errors keep their class
// for the consumer to route.
func (e *Enricher) Process(ctx context.Context, payload domain.ArticlePayload) error {
	id := RecordID(payload)
	logger := e.logger.With().Str(logFieldRecordID, id).Str(logFieldURL, payload.Item.URL).Logger()

	existing, err := e.records.Get(ctx, id)

	switch {
	case err == nil && existing.Has(domain.FieldExtractionModel):
		logger.Info().Msg("record already enriched, skipping")

		return nil
	case err == nil, errors.Is(err, errors.ErrRecordNotFound):
	default:
		return fmt.Errorf("%w: load record: %w", errors.ErrDependencyUnavailable, err)
	}

	art, err := e.fetcher.Fetch(ctx, payload.Item)
	if err != nil {
		return fmt.Errorf("fetch article: %w", err)
	}

	result, err := e.extractor.Extract(ctx, domain.ExtractionRequest{
		URL:       art.URL,
		Source:    payload.Item.SourceName,
		Score:     payload.Decision.Score,
		Reasoning: payload.Decision.Reasoning,
		Text:      art.Text,
	})
	if err != nil {
		return fmt.Errorf("extract article: %w", err)
	}

	if err := e.records.Upsert(ctx, id, recordFields(payload, art, result, e.extractor.Model())); err != nil {
		return fmt.Errorf("%w: upsert record: %w", errors.ErrDependencyUnavailable, err)
	}

	logger.Info().
		Int("themes", len(result.KeyThemes)).
		Int("keywords", len(result.Keywords)).
		Msg("record enriched")

	return nil
}

// recordFields builds the record from the payload and extraction output.
// Every value derives from the inputs, so rewriting the same payload yields
// the same record.
func recordFields(payload domain.ArticlePayload, art domain.Article, result domain.ExtractionResult, model string) map[string]any {
	item := payload.Item
	fields := result.Fields()

	fields[domain.FieldURL] = item.URL
	fields[domain.FieldLink] = item.Link
	fields[domain.FieldTitle] = item.Title
	fields[domain.FieldDescription] = item.Description
	fields[domain.FieldFeedName] = item.SourceName
	fields[domain.FieldSource] = item.SourceURL
	fields[domain.FieldRelevanceScore] = payload.Decision.Score
	fields[domain.FieldIsPriority] = payload.Decision.Priority
	fields[domain.FieldScoringReasoning] = payload.Decision.Reasoning
	fields[domain.FieldQueuedAt] = formatTime(payload.QueuedAt)
	fields[domain.FieldPublishedAt] = formatTime(item.PublishedAt)
	fields[domain.FieldResolvedURL] = art.URL
	fields[domain.FieldExtractionModel] = model
	fields[domain.FieldArticleTitle] = firstNonEmpty(result.Title, art.Title, item.Title)
	fields[domain.FieldArticleAuthor] = firstNonEmpty(result.Author, art.Byline)

	return fields
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
