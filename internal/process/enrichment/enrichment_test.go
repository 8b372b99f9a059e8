package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
	"github.com/dealfanatics/rss-pipeline/internal/storage/memory"
)

const testModel = "gpt-4o-mini"

var errStoreDown = errors.New("connection refused")

type mockFetcher struct {
	calls atomic.Int32
	err   error
}

func (m *mockFetcher) Fetch(_ context.Context, item domain.CandidateItem) (domain.Article, error) {
	m.calls.Add(1)

	if m.err != nil {
		return domain.Article{}, m.err
	}

	return domain.Article{URL: item.URL, Title: "Fetched title", Byline: "Jane Doe", Text: "long article text"}, nil
}

// retryMockExtractor fails until errorUntil calls have been made.
type retryMockExtractor struct {
	callCount  atomic.Int32
	errorUntil int32
	err        error
}

func (m *retryMockExtractor) Extract(_ context.Context, req domain.ExtractionRequest) (domain.ExtractionResult, error) {
	count := m.callCount.Add(1)
	if count <= m.errorUntil {
		return domain.ExtractionResult{}, m.err
	}

	return domain.ExtractionResult{
		Title:          "Loyalty is dead",
		PublisherName:  "Retail Weekly",
		Summary:        "Shoppers switch brands faster. Source: " + req.Source,
		SummarySignals: []string{"Capability Shift"},
		KeyThemes:      []domain.Theme{{Theme: "Switching", MarketingHook: "Win switchers", Evidence: "40%"}},
		FearAngles:     []string{"missing out"},
		Keywords:       []string{"brand loyalty", "retail"},
	}, nil
}

func (m *retryMockExtractor) Model() string { return testModel }

type failingGetStore struct {
	ports.RecordStore
}

func (failingGetStore) Get(context.Context, string) (domain.Record, error) {
	return domain.Record{}, errStoreDown
}

func testPayload() domain.ArticlePayload {
	return domain.ArticlePayload{
		Item: domain.CandidateItem{
			URL:         "https://example.com/story",
			Link:        "https://example.com/story?utm_source=rss",
			Title:       "Story",
			Description: "desc",
			SourceName:  "Retail Feed",
			SourceURL:   "https://feeds.example/retail",
			PublishedAt: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		},
		Key:      "abc123",
		Decision: domain.AdmissionDecision{Accept: true, Score: 82, Threshold: 60, Priority: true, Reasoning: "Emotional(25/30)"},
		QueuedAt: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func newTestEnricher(fetcher ports.ContentFetcher, extractor ports.Extractor, records ports.RecordStore) *Enricher {
	logger := zerolog.Nop()

	return NewEnricher(fetcher, extractor, records, &logger)
}

func TestEnricher_WritesRecord(t *testing.T) {
	records := memory.NewRecordStore()
	extractor := &retryMockExtractor{}

	err := newTestEnricher(&mockFetcher{}, extractor, records).Process(context.Background(), testPayload())
	require.NoError(t, err)

	rec, err := records.Get(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/story", rec.String(domain.FieldURL))
	assert.Equal(t, "Retail Feed", rec.String(domain.FieldFeedName))
	assert.Equal(t, "Loyalty is dead", rec.String(domain.FieldArticleTitle))
	assert.Equal(t, "Jane Doe", rec.String(domain.FieldArticleAuthor))
	assert.Equal(t, "brand loyalty|retail", rec.String(domain.FieldArticleKeywords))
	assert.Equal(t, testModel, rec.String(domain.FieldExtractionModel))
	assert.Equal(t, "2025-03-14T10:00:00Z", rec.String(domain.FieldQueuedAt))
	assert.Equal(t, "Emotional(25/30)", rec.String(domain.FieldScoringReasoning))
	assert.Equal(t, true, rec.Fields[domain.FieldIsPriority])
	assert.EqualValues(t, 82, rec.Fields[domain.FieldRelevanceScore])
}

func TestEnricher_ReprocessingIsIdempotent(t *testing.T) {
	records := memory.NewRecordStore()
	fetcher := &mockFetcher{}
	extractor := &retryMockExtractor{}
	e := newTestEnricher(fetcher, extractor, records)

	require.NoError(t, e.Process(context.Background(), testPayload()))

	first, err := records.Get(context.Background(), "abc123")
	require.NoError(t, err)

	require.NoError(t, e.Process(context.Background(), testPayload()))

	second, err := records.Get(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, first.Fields, second.Fields)
	assert.Equal(t, int32(1), extractor.callCount.Load(), "redelivery must not extract again")
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestEnricher_RateLimitedThenSucceeds(t *testing.T) {
	records := memory.NewRecordStore()
	extractor := &retryMockExtractor{
		errorUntil: 1,
		err:        fmt.Errorf("chat completion: %w", errors.ErrRateLimited),
	}
	e := newTestEnricher(&mockFetcher{}, extractor, records)

	err := e.Process(context.Background(), testPayload())
	require.Error(t, err)
	assert.Equal(t, errors.KindTransient, errors.Classify(err))

	_, err = records.Get(context.Background(), "abc123")
	require.ErrorIs(t, err, errors.ErrRecordNotFound, "failed attempt must not write")

	require.NoError(t, e.Process(context.Background(), testPayload()))
	assert.Equal(t, int32(2), extractor.callCount.Load())
}

func TestEnricher_PermanentFetchFailureSkipsExtraction(t *testing.T) {
	extractor := &retryMockExtractor{}
	fetcher := &mockFetcher{err: fmt.Errorf("%w: paywalled (status 403)", errors.ErrContentUnavailable)}

	err := newTestEnricher(fetcher, extractor, memory.NewRecordStore()).Process(context.Background(), testPayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrContentUnavailable)
	assert.Equal(t, errors.KindPermanent, errors.Classify(err))
	assert.Equal(t, int32(0), extractor.callCount.Load())
}

func TestEnricher_StoreUnavailableIsTransient(t *testing.T) {
	err := newTestEnricher(&mockFetcher{}, &retryMockExtractor{}, failingGetStore{}).Process(context.Background(), testPayload())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDependencyUnavailable)
}

// mockKeywordService serves metrics for any keyword and records batch sizes.
type mockKeywordService struct {
	mu         sync.Mutex
	batches    [][]string
	failOn     int // 1-based GetMetrics call that fails; 0 never fails
	err        error
	relatedErr error
}

func (m *mockKeywordService) GetMetrics(_ context.Context, kws []string) ([]domain.KeywordMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches = append(m.batches, append([]string(nil), kws...))
	if m.failOn > 0 && len(m.batches) >= m.failOn {
		return nil, m.err
	}

	out := make([]domain.KeywordMetric, 0, len(kws))
	for i, kw := range kws {
		out = append(out, domain.KeywordMetric{Keyword: kw, Volume: int64(100 * (i + 1)), Competition: "LOW"})
	}

	return out, nil
}

func (m *mockKeywordService) RelatedKeywords(_ context.Context, seeds []string, limit int) ([]domain.KeywordMetric, error) {
	if m.relatedErr != nil {
		return nil, m.relatedErr
	}

	return []domain.KeywordMetric{{Keyword: seeds[0] + " ideas", Volume: 42, Competition: "MEDIUM"}}[:min(1, limit)], nil
}

func (m *mockKeywordService) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.batches)
}

func seedRecord(t *testing.T, records *memory.RecordStore, id string, kws ...string) {
	t.Helper()

	require.NoError(t, records.Upsert(context.Background(), id, map[string]any{
		domain.FieldArticleKeywords: strings.Join(kws, " | "),
		domain.FieldArticleSummary:  "summary of " + id,
	}))
}

func keywordSet(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s keyword %02d", prefix, i)
	}

	return out
}

func newTestScanner(records ports.RecordStore, svc ports.KeywordMetrics) *KeywordScanner {
	logger := zerolog.Nop()

	return NewKeywordScanner(records, svc, ScanConfig{RecordsPerRun: 10, BatchSize: 10, RelatedLimit: 5}, &logger)
}

func TestKeywordScanner_BatchesAndMerges(t *testing.T) {
	records := memory.NewRecordStore()
	seedRecord(t, records, "r1", keywordSet("alpha", 10)...)
	seedRecord(t, records, "r2", keywordSet("beta", 10)...)
	seedRecord(t, records, "r3", append(keywordSet("gamma", 5), "Alpha Keyword 00")...)

	svc := &mockKeywordService{}

	summary, err := newTestScanner(records, svc).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Found)
	assert.Equal(t, 3, summary.Enriched)
	assert.Empty(t, summary.Stopped)
	require.Equal(t, 3, svc.batchCount(), "25 unique keywords in batches of 10")

	for _, b := range svc.batches {
		assert.LessOrEqual(t, len(b), 10)
	}

	rec, err := records.Get(context.Background(), "r3")
	require.NoError(t, err)
	assert.Equal(t, "summary of r3", rec.String(domain.FieldArticleSummary), "extraction fields are untouched")

	var targets []domain.KeywordMetric
	require.NoError(t, json.Unmarshal([]byte(rec.String(domain.FieldSEOTargetKeywords)), &targets))
	assert.Len(t, targets, 6)

	var related []longTailKeyword
	require.NoError(t, json.Unmarshal([]byte(rec.String(domain.FieldSEOLongTailKeywords)), &related))
	require.Len(t, related, 1)
	assert.Equal(t, int64(42), related[0].Volume)

	again, err := newTestScanner(records, svc).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Found)
}

func TestKeywordScanner_AccessDeniedAborts(t *testing.T) {
	records := memory.NewRecordStore()
	seedRecord(t, records, "r1", "brand loyalty")

	svc := &mockKeywordService{failOn: 1, err: fmt.Errorf("%w: caller lacks scope", errors.ErrAccessDenied)}

	_, err := newTestScanner(records, svc).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindConfiguration, errors.Classify(err))

	rec, err := records.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, rec.Has(domain.FieldSEOTargetKeywords))
}

func TestKeywordScanner_QuotaStopsRun(t *testing.T) {
	records := memory.NewRecordStore()
	seedRecord(t, records, "r1", keywordSet("alpha", 10)...)
	seedRecord(t, records, "r2", keywordSet("beta", 10)...)

	svc := &mockKeywordService{failOn: 2, err: fmt.Errorf("%w: daily quota", errors.ErrQuotaExhausted)}

	summary, err := newTestScanner(records, svc).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "quota_exhausted", summary.Stopped)
	assert.Equal(t, 1, summary.Enriched)
	assert.Equal(t, 1, summary.Deferred)

	r2, err := records.Get(context.Background(), "r2")
	require.NoError(t, err)
	assert.False(t, r2.Has(domain.FieldSEOTargetKeywords), "deferred record is rescanned next run")
}

func TestKeywordScanner_NoValidKeywordsMarksRecord(t *testing.T) {
	records := memory.NewRecordStore()
	seedRecord(t, records, "r1", "!", "a")

	summary, err := newTestScanner(records, &mockKeywordService{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Empty)

	rec, err := records.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "[]", rec.String(domain.FieldSEOTargetKeywords))
}

func TestKeywordScanner_RelatedFailureIsNonFatal(t *testing.T) {
	records := memory.NewRecordStore()
	seedRecord(t, records, "r1", "brand loyalty")

	svc := &mockKeywordService{relatedErr: fmt.Errorf("%w: upstream 503", errors.ErrTransient)}

	summary, err := newTestScanner(records, svc).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Enriched)

	rec, err := records.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "[]", rec.String(domain.FieldSEOLongTailKeywords))
}
