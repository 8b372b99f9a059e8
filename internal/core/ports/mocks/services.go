package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

// DefaultModel is the model name reported by Extractor.
const DefaultModel = "mock-extractor"

// FeedFetcher serves scripted items per source URL.
type FeedFetcher struct {
	mu    sync.Mutex
	items map[string][]domain.CandidateItem
	calls int

	// FetchItemsFn allows overriding FetchItems behavior.
	FetchItemsFn func(ctx context.Context, src domain.Source) ([]domain.CandidateItem, error)
}

// NewFeedFetcher creates a feed fetcher with no scripted feeds.
func NewFeedFetcher() *FeedFetcher {
	return &FeedFetcher{items: make(map[string][]domain.CandidateItem)}
}

// SetItems scripts the items returned for a source URL.
func (f *FeedFetcher) SetItems(sourceURL string, items ...domain.CandidateItem) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items[sourceURL] = items
}

// FetchItems returns the scripted items for src.
func (f *FeedFetcher) FetchItems(ctx context.Context, src domain.Source) ([]domain.CandidateItem, error) {
	f.mu.Lock()
	f.calls++
	items, ok := f.items[src.URL]
	f.mu.Unlock()

	if f.FetchItemsFn != nil {
		return f.FetchItemsFn(ctx, src)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, src.URL)
	}

	out := make([]domain.CandidateItem, len(items))
	copy(out, items)

	for i := range out {
		out[i].SourceID = src.ID
		out[i].SourceName = src.Name
		out[i].SourceURL = src.URL
	}

	return out, nil
}

// Calls returns how many times FetchItems was called.
func (f *FeedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

// Judge returns a fixed score unless JudgeFn is set.
type Judge struct {
	mu    sync.Mutex
	score int
	calls int

	// JudgeFn allows overriding Judge behavior.
	JudgeFn func(ctx context.Context, item domain.CandidateItem) (domain.Judgement, error)
}

// NewJudge creates a judge that scores every item with score.
func NewJudge(score int) *Judge {
	return &Judge{score: score}
}

// Judge scores item.
func (j *Judge) Judge(ctx context.Context, item domain.CandidateItem) (domain.Judgement, error) {
	j.mu.Lock()
	j.calls++
	score := j.score
	j.mu.Unlock()

	if j.JudgeFn != nil {
		return j.JudgeFn(ctx, item)
	}

	return domain.Judgement{Score: score, Reasoning: "fixed score"}, nil
}

// Calls returns how many items were judged.
func (j *Judge) Calls() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.calls
}

// ContentFetcher returns article text built from the item unless FetchFn is set.
type ContentFetcher struct {
	mu    sync.Mutex
	calls int

	// FetchFn allows overriding Fetch behavior.
	FetchFn func(ctx context.Context, item domain.CandidateItem) (domain.Article, error)
}

// NewContentFetcher creates a content fetcher.
func NewContentFetcher() *ContentFetcher {
	return &ContentFetcher{}
}

// Fetch returns the article for item.
func (c *ContentFetcher) Fetch(ctx context.Context, item domain.CandidateItem) (domain.Article, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.FetchFn != nil {
		return c.FetchFn(ctx, item)
	}

	if item.URL == "" {
		return domain.Article{}, fmt.Errorf("%w: %w", errors.ErrContentUnavailable, ErrArticleNotFound)
	}

	return domain.Article{
		URL:   item.URL,
		Title: item.Title,
		Text:  item.Title + "\n\n" + item.Description,
	}, nil
}

// Calls returns how many articles were fetched.
func (c *ContentFetcher) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

// Extractor returns a small result derived from the request unless ExtractFn is set.
type Extractor struct {
	mu       sync.Mutex
	requests []domain.ExtractionRequest

	// ExtractFn allows overriding Extract behavior.
	ExtractFn func(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResult, error)
}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract records req and returns a result.
func (e *Extractor) Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResult, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	if e.ExtractFn != nil {
		return e.ExtractFn(ctx, req)
	}

	return domain.ExtractionResult{
		Title:    req.URL,
		Summary:  "summary of " + req.URL,
		Keywords: []string{"consumer psychology", "loss aversion"},
	}, nil
}

// Model returns DefaultModel.
func (e *Extractor) Model() string {
	return DefaultModel
}

// Requests returns a copy of the requests seen so far.
func (e *Extractor) Requests() []domain.ExtractionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.ExtractionRequest, len(e.requests))
	copy(out, e.requests)

	return out
}

// KeywordMetrics returns deterministic metrics unless the Fn hooks are set.
type KeywordMetrics struct {
	mu           sync.Mutex
	metricCalls  int
	relatedCalls int

	// GetMetricsFn allows overriding GetMetrics behavior.
	GetMetricsFn func(ctx context.Context, keywords []string) ([]domain.KeywordMetric, error)

	// RelatedKeywordsFn allows overriding RelatedKeywords behavior.
	RelatedKeywordsFn func(ctx context.Context, seeds []string, limit int) ([]domain.KeywordMetric, error)
}

// NewKeywordMetrics creates a keyword metrics mock.
func NewKeywordMetrics() *KeywordMetrics {
	return &KeywordMetrics{}
}

// GetMetrics returns one metric per keyword, with volume growing by position.
func (k *KeywordMetrics) GetMetrics(ctx context.Context, keywords []string) ([]domain.KeywordMetric, error) {
	k.mu.Lock()
	k.metricCalls++
	k.mu.Unlock()

	if k.GetMetricsFn != nil {
		return k.GetMetricsFn(ctx, keywords)
	}

	out := make([]domain.KeywordMetric, 0, len(keywords))
	for i, kw := range keywords {
		out = append(out, domain.KeywordMetric{
			Keyword:     kw,
			Volume:      int64(100 * (i + 1)),
			Competition: "LOW",
		})
	}

	return out, nil
}

// RelatedKeywords returns up to limit "<seed> ideas" suggestions.
func (k *KeywordMetrics) RelatedKeywords(ctx context.Context, seeds []string, limit int) ([]domain.KeywordMetric, error) {
	k.mu.Lock()
	k.relatedCalls++
	k.mu.Unlock()

	if k.RelatedKeywordsFn != nil {
		return k.RelatedKeywordsFn(ctx, seeds, limit)
	}

	out := make([]domain.KeywordMetric, 0, limit)
	for i, seed := range seeds {
		if len(out) == limit {
			break
		}

		out = append(out, domain.KeywordMetric{Keyword: seed + " ideas", Volume: int64(50 * (i + 1))})
	}

	return out, nil
}

// Calls returns the GetMetrics and RelatedKeywords call counts.
func (k *KeywordMetrics) Calls() (metrics, related int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.metricCalls, k.relatedCalls
}
