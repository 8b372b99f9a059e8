package poller

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealfanatics/rss-pipeline/internal/core/canonical"
	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
	"github.com/dealfanatics/rss-pipeline/internal/process/dedup"
	"github.com/dealfanatics/rss-pipeline/internal/process/scoring"
	"github.com/dealfanatics/rss-pipeline/internal/storage/memory"
)

const testVisibility = time.Minute

var (
	errUnreachable = errors.New("dial tcp: no route to host")
	errStoreDown   = errors.New("connection reset by peer")
	errPublish     = errors.New("queue unavailable")
)

// mockFetcher returns canned items per source URL.
type mockFetcher struct {
	items map[string][]domain.CandidateItem
	errs  map[string]error
}

func (m *mockFetcher) FetchItems(_ context.Context, src domain.Source) ([]domain.CandidateItem, error) {
	if err := m.errs[src.URL]; err != nil {
		return nil, err
	}

	out := make([]domain.CandidateItem, 0, len(m.items[src.URL]))
	for _, it := range m.items[src.URL] {
		it.SourceID = src.ID
		it.SourceName = src.Name
		out = append(out, it)
	}

	return out, nil
}

// titleScoreJudge parses the score from the item title.
type titleScoreJudge struct {
	mu    sync.Mutex
	calls int
}

func (j *titleScoreJudge) Judge(_ context.Context, item domain.CandidateItem) (domain.Judgement, error) {
	j.mu.Lock()
	j.calls++
	j.mu.Unlock()

	score, err := strconv.Atoi(item.Title)
	if err != nil {
		return domain.Judgement{}, err
	}

	return domain.Judgement{Score: score, Reasoning: "title"}, nil
}

type failingDedupStore struct{}

func (failingDedupStore) Reserve(context.Context, domain.DedupKey, time.Duration) (bool, error) {
	return false, errStoreDown
}

func (failingDedupStore) Release(context.Context, domain.DedupKey) error { return nil }

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, []byte) (string, error) { return "", errPublish }

type testEnv struct {
	sources *memory.SourceStore
	fetcher *mockFetcher
	store   *memory.DedupStore
	queue   *memory.Queue
	judge   *titleScoreJudge
}

func newTestEnv(sources ...domain.Source) *testEnv {
	return &testEnv{
		sources: memory.NewSourceStore(sources...),
		fetcher: &mockFetcher{items: map[string][]domain.CandidateItem{}, errs: map[string]error{}},
		store:   memory.NewDedupStore(),
		queue:   memory.NewQueue("articles", 3),
		judge:   &titleScoreJudge{},
	}
}

func (e *testEnv) poller(store ports.DedupStore, pub Publisher) *Poller {
	logger := zerolog.Nop()
	idx := dedup.New(store, canonical.New(canonical.DefaultRules()), 0)
	scorer := scoring.New(e.judge, scoring.Config{})

	return New(e.sources, e.fetcher, idx, scorer, pub, Config{Concurrency: 2}, &logger)
}

func item(url, score string) domain.CandidateItem {
	return domain.CandidateItem{Link: url, URL: url, Title: score, Description: "d"}
}

func TestPoller_ScoresAgainstThreshold(t *testing.T) {
	env := newTestEnv(domain.Source{ID: "s1", Name: "one", URL: "https://feeds.example/one", Active: true})
	env.fetcher.items["https://feeds.example/one"] = []domain.CandidateItem{
		item("https://example.com/a", "30"),
		item("https://example.com/b", "65"),
		item("https://example.com/c", "90"),
	}

	summary, err := env.poller(env.store, env.queue).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Fetched)
	assert.Equal(t, 2, summary.Queued)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 0, summary.Duplicates)
	assert.False(t, summary.Partial())
	assert.Equal(t, 2, env.queue.Len())

	msgs, err := env.queue.ReceiveBatch(context.Background(), 10, testVisibility)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	var payload domain.ArticlePayload
	require.NoError(t, json.Unmarshal(msgs[1].Body, &payload))
	assert.Equal(t, "https://example.com/c", payload.Item.URL)
	assert.Equal(t, 90, payload.Decision.Score)
	assert.True(t, payload.Decision.Priority)
	assert.Equal(t, 60, payload.Decision.Threshold)
	assert.Equal(t, canonical.KeyOf("https://example.com/c"), payload.Key)
}

func TestPoller_DuplicatesAcrossCyclesAndSources(t *testing.T) {
	env := newTestEnv(
		domain.Source{ID: "s1", Name: "one", URL: "https://feeds.example/one", Active: true},
		domain.Source{ID: "s2", Name: "two", URL: "https://feeds.example/two", Active: true},
	)
	env.fetcher.items["https://feeds.example/one"] = []domain.CandidateItem{
		item("https://example.com/story?utm_source=one", "80"),
		item("https://example.com/low", "10"),
	}
	env.fetcher.items["https://feeds.example/two"] = []domain.CandidateItem{
		item("https://EXAMPLE.com/story/", "80"),
	}

	p := env.poller(env.store, env.queue)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Queued)
	assert.Equal(t, 1, first.Duplicates)
	assert.Equal(t, 1, first.Rejected)

	callsAfterFirst := env.judge.calls

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Queued)
	assert.Equal(t, 3, second.Duplicates)
	assert.Equal(t, callsAfterFirst, env.judge.calls, "seen items must not be re-scored")
	assert.Equal(t, 1, env.queue.Len())
}

func TestPoller_UnreachableSourceIsIsolated(t *testing.T) {
	env := newTestEnv(
		domain.Source{ID: "s1", Name: "up", URL: "https://feeds.example/up", Active: true},
		domain.Source{ID: "s2", Name: "down", URL: "https://feeds.example/down", Active: true},
	)
	env.fetcher.items["https://feeds.example/up"] = []domain.CandidateItem{item("https://example.com/x", "70")}
	env.fetcher.errs["https://feeds.example/down"] = errUnreachable

	summary, err := env.poller(env.store, env.queue).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Sources, 2)
	assert.Equal(t, 1, summary.SourcesFailed)
	assert.True(t, summary.Partial())
	assert.False(t, summary.AllSourcesFailed())
	assert.Equal(t, 1, summary.Queued)

	byName := map[string]SourceResult{}
	for _, r := range summary.Sources {
		byName[r.Source] = r
	}

	assert.False(t, byName["up"].FetchFailed())
	assert.True(t, byName["down"].FetchFailed())
	assert.Contains(t, byName["down"].Err, "no route to host")

	all, err := env.sources.ListSources(context.Background())
	require.NoError(t, err)

	for _, src := range all {
		if src.Name == "down" {
			assert.NotEmpty(t, src.LastError)
		} else {
			assert.Empty(t, src.LastError)
			assert.Equal(t, int64(1), src.ItemsProcessed)
		}
	}
}

func TestPoller_AllSourcesUnreachableIsNotFatal(t *testing.T) {
	env := newTestEnv(domain.Source{ID: "s1", Name: "down", URL: "https://feeds.example/down", Active: true})
	env.fetcher.errs["https://feeds.example/down"] = errUnreachable

	summary, err := env.poller(env.store, env.queue).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.AllSourcesFailed())
}

func TestPoller_NoSources(t *testing.T) {
	env := newTestEnv()

	summary, err := env.poller(env.store, env.queue).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Sources)
}

func TestPoller_DedupUnavailableSkipsItem(t *testing.T) {
	env := newTestEnv(domain.Source{ID: "s1", Name: "one", URL: "https://feeds.example/one", Active: true})
	env.fetcher.items["https://feeds.example/one"] = []domain.CandidateItem{item("https://example.com/a", "99")}

	summary, err := env.poller(failingDedupStore{}, env.queue).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Queued)
	assert.Equal(t, 0, env.queue.Len())
	assert.Equal(t, 0, env.judge.calls)
}

func TestPoller_PublishFailureReleasesReservation(t *testing.T) {
	env := newTestEnv(domain.Source{ID: "s1", Name: "one", URL: "https://feeds.example/one", Active: true})
	env.fetcher.items["https://feeds.example/one"] = []domain.CandidateItem{item("https://example.com/a", "99")}

	summary, err := env.poller(env.store, failingPublisher{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	retry, err := env.poller(env.store, env.queue).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Queued)
	assert.Equal(t, 0, retry.Duplicates)
}

func TestPoller_ScoringFailureReleasesReservation(t *testing.T) {
	env := newTestEnv(domain.Source{ID: "s1", Name: "one", URL: "https://feeds.example/one", Active: true})
	env.fetcher.items["https://feeds.example/one"] = []domain.CandidateItem{item("https://example.com/a", "not-a-number")}

	summary, err := env.poller(env.store, env.queue).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	ok, err := env.store.Reserve(context.Background(), canonical.KeyOf("https://example.com/a"), 0)
	require.NoError(t, err)
	assert.True(t, ok, "reservation should have been released")
}

func TestPoller_InvalidURL(t *testing.T) {
	env := newTestEnv(domain.Source{ID: "s1", Name: "one", URL: "https://feeds.example/one", Active: true})
	env.fetcher.items["https://feeds.example/one"] = []domain.CandidateItem{item("javascript:alert(1)", "99")}

	summary, err := env.poller(env.store, env.queue).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Invalid)
	assert.Equal(t, 0, summary.Queued)
}

func TestPoller_ConcurrentCyclesAdmitOnce(t *testing.T) {
	env := newTestEnv(domain.Source{ID: "s1", Name: "one", URL: "https://feeds.example/one", Active: true})
	env.fetcher.items["https://feeds.example/one"] = []domain.CandidateItem{
		item("https://example.com/a", "80"),
		item("https://example.com/b", "80"),
	}

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := env.poller(env.store, env.queue).Run(context.Background())
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	assert.Equal(t, 2, env.queue.Len())
}
