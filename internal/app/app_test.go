package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/ports/mocks"
	"github.com/dealfanatics/rss-pipeline/internal/platform/config"
	"github.com/dealfanatics/rss-pipeline/internal/storage/memory"
)

const testFeedURL = "https://www.marketingweek.com/feed/"

func newTestApp(t *testing.T) (*App, *memory.Queue, *memory.RecordStore) {
	t.Helper()

	t.Setenv("STORAGE_BACKEND", config.BackendMemory)
	t.Setenv("DEDUP_STRIP_WWW", "true")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	logger := zerolog.Nop()

	queue := memory.NewQueue(cfg.Queue.Name, cfg.Queue.MaxReceiveCount)
	records := memory.NewRecordStore()

	backend := &Backend{
		Sources: memory.NewSourceStore(domain.Source{ID: "mw", Name: "Marketing Week", URL: testFeedURL, Active: true}),
		Dedup:   memory.NewDedupStore(),
		Queue:   queue,
		Records: records,
	}

	feedsMock := mocks.NewFeedFetcher()
	feedsMock.SetItems(testFeedURL,
		domain.CandidateItem{Link: "https://www.marketingweek.com/loss-aversion/?utm_source=rss", Title: "Loss aversion in pricing"},
		domain.CandidateItem{Link: "https://marketingweek.com/loss-aversion/", Title: "Loss aversion in pricing"},
		domain.CandidateItem{Link: "https://www.marketingweek.com/social-proof/", Title: "Social proof at checkout"},
	)

	a := New(cfg, backend, &logger)
	a.feedFetcher = feedsMock
	a.judge = mocks.NewJudge(72)
	a.contentFetcher = mocks.NewContentFetcher()
	a.extractor = mocks.NewExtractor()
	a.keywordMetrics = mocks.NewKeywordMetrics()

	return a, queue, records
}

func TestApp_StagesOnce(t *testing.T) {
	a, queue, records := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.RunPoller(ctx, true))
	assert.Equal(t, 2, queue.Len(), "tracking-param and www variants share one dedup key")

	require.NoError(t, a.RunConsumer(ctx, true))
	assert.Equal(t, 0, queue.Len())

	enriched, err := records.Query(ctx, domain.RecordFilter{NonEmpty: []string{domain.FieldArticleKeywords}})
	require.NoError(t, err)
	require.Len(t, enriched, 2)

	require.NoError(t, a.RunKeywords(ctx, true))

	pending, err := records.Query(ctx, domain.RecordFilter{Missing: []string{domain.FieldSEOTargetKeywords}})
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A second poll finds nothing new.
	require.NoError(t, a.RunPoller(ctx, true))
	assert.Equal(t, 0, queue.Len())
}

func TestApp_BelowThresholdNotQueued(t *testing.T) {
	a, queue, _ := newTestApp(t)
	a.judge = mocks.NewJudge(40)

	require.NoError(t, a.RunPoller(context.Background(), true))
	assert.Equal(t, 0, queue.Len())
}

func TestApp_RunUnknownMode(t *testing.T) {
	a, _, _ := newTestApp(t)

	err := a.Run(context.Background(), "sync", true)
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestApp_SyncSourcesFile(t *testing.T) {
	a, _, _ := newTestApp(t)

	path := filepath.Join(t.TempDir(), "sources.yaml")
	doc := "sources:\n  - id: gn\n    url: https://news.google.com/rss/search?q=pricing\n    threshold: 50\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	a.cfg.SourcesFile = path
	require.NoError(t, a.SyncSourcesFile(context.Background()))

	sources, err := a.backend.Sources.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)

	var found bool

	for _, src := range sources {
		if src.ID == "gn" {
			found = true

			assert.True(t, src.IsGoogleNews)
		}
	}

	assert.True(t, found)
}

func TestOpenBackend_Memory(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", config.BackendMemory)

	cfg, err := config.Load()
	require.NoError(t, err)

	logger := zerolog.Nop()

	backend, err := OpenBackend(context.Background(), cfg, &logger)
	require.NoError(t, err)
	defer backend.Close()

	assert.Nil(t, backend.Database)
	assert.Nil(t, backend.Pinger)
}

func TestOpenBackend_Unknown(t *testing.T) {
	cfg := &config.Config{StorageBackend: "sqs"}
	logger := zerolog.Nop()

	_, err := OpenBackend(context.Background(), cfg, &logger)
	require.Error(t, err)
}
