package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealfanatics/rss-pipeline/internal/app"
	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/platform/config"
	"github.com/dealfanatics/rss-pipeline/internal/storage/memory"
)

type fixture struct {
	queue   *memory.Queue
	records *memory.RecordStore
	sources *memory.SourceStore
	cfg     *config.Config
}

func newFixture() *fixture {
	return &fixture{
		queue:   memory.NewQueue("articles", 3),
		records: memory.NewRecordStore(),
		sources: memory.NewSourceStore(),
	}
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := NewRootCommand(Options{
		Out: &out,
		Err: &errOut,
		Config: func() (*config.Config, error) {
			return &config.Config{StorageBackend: config.BackendPostgres}, nil
		},
		Open: func(_ context.Context, cfg *config.Config, _ *zerolog.Logger) (*app.Backend, error) {
			f.cfg = cfg

			return &app.Backend{Sources: f.sources, Queue: f.queue, Records: f.records}, nil
		},
	})
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestDLQListAndRedrive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	id, err := f.queue.Publish(ctx, []byte(`{"bad":`))
	require.NoError(t, err)
	require.NoError(t, f.queue.DeadLetter(ctx, id, domain.ReasonMalformedPayload, "unexpected end of JSON input"))

	out, err := f.run(t, "dlq", "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, domain.ReasonMalformedPayload)

	out, err = f.run(t, "dlq", "list", "-o", "json")
	require.NoError(t, err)

	var views []deadLetterView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, `{"bad":`, views[0].Body)

	out, err = f.run(t, "dlq", "redrive", id)
	require.NoError(t, err)
	assert.Contains(t, out, "redriven "+id)
	assert.Equal(t, 1, f.queue.Len())

	_, err = f.run(t, "dlq", "redrive", id)
	require.ErrorIs(t, err, memory.ErrMessageNotFound)
}

func TestSourcesSyncAndList(t *testing.T) {
	f := newFixture()

	path := filepath.Join(t.TempDir(), "sources.yaml")
	doc := "sources:\n  - id: mw\n    name: Marketing Week\n    url: https://www.marketingweek.com/feed/\n    threshold: 55\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	out, err := f.run(t, "sources", "sync", path)
	require.NoError(t, err)
	assert.Contains(t, out, "synced 1 sources")

	out, err = f.run(t, "sources", "list", "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Marketing Week")
	assert.Contains(t, out, "threshold: 55")
}

func TestRecordsGet(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.records.Upsert(context.Background(), "k1", map[string]any{
		domain.FieldTitle:           "Loss aversion",
		domain.FieldArticleKeywords: "pricing|loss aversion",
	}))

	out, err := f.run(t, "records", "get", "k1")
	require.NoError(t, err)
	assert.Contains(t, out, "Loss aversion")

	out, err = f.run(t, "records", "list", "--pending-keywords")
	require.NoError(t, err)
	assert.Contains(t, out, "k1")

	_, err = f.run(t, "records", "get", "missing")
	require.Error(t, err)
}

func TestFlagOverrides(t *testing.T) {
	f := newFixture()

	_, err := f.run(t, "dlq", "list", "--backend", config.BackendMemory, "--queue", "retries", "--dsn", "postgres://x")
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, f.cfg.StorageBackend)
	assert.Equal(t, "retries", f.cfg.Queue.Name)
	assert.Equal(t, "postgres://x", f.cfg.Database.PostgresDSN)
}

func TestConfigFileOverride(t *testing.T) {
	f := newFixture()

	path := filepath.Join(t.TempDir(), "ctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue_name: from-file\n"), 0o600))

	_, err := f.run(t, "--config", path, "dlq", "list")
	require.NoError(t, err)
	assert.Equal(t, "from-file", f.cfg.Queue.Name)
}

func TestUnknownOutputFormat(t *testing.T) {
	f := newFixture()

	_, err := f.run(t, "dlq", "list", "-o", "xml")
	require.Error(t, err)
}

func TestMigrate_NoSchema(t *testing.T) {
	f := newFixture()

	out, err := f.run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to migrate")
}
