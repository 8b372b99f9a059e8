package sourcefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

const sample = `
sources:
  - id: mw
    name: Marketing Week
    url: https://www.marketingweek.com/feed/
    threshold: 55
  - url: https://news.google.com/rss/search?q=consumer+psychology
  - name: Paused
    url: http://example.com/rss
    active: false
    google_news: false
`

func TestParse(t *testing.T) {
	sources, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, sources, 3)

	assert.Equal(t, "mw", sources[0].ID)
	require.NotNil(t, sources[0].Threshold)
	assert.Equal(t, 55, *sources[0].Threshold)
	assert.True(t, sources[0].Active)
	assert.False(t, sources[0].IsGoogleNews)

	assert.Equal(t, "news.google.com", sources[1].Name)
	assert.True(t, sources[1].IsGoogleNews)
	assert.Nil(t, sources[1].Threshold)

	assert.False(t, sources[2].Active)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad_url", "sources:\n  - url: ftp://example.com/feed\n"},
		{"missing_url", "sources:\n  - name: nothing\n"},
		{"threshold_range", "sources:\n  - url: https://example.com/feed\n    threshold: 140\n"},
		{"duplicate", "sources:\n  - url: https://example.com/feed\n  - url: https://example.com/feed\n"},
		{"unknown_field", "sources:\n  - url: https://example.com/feed\n    treshold: 40\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	sources, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, sources, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
