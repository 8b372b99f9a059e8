package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Consumer News</title>
  <item>
    <title>Shoppers &amp; the &lt;b&gt;holiday&lt;/b&gt; rush</title>
    <link>https://news.example.com/holiday?utm_source=rss</link>
    <description><![CDATA[<p>Retailers <b>discount</b> early.</p>]]></description>
    <pubDate>Mon, 02 Jan 2026 15:04:05 GMT</pubDate>
  </item>
  <item>
    <title>No link item</title>
    <description>skipped</description>
  </item>
  <item>
    <title>Odd date</title>
    <link>https://news.google.com/rss/articles/CBMiabc</link>
    <description>Via Google News</description>
    <pubDate>2026-01-03 10:00</pubDate>
  </item>
</channel>
</rss>`

func TestFetcher_FetchItems(t *testing.T) {
	var gotUA string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get(headerUserAgent)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprint(w, testRSS)
	}))
	defer srv.Close()

	f := NewFetcher(Config{UserAgent: "test-agent"})
	fixed := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	src := domain.Source{ID: "s1", Name: "Consumer News", URL: srv.URL}

	items, err := f.FetchItems(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "test-agent", gotUA)

	first := items[0]
	assert.Equal(t, "https://news.example.com/holiday?utm_source=rss", first.Link)
	assert.Equal(t, "Shoppers & the holiday rush", first.Title)
	assert.Equal(t, "Retailers discount early.", first.Description)
	assert.Equal(t, "s1", first.SourceID)
	assert.Equal(t, "Consumer News", first.SourceName)
	assert.Equal(t, srv.URL, first.SourceURL)
	assert.Equal(t, fixed, first.DiscoveredAt)
	assert.Equal(t, 2026, first.PublishedAt.Year())
	assert.False(t, first.IsGoogleNews)

	second := items[1]
	assert.True(t, second.IsGoogleNews)
	assert.Equal(t, 3, second.PublishedAt.Day())
}

func TestFetcher_MaxItems(t *testing.T) {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>x</title>`)

	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, `<item><title>t%d</title><link>https://example.com/%d</link></item>`, i, i)
	}

	sb.WriteString(`</channel></rss>`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, sb.String())
	}))
	defer srv.Close()

	f := NewFetcher(Config{MaxItems: 3})

	items, err := f.FetchItems(context.Background(), domain.Source{URL: srv.URL})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestFetcher_ErrorStatusIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher(Config{})

	_, err := f.FetchItems(context.Background(), domain.Source{URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, errors.KindTransient, errors.Classify(err))
}

func TestFetcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := NewFetcher(Config{Timeout: time.Second})

	_, err := f.FetchItems(context.Background(), domain.Source{URL: url})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransient))
}
