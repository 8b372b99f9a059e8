package keywords

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "  ", nil},
		{"pipe_delimited", "brand loyalty | switching costs|retail", []string{"brand loyalty", "switching costs", "retail"}},
		{"sanitizes_punctuation", "AI-powered tools! | kids' coding (ages 5+)", []string{"AI-powered tools", "kids coding ages 5"}},
		{"drops_short_and_repeats", "a | ai | AI | Ai ", []string{"ai"}},
		{"normalizes_width", "ｆｕｌｌ width", []string{"full width"}},
		{"unicode_letters", "éducation numérique", []string{"éducation numérique"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			if tt.want == nil {
				assert.Empty(t, got)

				return
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_CapsPerRecord(t *testing.T) {
	raw := "k01|k02|k03|k04|k05|k06|k07|k08|k09|k10|k11|k12"
	assert.Len(t, Parse(raw), MaxPerRecord)
}

func TestChunkAndClamp(t *testing.T) {
	assert.Equal(t, 10, ClampBatchSize(3))
	assert.Equal(t, 15, ClampBatchSize(15))
	assert.Equal(t, 20, ClampBatchSize(50))

	kws := make([]string, 25)
	for i := range kws {
		kws[i] = "kw"
	}

	batches := Chunk(kws, 10)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 10)
	assert.Len(t, batches[2], 5)
	assert.Nil(t, Chunk(nil, 10))
}

func newKeywordServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Token: "secret", RPS: 1000})
	require.NoError(t, err)

	return c
}

func TestGetMetrics(t *testing.T) {
	c := newKeywordServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, historicalMetricsPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req metricsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"brand loyalty", "retail"}, req.Keywords)

		_, _ = w.Write([]byte(`{"results":[
			{"text":"brand loyalty","keyword_metrics":{"avg_monthly_searches":1900,"competition":"LOW","competition_index":12,"low_top_of_page_bid_micros":1234567,"high_top_of_page_bid_micros":4500000}},
			{"text":"retail"}
		]}`))
	})

	metrics, err := c.GetMetrics(context.Background(), []string{"brand loyalty", "retail"})
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	assert.Equal(t, int64(1900), metrics[0].Volume)
	assert.Equal(t, "LOW", metrics[0].Competition)
	assert.InDelta(t, 1.23, metrics[0].CPCLow, 0.0001)
	assert.InDelta(t, 4.5, metrics[0].CPCHigh, 0.0001)
	assert.Equal(t, "UNKNOWN", metrics[1].Competition)
}

func TestRelatedKeywords(t *testing.T) {
	c := newKeywordServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, keywordIdeasPath, r.URL.Path)

		var req metricsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.KeywordSeed)
		assert.Len(t, req.KeywordSeed.Keywords, maxSeedKeywords)

		_, _ = w.Write([]byte(`{"results":[
			{"text":"Brand Loyalty","keyword_idea_metrics":{"avg_monthly_searches":5000}},
			{"text":"loyalty programs","keyword_idea_metrics":{"avg_monthly_searches":300,"competition":"HIGH"}},
			{"text":"customer retention","keyword_idea_metrics":{"avg_monthly_searches":900}},
			{"text":"brand switching","keyword_idea_metrics":{"avg_monthly_searches":50}}
		]}`))
	})

	related, err := c.RelatedKeywords(context.Background(), []string{"brand loyalty", "a", "b", "c"}, 2)
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, "customer retention", related[0].Keyword)
	assert.Equal(t, "loyalty programs", related[1].Keyword)
	assert.Equal(t, "HIGH", related[1].Competition)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
		kind   errors.Kind
	}{
		{"forbidden", http.StatusForbidden, `{"error":{"message":"caller lacks scope","status":"PERMISSION_DENIED"}}`, errors.ErrAccessDenied, errors.KindConfiguration},
		{"unauthorized", http.StatusUnauthorized, ``, errors.ErrAccessDenied, errors.KindConfiguration},
		{"throttled", http.StatusTooManyRequests, ``, errors.ErrRateLimited, errors.KindTransient},
		{"quota", http.StatusTooManyRequests, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, errors.ErrQuotaExhausted, errors.KindTransient},
		{"server", http.StatusBadGateway, ``, errors.ErrTransient, errors.KindTransient},
		{"bad_request", http.StatusBadRequest, ``, errors.ErrUnexpectedResponse, errors.KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newKeywordServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.GetMetrics(context.Background(), []string{"kw"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.kind, errors.Classify(err))
		})
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{BaseURL: "https://keywords.example"})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfiguration, errors.Classify(err))
}
