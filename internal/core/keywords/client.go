package keywords

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/platform/observability"
)

const (
	historicalMetricsPath = "/v1/keywords:historicalMetrics"
	keywordIdeasPath      = "/v1/keywords:ideas"

	languageEnglish   = "languageConstants/1000"
	geoUnitedStates   = "geoTargetConstants/2840"
	competitionNone   = "UNKNOWN"
	resourceExhausted = "RESOURCE_EXHAUSTED"
	maxSeedKeywords   = 3
	microsPerUnit     = 1_000_000
	maxErrorBodyBytes = 4096
	maxBodyBytes      = 5 << 20

	defaultTimeout = 60 * time.Second
	defaultRPS     = 1
	limiterBurst   = 1

	callMetrics = "metrics"
	callRelated = "related"
)

// Config configures the client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	RPS     float64
}

// Client implements ports.KeywordMetrics over the keyword service's JSON API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
}

// New creates a Client. Missing endpoint or token is a configuration error.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Token == "" {
		return nil, fmt.Errorf("%w: KEYWORD_API_URL and KEYWORD_API_TOKEN are required", errors.ErrMissingCredentials)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), limiterBurst),
	}, nil
}

type metricsRequest struct {
	Keywords           []string     `json:"keywords,omitempty"`
	KeywordSeed        *keywordSeed `json:"keyword_seed,omitempty"`
	Language           string       `json:"language"`
	GeoTargetConstants []string     `json:"geo_target_constants"`
}

type keywordSeed struct {
	Keywords []string `json:"keywords"`
}

type apiMetrics struct {
	AvgMonthlySearches     int64  `json:"avg_monthly_searches"`
	Competition            string `json:"competition"`
	CompetitionIndex       int    `json:"competition_index"`
	LowTopOfPageBidMicros  int64  `json:"low_top_of_page_bid_micros"`
	HighTopOfPageBidMicros int64  `json:"high_top_of_page_bid_micros"`
}

type apiResult struct {
	Text               string      `json:"text"`
	KeywordMetrics     *apiMetrics `json:"keyword_metrics"`
	KeywordIdeaMetrics *apiMetrics `json:"keyword_idea_metrics"`
}

type apiResponse struct {
	Results []apiResult `json:"results"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GetMetrics returns historical search metrics for keywords.
func (c *Client) GetMetrics(ctx context.Context, keywords []string) ([]domain.KeywordMetric, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	var resp apiResponse

	err := c.post(ctx, callMetrics, historicalMetricsPath, metricsRequest{
		Keywords:           keywords,
		Language:           languageEnglish,
		GeoTargetConstants: []string{geoUnitedStates},
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]domain.KeywordMetric, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, toMetric(r.Text, r.KeywordMetrics))
	}

	return out, nil
}

// RelatedKeywords returns up to limit keyword ideas for the first seeds,
// excluding the seeds themselves, highest volume first.
func (c *Client) RelatedKeywords(ctx context.Context, seeds []string, limit int) ([]domain.KeywordMetric, error) {
	if len(seeds) == 0 || limit <= 0 {
		return nil, nil
	}

	seeds = seeds[:min(len(seeds), maxSeedKeywords)]

	var resp apiResponse

	err := c.post(ctx, callRelated, keywordIdeasPath, metricsRequest{
		KeywordSeed:        &keywordSeed{Keywords: seeds},
		Language:           languageEnglish,
		GeoTargetConstants: []string{geoUnitedStates},
	}, &resp)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		skip[strings.ToLower(s)] = true
	}

	related := make([]domain.KeywordMetric, 0, limit)

	for _, r := range resp.Results {
		if skip[strings.ToLower(r.Text)] {
			continue
		}

		m := toMetric(r.Text, r.KeywordIdeaMetrics)
		related = append(related, domain.KeywordMetric{Keyword: m.Keyword, Volume: m.Volume, Competition: m.Competition})
	}

	sort.SliceStable(related, func(i, j int) bool { return related[i].Volume > related[j].Volume })

	return related[:min(len(related), limit)], nil
}

func toMetric(text string, m *apiMetrics) domain.KeywordMetric {
	out := domain.KeywordMetric{Keyword: text, Competition: competitionNone}
	if m == nil {
		return out
	}

	out.Volume = m.AvgMonthlySearches
	out.CompetitionIndex = m.CompetitionIndex
	out.CPCLow = microsToUnits(m.LowTopOfPageBidMicros)
	out.CPCHigh = microsToUnits(m.HighTopOfPageBidMicros)

	if m.Competition != "" {
		out.Competition = m.Competition
	}

	return out
}

// microsToUnits converts micros to currency units rounded to cents.
func microsToUnits(micros int64) float64 {
	return math.Round(float64(micros)/microsPerUnit*100) / 100
}

func (c *Client) post(ctx context.Context, call, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("keyword rate limiter wait: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode keyword request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create keyword request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.KeywordMetricCalls.WithLabelValues(call, "network_error").Inc()

		return fmt.Errorf("%w: keyword request: %w", errors.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		observability.KeywordMetricCalls.WithLabelValues(call, fmt.Sprintf("http_%d", resp.StatusCode)).Inc()

		return statusError(resp)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		observability.KeywordMetricCalls.WithLabelValues(call, "decode_error").Inc()

		return fmt.Errorf("%w: decode keyword response: %w", errors.ErrUnexpectedResponse, err)
	}

	observability.KeywordMetricCalls.WithLabelValues(call, "ok").Inc()

	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	msg := apiErr.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch {
	case apiErr.Error.Status == resourceExhausted:
		return fmt.Errorf("%w: %s", errors.ErrQuotaExhausted, msg)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: keyword service returned %d: %s", errors.ErrAccessDenied, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", errors.ErrRateLimited, msg)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: keyword service returned %d: %s", errors.ErrTransient, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: keyword service returned %d: %s", errors.ErrUnexpectedResponse, resp.StatusCode, msg)
	}
}
