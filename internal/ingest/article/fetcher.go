// Package article fetches and extracts readable article text for admitted items.
package article

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/platform/htmlutils"
	"github.com/dealfanatics/rss-pipeline/internal/platform/observability"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultRPS         = 2
	defaultTextLimit   = 90000
	defaultMinText     = 100
	defaultUserAgent   = "Mozilla/5.0 (compatible; rss-pipeline/1.0; +https://github.com/dealfanatics/rss-pipeline)"
	limiterBurst       = 2
	maxRedirects       = 5
	maxBodyBytes       = 5 << 20
	readableSampleSize = 1000
	minReadableRatio   = 0.7

	headerContentType = "Content-Type"
)

// Fetch statuses reported to metrics.
const (
	statusSuccess     = "success"
	statusPaywalled   = "paywalled"
	statusNotFound    = "not_found"
	statusNotHTML     = "not_html"
	statusTooShort    = "too_short"
	statusUnreadable  = "unreadable"
	statusDisallowed  = "robots_disallowed"
	statusHTTPError   = "http_error"
	statusFetchError  = "fetch_error"
	statusRateLimited = "rate_limited"
)

// Config configures the fetcher.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	RPS           float64
	TextLimit     int
	MinText       int
	RespectRobots bool
}

// Fetcher implements ports.ContentFetcher.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	robots    *RobotsChecker
	userAgent string
	textLimit int
	minText   int
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}

	if cfg.TextLimit <= 0 {
		cfg.TextLimit = defaultTextLimit
	}

	if cfg.MinText <= 0 {
		cfg.MinText = defaultMinText
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}

				return nil
			},
		},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RPS), limiterBurst),
		userAgent: cfg.UserAgent,
		textLimit: cfg.TextLimit,
		minText:   cfg.MinText,
	}

	if cfg.RespectRobots {
		f.robots = NewRobotsChecker(f.client, cfg.UserAgent)
	}

	return f
}

// Fetch resolves the item's article URL and returns its readable text.
//
// Paywalls (401/403), missing pages (404/410), non-HTML bodies and text
// shorter than the minimum are ErrContentUnavailable and never succeed on
// retry. Network failures and 5xx responses are transient.
func (f *Fetcher) Fetch(ctx context.Context, item domain.CandidateItem) (domain.Article, error) {
	target := item.Link
	if target == "" {
		target = item.URL
	}

	if item.IsGoogleNews {
		target = f.resolveGoogleNews(ctx, target)
	}

	pageURL, err := url.Parse(target)
	if err != nil {
		return domain.Article{}, fmt.Errorf("%w: parse article url: %w", errors.ErrContentUnavailable, err)
	}

	if f.robots != nil && !f.robots.Allowed(ctx, pageURL) {
		observability.ArticleFetches.WithLabelValues(statusDisallowed).Inc()

		return domain.Article{}, fmt.Errorf("%w: disallowed by robots.txt", errors.ErrContentUnavailable)
	}

	body, finalURL, err := f.download(ctx, pageURL)
	if err != nil {
		return domain.Article{}, err
	}

	art, err := f.extract(body, finalURL)
	if err != nil {
		return domain.Article{}, err
	}

	observability.ArticleFetches.WithLabelValues(statusSuccess).Inc()

	return art, nil
}

func (f *Fetcher) download(ctx context.Context, pageURL *url.URL) ([]byte, *url.URL, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: fetch rate limiter wait: %w", errors.ErrTransient, err)
	}

	resp, err := f.get(ctx, pageURL.String())
	if err != nil {
		observability.ArticleFetches.WithLabelValues(statusFetchError).Inc()

		return nil, nil, fmt.Errorf("%w: fetch article: %w", errors.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, nil, err
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get(headerContentType))
	if err != nil {
		reader = io.LimitReader(resp.Body, maxBodyBytes)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		observability.ArticleFetches.WithLabelValues(statusFetchError).Inc()

		return nil, nil, fmt.Errorf("%w: read article body: %w", errors.ErrTransient, err)
	}

	contentType := strings.ToLower(resp.Header.Get(headerContentType))
	if !strings.Contains(contentType, "html") && !htmlutils.LooksLikeHTML(body) {
		observability.ArticleFetches.WithLabelValues(statusNotHTML).Inc()

		return nil, nil, fmt.Errorf("%w: response is not html (content-type %q)", errors.ErrContentUnavailable, contentType)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return body, finalURL, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	return resp, nil
}

func statusError(code int) error {
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusPaymentRequired:
		observability.ArticleFetches.WithLabelValues(statusPaywalled).Inc()

		return fmt.Errorf("%w: paywalled (status %d)", errors.ErrContentUnavailable, code)
	case code == http.StatusNotFound, code == http.StatusGone:
		observability.ArticleFetches.WithLabelValues(statusNotFound).Inc()

		return fmt.Errorf("%w: not found (status %d)", errors.ErrContentUnavailable, code)
	case code == http.StatusTooManyRequests:
		observability.ArticleFetches.WithLabelValues(statusRateLimited).Inc()

		return fmt.Errorf("%w: article host throttled request", errors.ErrRateLimited)
	case code >= http.StatusInternalServerError:
		observability.ArticleFetches.WithLabelValues(statusHTTPError).Inc()

		return fmt.Errorf("%w: article host returned status %d", errors.ErrTransient, code)
	default:
		observability.ArticleFetches.WithLabelValues(statusHTTPError).Inc()

		return fmt.Errorf("%w: article host returned status %d", errors.ErrContentUnavailable, code)
	}
}

func (f *Fetcher) extract(body []byte, pageURL *url.URL) (domain.Article, error) {
	art := domain.Article{URL: pageURL.String()}

	parsed, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		art.Title = strings.TrimSpace(parsed.Title)
		art.Byline = strings.TrimSpace(parsed.Byline)
		art.Text = cleanText(parsed.TextContent)
	}

	if art.Text == "" {
		art.Text = fallbackText(body)
	}

	if !readable(art.Text) {
		observability.ArticleFetches.WithLabelValues(statusUnreadable).Inc()

		return domain.Article{}, fmt.Errorf("%w: extracted text is not readable", errors.ErrContentUnavailable)
	}

	if len([]rune(art.Text)) < f.minText {
		observability.ArticleFetches.WithLabelValues(statusTooShort).Inc()

		return domain.Article{}, fmt.Errorf("%w: extracted text shorter than %d characters", errors.ErrContentUnavailable, f.minText)
	}

	art.Text = htmlutils.Truncate(art.Text, f.textLimit)

	return art, nil
}

// fallbackText pulls text from the article element, or the body when there is none.
func fallbackText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	doc.Find("script, style, nav, header, footer, aside, noscript").Remove()

	sel := doc.Find("article").First()
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}

	return cleanText(sel.Text())
}

// cleanText drops control characters and blank lines and trims each line.
func cleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || unicode.IsPrint(r) || unicode.IsSpace(r) {
			return r
		}

		return -1
	}, text)

	lines := strings.Split(text, "\n")
	kept := lines[:0]

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}

	return strings.Join(kept, "\n")
}

// readable rejects text whose leading sample is mostly replacement or
// private-use runes, the usual sign of a mis-decoded body.
func readable(text string) bool {
	if text == "" {
		return true
	}

	var total, good int

	for _, r := range text {
		if total >= readableSampleSize {
			break
		}

		total++

		if r != unicode.ReplacementChar && !unicode.Is(unicode.Co, r) && (unicode.IsPrint(r) || unicode.IsSpace(r)) {
			good++
		}
	}

	return float64(good)/float64(total) >= minReadableRatio
}
