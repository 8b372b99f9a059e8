// Package feeds fetches candidate items from RSS and Atom sources.
package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/platform/htmlutils"
)

const (
	headerUserAgent = "User-Agent"
	headerAccept    = "Accept"
	acceptFeeds     = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

	defaultTimeout        = 30 * time.Second
	defaultMaxItems       = 50
	maxDescriptionRunes   = 1000
	maxFeedBodyBytes      = 10 << 20
	errFmtFetchFeed       = "fetch feed: %w"
	errFmtParseFeed       = "parse feed: %w"
	defaultFeedsUserAgent = "rss-pipeline/1.0 (+https://github.com/dealfanatics/rss-pipeline)"
)

var errFeedStatus = errors.New("unexpected feed status")

// Config configures the fetcher.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	MaxItems  int
}

// Fetcher implements ports.FeedFetcher with gofeed.
type Fetcher struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	userAgent  string
	maxItems   int
	now        func() time.Time
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxItems
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultFeedsUserAgent
	}

	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		parser:     gofeed.NewParser(),
		userAgent:  cfg.UserAgent,
		maxItems:   cfg.MaxItems,
		now:        time.Now,
	}
}

// FetchItems downloads and parses src. Network failures and non-2xx responses
// are transient: the next poll cycle tries again.
func (f *Fetcher) FetchItems(ctx context.Context, src domain.Source) ([]domain.CandidateItem, error) {
	feed, err := f.fetchFeed(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	discovered := f.now().UTC()
	items := make([]domain.CandidateItem, 0, min(len(feed.Items), f.maxItems))

	for _, entry := range feed.Items {
		if len(items) >= f.maxItems {
			break
		}

		item, ok := toCandidate(entry, src, discovered)
		if !ok {
			continue
		}

		items = append(items, item)
	}

	return items, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	req.Header.Set(headerUserAgent, f.userAgent)
	req.Header.Set(headerAccept, acceptFeeds)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtFetchFeed, fmt.Errorf("%w: %w", errors.ErrTransient, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %w: status %d", errors.ErrTransient, errFeedStatus, resp.StatusCode)
	}

	feed, err := f.parser.Parse(io.LimitReader(resp.Body, maxFeedBodyBytes))
	if err != nil {
		return nil, fmt.Errorf(errFmtParseFeed, err)
	}

	return feed, nil
}

func toCandidate(entry *gofeed.Item, src domain.Source, discovered time.Time) (domain.CandidateItem, bool) {
	if entry == nil {
		return domain.CandidateItem{}, false
	}

	link := strings.TrimSpace(entry.Link)
	if link == "" && len(entry.Links) > 0 {
		link = strings.TrimSpace(entry.Links[0])
	}

	if link == "" {
		return domain.CandidateItem{}, false
	}

	description := entry.Description
	if strings.TrimSpace(description) == "" {
		description = entry.Content
	}

	return domain.CandidateItem{
		URL:          link,
		Link:         link,
		Title:        htmlutils.StripHTMLTags(entry.Title),
		Description:  htmlutils.Truncate(htmlutils.StripHTMLTags(description), maxDescriptionRunes),
		SourceID:     src.ID,
		SourceName:   src.Name,
		SourceURL:    src.URL,
		IsGoogleNews: src.IsGoogleNews || isGoogleNewsLink(link),
		PublishedAt:  publishedAt(entry),
		DiscoveredAt: discovered,
	}, true
}

func publishedAt(entry *gofeed.Item) time.Time {
	switch {
	case entry.PublishedParsed != nil:
		return entry.PublishedParsed.UTC()
	case entry.UpdatedParsed != nil:
		return entry.UpdatedParsed.UTC()
	}

	for _, raw := range []string{entry.Published, entry.Updated} {
		if strings.TrimSpace(raw) == "" {
			continue
		}

		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}

func isGoogleNewsLink(link string) bool {
	return strings.Contains(link, "news.google.com/")
}
