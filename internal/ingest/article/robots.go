package article

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"

	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

const (
	robotsCacheTTL     = 24 * time.Hour
	robotsCacheCleanup = time.Hour
)

var errRobotsStatus = errors.New("robots.txt server error")

// RobotsChecker checks robots.txt rules per host and caches the parsed file.
type RobotsChecker struct {
	client    *http.Client
	cache     *cache.Cache
	userAgent string
}

// NewRobotsChecker creates a checker that fetches robots.txt with client.
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		cache:     cache.New(robotsCacheTTL, robotsCacheCleanup),
		userAgent: userAgent,
	}
}

// Allowed reports whether the user agent may fetch u. A robots.txt that
// cannot be fetched or parsed allows everything.
func (r *RobotsChecker) Allowed(ctx context.Context, u *url.URL) bool {
	data, err := r.robotsData(ctx, u)
	if err != nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	return data.TestAgent(path, r.userAgent)
}

func (r *RobotsChecker) robotsData(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	if cached, ok := r.cache.Get(u.Host); ok {
		data, _ := cached.(*robotstxt.RobotsData)

		return data, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create robots request: %w", err)
	}

	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		resp.Body.Close()

		return nil, fmt.Errorf("%w: %d", errRobotsStatus, resp.StatusCode)
	}

	data, err := robotstxt.FromResponse(resp)
	resp.Body.Close()

	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.cache.SetDefault(u.Host, data)

	return data, nil
}
