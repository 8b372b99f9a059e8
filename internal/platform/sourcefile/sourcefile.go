// Package sourcefile reads the operator-maintained YAML list of feed sources.
//
// Example:
//
//	sources:
//	  - id: marketing-week
//	    name: Marketing Week
//	    url: https://www.marketingweek.com/feed/
//	    threshold: 55
//	  - name: Google News - consumer psychology
//	    url: https://news.google.com/rss/search?q=consumer+psychology
//	    google_news: true
package sourcefile

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

const (
	minThreshold = 0
	maxThreshold = 100
)

type file struct {
	Sources []entry `yaml:"sources"`
}

type entry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	Active     *bool  `yaml:"active"`
	Threshold  *int   `yaml:"threshold"`
	GoogleNews *bool  `yaml:"google_news"`
}

// Load reads and validates the sources file at path.
func Load(path string) ([]domain.Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	return Parse(raw)
}

// Parse decodes a sources document. Sources are active unless stated
// otherwise; google_news defaults to true for news.google.com feeds.
func Parse(raw []byte) ([]domain.Source, error) {
	var f file

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: decode sources file: %w", errors.ErrInvalidInput, err)
	}

	seen := make(map[string]bool, len(f.Sources))
	out := make([]domain.Source, 0, len(f.Sources))

	for i, e := range f.Sources {
		src, err := e.toSource()
		if err != nil {
			return nil, fmt.Errorf("%w: source %d: %w", errors.ErrInvalidInput, i+1, err)
		}

		if seen[src.URL] {
			return nil, fmt.Errorf("%w: source %d: duplicate url %s", errors.ErrInvalidInput, i+1, src.URL)
		}

		seen[src.URL] = true
		out = append(out, src)
	}

	return out, nil
}

func (e entry) toSource() (domain.Source, error) {
	feedURL := strings.TrimSpace(e.URL)

	parsed, err := url.Parse(feedURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return domain.Source{}, fmt.Errorf("invalid url %q", e.URL)
	}

	if e.Threshold != nil && (*e.Threshold < minThreshold || *e.Threshold > maxThreshold) {
		return domain.Source{}, fmt.Errorf("threshold %d out of range", *e.Threshold)
	}

	name := strings.TrimSpace(e.Name)
	if name == "" {
		name = parsed.Host
	}

	src := domain.Source{
		ID:           strings.TrimSpace(e.ID),
		Name:         name,
		URL:          feedURL,
		Active:       true,
		Threshold:    e.Threshold,
		IsGoogleNews: strings.HasSuffix(parsed.Hostname(), "news.google.com"),
	}

	if e.Active != nil {
		src.Active = *e.Active
	}

	if e.GoogleNews != nil {
		src.IsGoogleNews = *e.GoogleNews
	}

	return src, nil
}
