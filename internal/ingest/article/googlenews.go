package article

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	googleArticlesSegment = "articles"
	googleSignatureAttr   = "data-n-a-sg"
	googleRSSArticlesPath = "/rss/articles/"
)

// resolveGoogleNews turns a Google News redirect link into the publisher URL.
// Resolution is best effort: on any failure the original link is returned and
// the article fetch proceeds against it.
func (f *Fetcher) resolveGoogleNews(ctx context.Context, link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}

	code := articleCode(u.Path)
	if code == "" {
		return link
	}

	resp, err := f.get(ctx, link)
	if err != nil {
		return link
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()

	if err != nil {
		return link
	}

	if resp.Request != nil && resp.Request.URL != nil && resp.Request.URL.Host != u.Host {
		return resp.Request.URL.String()
	}

	if doc.Find("[" + googleSignatureAttr + "]").Length() == 0 {
		if href := firstExternalLink(doc, u.Host); href != "" {
			return href
		}

		return link
	}

	decodeURL := u.Scheme + "://" + u.Host + googleRSSArticlesPath + code

	decoded, err := f.get(ctx, decodeURL)
	if err != nil {
		return link
	}
	decoded.Body.Close()

	if decoded.Request != nil && decoded.Request.URL != nil && decoded.Request.URL.Host != u.Host {
		return decoded.Request.URL.String()
	}

	return link
}

// articleCode returns the path segment after "articles", or "".
func articleCode(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == googleArticlesSegment && i+1 < len(parts) {
			return parts[i+1]
		}
	}

	return ""
}

func firstExternalLink(doc *goquery.Document, googleHost string) string {
	var found string

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if !strings.HasPrefix(href, "http") {
			return true
		}

		parsed, err := url.Parse(href)
		if err != nil || parsed.Host == googleHost || strings.HasSuffix(parsed.Host, "google.com") {
			return true
		}

		found = href

		return false
	})

	return found
}
