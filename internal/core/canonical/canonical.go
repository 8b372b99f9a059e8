// Package canonical normalizes item URLs and derives dedup keys from them.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
	portHTTP    = ":80"
	portHTTPS   = ":443"
	wwwPrefix   = "www."
	wildcard    = "*"
)

// DefaultTrackingParams are the query parameters removed by default.
// A trailing "*" matches any parameter with that prefix.
var DefaultTrackingParams = []string{
	"utm_*",
	"fbclid",
	"gclid",
	"dclid",
	"msclkid",
	"mc_cid",
	"mc_eid",
	"igshid",
	"yclid",
	"_hsenc",
	"_hsmi",
	"ref_src",
}

// Rules configures normalization.
type Rules struct {
	StripParams   []string // Parameter names or "prefix*" patterns to drop
	StripAllQuery bool     // Drop the whole query string
	StripWWW      bool     // Treat www.example.com and example.com as the same host
}

// DefaultRules strips tracking parameters only.
func DefaultRules() Rules {
	return Rules{StripParams: DefaultTrackingParams}
}

// Normalizer canonicalizes URLs under a fixed rule set.
type Normalizer struct {
	rules    Rules
	exact    map[string]struct{}
	prefixes []string
}

// New builds a Normalizer. Parameter names are matched case-insensitively.
func New(rules Rules) *Normalizer {
	n := &Normalizer{rules: rules, exact: make(map[string]struct{})}

	for _, p := range rules.StripParams {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}

		if strings.HasSuffix(p, wildcard) {
			n.prefixes = append(n.prefixes, strings.TrimSuffix(p, wildcard))

			continue
		}

		n.exact[p] = struct{}{}
	}

	return n
}

// Canonicalize returns the canonical form of rawURL: lowercase scheme and host,
// no default port, no fragment, tracking parameters removed, remaining query
// sorted, and no trailing slash.
func (n *Normalizer) Canonicalize(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrInvalidURL, err)
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", errors.ErrInvalidURL, rawURL)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != schemeHTTP && parsed.Scheme != schemeHTTPS {
		return "", fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidURL, parsed.Scheme)
	}

	parsed.Host = n.normalizeHost(parsed.Host, parsed.Scheme)
	parsed.User = nil
	parsed.Fragment = ""
	parsed.RawFragment = ""

	if err := trimPath(parsed); err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrInvalidURL, err)
	}

	parsed.RawQuery = n.normalizeQuery(parsed.Query())

	return parsed.String(), nil
}

// trimPath drops trailing slashes while keeping escaped separators such as
// %2F distinct from literal ones.
func trimPath(u *url.URL) error {
	escaped := strings.TrimRight(u.EscapedPath(), "/")

	path, err := url.PathUnescape(escaped)
	if err != nil {
		return fmt.Errorf("unescape path: %w", err)
	}

	u.Path = path
	u.RawPath = ""

	if u.EscapedPath() != escaped {
		u.RawPath = escaped
	}

	return nil
}

// Key returns the dedup key for rawURL.
func (n *Normalizer) Key(rawURL string) (domain.DedupKey, string, error) {
	canonicalURL, err := n.Canonicalize(rawURL)
	if err != nil {
		return "", "", err
	}

	return KeyOf(canonicalURL), canonicalURL, nil
}

// KeyOf hashes an already canonical URL.
func KeyOf(canonicalURL string) domain.DedupKey {
	sum := sha256.Sum256([]byte(canonicalURL))

	return domain.DedupKey(hex.EncodeToString(sum[:]))
}

func (n *Normalizer) normalizeHost(host, scheme string) string {
	host = strings.ToLower(host)

	switch {
	case scheme == schemeHTTP && strings.HasSuffix(host, portHTTP):
		host = strings.TrimSuffix(host, portHTTP)
	case scheme == schemeHTTPS && strings.HasSuffix(host, portHTTPS):
		host = strings.TrimSuffix(host, portHTTPS)
	}

	name, port := host, ""
	if i := strings.LastIndex(host, ":"); i > strings.LastIndex(host, "]") {
		name, port = host[:i], host[i:]
	}

	if ascii, err := idna.Lookup.ToASCII(name); err == nil {
		name = ascii
	}

	if n.rules.StripWWW {
		name = strings.TrimPrefix(name, wwwPrefix)
	}

	return name + port
}

func (n *Normalizer) normalizeQuery(query url.Values) string {
	if n.rules.StripAllQuery || len(query) == 0 {
		return ""
	}

	for name := range query {
		if n.isTracking(name) {
			query.Del(name)
		}
	}

	// Encode sorts by key.
	return query.Encode()
}

func (n *Normalizer) isTracking(name string) bool {
	name = strings.ToLower(name)
	if _, ok := n.exact[name]; ok {
		return true
	}

	for _, prefix := range n.prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}
