// Package htmlutils provides text cleanup for feed descriptions and article bodies.
//
// The package handles:
//   - Tag stripping with entity decoding
//   - Removal of script, style and navigation blocks
//   - Whitespace collapsing and rune-safe truncation
package htmlutils

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	tagRegex        = regexp.MustCompile(`<(/?)([a-zA-Z0-9-]+)([^>]*)>`)
	commentRegex    = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockRegex      = regexp.MustCompile(`(?is)<(script|style|nav|noscript|iframe)\b[^>]*>.*?</(script|style|nav|noscript|iframe)>`)
	spaceRunRegex   = regexp.MustCompile(`[ \t\f\v\r]+`)
	newlineRunRegex = regexp.MustCompile(`\n\s*\n+`)
)

// StripHTMLTags removes all HTML tags from text, keeping only the content.
// Script, style and navigation blocks are dropped along with their content.
func StripHTMLTags(text string) string {
	result := commentRegex.ReplaceAllString(text, "")
	result = blockRegex.ReplaceAllString(result, " ")
	result = tagRegex.ReplaceAllString(result, " ")
	result = html.UnescapeString(result)

	return CollapseWhitespace(result)
}

// CollapseWhitespace squeezes runs of spaces and blank lines.
func CollapseWhitespace(text string) string {
	text = spaceRunRegex.ReplaceAllString(text, " ")
	text = newlineRunRegex.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Truncate cuts text to at most maxRunes runes without splitting a character.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	runes := []rune(text)

	return string(runes[:maxRunes])
}

// LooksLikeHTML reports whether body appears to be an HTML document.
func LooksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 1024)]))

	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") ||
		strings.Contains(head, "<head") || strings.Contains(head, "<body")
}
