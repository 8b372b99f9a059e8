// Package keywords parses extracted article keywords and calls the
// keyword-intelligence service for search metrics.
package keywords

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxPerRecord caps the keywords taken from one record.
	MaxPerRecord = 10

	minKeywordRunes = 2

	// MinBatchSize and MaxBatchSize bound one metrics request.
	MinBatchSize = 10
	MaxBatchSize = 20
)

// Parse splits a pipe-delimited keyword string and sanitizes each entry to
// letters, digits, spaces and hyphens. Entries shorter than two characters
// and case-insensitive repeats are dropped; at most MaxPerRecord are kept.
func Parse(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	seen := make(map[string]bool)
	out := make([]string, 0, MaxPerRecord)

	for _, part := range strings.Split(raw, "|") {
		kw := Sanitize(part)
		if utf8.RuneCountInString(kw) < minKeywordRunes {
			continue
		}

		lower := strings.ToLower(kw)
		if seen[lower] {
			continue
		}

		seen[lower] = true
		out = append(out, kw)

		if len(out) == MaxPerRecord {
			break
		}
	}

	return out
}

// Sanitize normalizes kw to NFKC and removes everything except word
// characters, whitespace and hyphens. Runs of whitespace collapse to one space.
func Sanitize(kw string) string {
	kw = norm.NFKC.String(kw)

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-':
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, kw)

	return strings.Join(strings.Fields(cleaned), " ")
}

// ClampBatchSize keeps a configured batch size within MinBatchSize..MaxBatchSize.
func ClampBatchSize(n int) int {
	return min(max(n, MinBatchSize), MaxBatchSize)
}

// Chunk splits keywords into consecutive batches of at most size entries.
func Chunk(keywords []string, size int) [][]string {
	if size <= 0 || len(keywords) == 0 {
		return nil
	}

	batches := make([][]string, 0, (len(keywords)+size-1)/size)

	for start := 0; start < len(keywords); start += size {
		end := min(start+size, len(keywords))
		batches = append(batches, keywords[start:end])
	}

	return batches
}
