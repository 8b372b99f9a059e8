package mocks

import "errors"

var (
	// ErrFeedNotFound is returned when no items are scripted for a source.
	ErrFeedNotFound = errors.New("feed not scripted")

	// ErrArticleNotFound is returned when no article is scripted for a URL.
	ErrArticleNotFound = errors.New("article not scripted")
)
