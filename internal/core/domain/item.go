// Package domain holds the types that flow between pipeline stages.
package domain

import "time"

// CandidateItem is one discovered unit of content. It is immutable once scored.
type CandidateItem struct {
	URL          string    `json:"url"`         // Canonical URL
	Link         string    `json:"link"`        // Link as published by the feed
	Title        string    `json:"title"`       // Entry title, HTML stripped
	Description  string    `json:"description"` // Short description or summary, HTML stripped
	SourceID     string    `json:"source_id"`
	SourceName   string    `json:"feed_name"`
	SourceURL    string    `json:"source"`
	IsGoogleNews bool      `json:"is_google_news"`
	PublishedAt  time.Time `json:"published_at,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Judgement is the raw output of a relevance judge before thresholding.
type Judgement struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning,omitempty"`
}

// AdmissionDecision is derived from a score and the threshold in force.
// It is never persisted on its own.
type AdmissionDecision struct {
	Accept    bool   `json:"accept"`
	Score     int    `json:"score"`
	Threshold int    `json:"threshold"`
	Priority  bool   `json:"is_priority"`
	Reasoning string `json:"scoring_reasoning,omitempty"`
}

// DedupKey is a stable fingerprint of an item's canonical URL.
type DedupKey string

// String returns the key as a plain string.
func (k DedupKey) String() string {
	return string(k)
}

// ArticlePayload is the queue payload for one admitted item.
type ArticlePayload struct {
	Item     CandidateItem     `json:"item"`
	Key      DedupKey          `json:"dedup_key"`
	Decision AdmissionDecision `json:"decision"`
	QueuedAt time.Time         `json:"queued_at"`
}
