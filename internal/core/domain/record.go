package domain

import "time"

// Record is one row of the external store. Fields are merged key by key;
// a write never removes keys it does not mention.
type Record struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// String returns a string field or "" when absent or not a string.
func (r Record) String(field string) string {
	v, ok := r.Fields[field].(string)
	if !ok {
		return ""
	}

	return v
}

// Has reports whether the field is present.
func (r Record) Has(field string) bool {
	_, ok := r.Fields[field]

	return ok
}

// RecordFilter selects records for pull scans.
type RecordFilter struct {
	NonEmpty []string // Fields that must be present and non-empty
	Missing  []string // Fields that must be absent
	Limit    int
}

// Record field names written by the pipeline.
const (
	FieldURL              = "url"
	FieldLink             = "link"
	FieldTitle            = "title"
	FieldDescription      = "description"
	FieldFeedName         = "feed_name"
	FieldSource           = "source"
	FieldPublishedAt      = "published_at"
	FieldRelevanceScore   = "relevance_score"
	FieldIsPriority       = "is_priority"
	FieldScoringReasoning = "scoring_reasoning"
	FieldQueuedAt         = "queued_at"
	FieldResolvedURL      = "resolved_url"

	FieldArticleAuthor    = "article_author"
	FieldArticleTitle     = "article_title"
	FieldPublicationDate  = "publication_date"
	FieldPublisherName    = "publisher_name"
	FieldArticleSummary   = "article_summary"
	FieldSummarySignals   = "summary_signals"
	FieldKeyThemes        = "key_themes"
	FieldFearAngles       = "fear_angles"
	FieldGreedAngles      = "greed_angles"
	FieldEnvyAngles       = "envy_angles"
	FieldPrideAngles      = "pride_angles"
	FieldHopeAngles       = "hope_angles"
	FieldCredibleSources  = "credible_sources"
	FieldDataPoints       = "data_points"
	FieldResearchFindings = "research_findings"
	FieldKeyQuotes        = "key_quotes"
	FieldArticleKeywords  = "article_keywords"
	FieldExtractionModel  = "extraction_model"

	FieldSEOTargetKeywords   = "seo_target_keywords"
	FieldSEOLongTailKeywords = "seo_long_tail_keywords"
)
