package domain

import "strings"

// Theme is one marketing theme found in an article.
type Theme struct {
	Theme         string `json:"theme"`
	MarketingHook string `json:"marketing_hook"`
	Evidence      string `json:"evidence"`
}

// ExtractionRequest is the input of one extraction call.
type ExtractionRequest struct {
	URL       string
	Source    string
	Score     int
	Reasoning string
	Text      string
}

// ExtractionResult is the structured output of the extraction service.
type ExtractionResult struct {
	Author           string   `json:"article_author"`
	Title            string   `json:"title"`
	PublicationDate  string   `json:"publication_date"`
	PublisherName    string   `json:"publisher_name"`
	Summary          string   `json:"summary"`
	SummarySignals   []string `json:"signals"`
	KeyThemes        []Theme  `json:"key_themes"`
	FearAngles       []string `json:"fear_angles"`
	GreedAngles      []string `json:"greed_angles"`
	EnvyAngles       []string `json:"envy_angles"`
	PrideAngles      []string `json:"pride_angles"`
	HopeAngles       []string `json:"hope_angles"`
	CredibleSources  []string `json:"credible_sources"`
	DataPoints       []string `json:"data_points"`
	ResearchFindings []string `json:"research_findings"`
	KeyQuotes        []string `json:"key_quotes"`
	Keywords         []string `json:"article_keywords"`
}

// Fields flattens the result into record fields. Lists are joined with
// newlines and keywords with "|" so the record stays readable in table UIs.
func (r ExtractionResult) Fields() map[string]any {
	themes := make([]string, 0, len(r.KeyThemes))
	for _, t := range r.KeyThemes {
		themes = append(themes, t.Theme+": "+t.MarketingHook+" ("+t.Evidence+")")
	}

	return map[string]any{
		FieldArticleAuthor:    r.Author,
		FieldArticleTitle:     r.Title,
		FieldPublicationDate:  r.PublicationDate,
		FieldPublisherName:    r.PublisherName,
		FieldArticleSummary:   r.Summary,
		FieldSummarySignals:   joinLines(r.SummarySignals),
		FieldKeyThemes:        joinLines(themes),
		FieldFearAngles:       joinLines(r.FearAngles),
		FieldGreedAngles:      joinLines(r.GreedAngles),
		FieldEnvyAngles:       joinLines(r.EnvyAngles),
		FieldPrideAngles:      joinLines(r.PrideAngles),
		FieldHopeAngles:       joinLines(r.HopeAngles),
		FieldCredibleSources:  joinLines(r.CredibleSources),
		FieldDataPoints:       joinLines(r.DataPoints),
		FieldResearchFindings: joinLines(r.ResearchFindings),
		FieldKeyQuotes:        joinLines(r.KeyQuotes),
		FieldArticleKeywords:  strings.Join(r.Keywords, "|"),
	}
}

func joinLines(values []string) string {
	return strings.Join(values, "\n")
}

// KeywordMetric is search-intelligence data for one keyword.
type KeywordMetric struct {
	Keyword          string  `json:"keyword"`
	Volume           int64   `json:"volume"`
	Competition      string  `json:"competition"`
	CompetitionIndex int     `json:"competition_index"`
	CPCLow           float64 `json:"cpc_low"`
	CPCHigh          float64 `json:"cpc_high"`
}

// Article is fetched article content ready for extraction.
type Article struct {
	URL    string // Final URL after redirects and Google News decoding
	Title  string
	Byline string
	Text   string // Plain text, capped
}
