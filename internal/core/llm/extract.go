package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/errors"
	"github.com/dealfanatics/rss-pipeline/internal/platform/htmlutils"
	"github.com/dealfanatics/rss-pipeline/internal/platform/observability"
)

const (
	extractTemperature  = 0.1
	judgeDescriptionCap = 500
	judgeTitleCap       = 200
	rawLogLimit         = 2000
	articlePrefix       = "Article "

	statusOK          = "ok"
	statusUnparseable = "unparseable"
	statusError       = "error"
)

type rawExtraction struct {
	Author           string          `json:"article_author"`
	Title            string          `json:"article_title"`
	AltTitle         string          `json:"title"`
	PublicationDate  string          `json:"publication_date"`
	PublisherName    string          `json:"publisher_name"`
	Summary          json.RawMessage `json:"article_summary"`
	KeyThemes        json.RawMessage `json:"key_themes"`
	FearAngles       json.RawMessage `json:"fear_angles"`
	GreedAngles      json.RawMessage `json:"greed_angles"`
	EnvyAngles       json.RawMessage `json:"envy_angles"`
	PrideAngles      json.RawMessage `json:"pride_angles"`
	HopeAngles       json.RawMessage `json:"hope_angles"`
	CredibleSources  json.RawMessage `json:"credible_sources"`
	DataPoints       json.RawMessage `json:"data_points"`
	ResearchFindings json.RawMessage `json:"research_findings"`
	KeyQuotes        json.RawMessage `json:"key_quotes"`
	Keywords         json.RawMessage `json:"article_keywords"`
}

type rawSummary struct {
	Signals []string `json:"signals"`
	Summary string   `json:"summary"`
}

// Extract runs structured extraction over one article. A response that is
// not the expected JSON shape is ErrUnexpectedResponse; the raw content is
// logged so the failure can be inspected.
func (c *Client) Extract(ctx context.Context, req domain.ExtractionRequest) (domain.ExtractionResult, error) {
	prompt := fmt.Sprintf(extractionPromptTemplate, req.Score, req.Reasoning, req.URL, req.Source, req.Text)

	content, err := c.complete(ctx, taskExtract, extractionSystemPrompt, prompt, extractTemperature)
	if err != nil {
		observability.ExtractionRequests.WithLabelValues(statusError).Inc()

		return domain.ExtractionResult{}, err
	}

	result, err := parseExtraction(content)
	if err != nil {
		observability.ExtractionRequests.WithLabelValues(statusUnparseable).Inc()
		c.logger.Warn().
			Err(err).
			Str("url", req.URL).
			Str("raw_response", htmlutils.Truncate(content, rawLogLimit)).
			Msg("unparseable extraction response")

		return domain.ExtractionResult{}, err
	}

	observability.ExtractionRequests.WithLabelValues(statusOK).Inc()

	return result, nil
}

func parseExtraction(content string) (domain.ExtractionResult, error) {
	var raw rawExtraction
	if err := json.Unmarshal([]byte(extractJSON(content)), &raw); err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("%w: decode extraction: %w", errors.ErrUnexpectedResponse, err)
	}

	summary := parseSummary(raw.Summary)

	result := domain.ExtractionResult{
		Author:           strings.TrimSpace(raw.Author),
		Title:            strings.TrimSpace(firstNonEmpty(raw.Title, raw.AltTitle)),
		PublicationDate:  strings.TrimSpace(raw.PublicationDate),
		PublisherName:    strings.TrimSpace(raw.PublisherName),
		Summary:          summary.Summary,
		SummarySignals:   summary.Signals,
		KeyThemes:        parseThemes(raw.KeyThemes),
		FearAngles:       flattenList(raw.FearAngles),
		GreedAngles:      flattenList(raw.GreedAngles),
		EnvyAngles:       flattenList(raw.EnvyAngles),
		PrideAngles:      flattenList(raw.PrideAngles),
		HopeAngles:       flattenList(raw.HopeAngles),
		CredibleSources:  flattenList(raw.CredibleSources),
		DataPoints:       flattenList(raw.DataPoints),
		ResearchFindings: flattenList(raw.ResearchFindings),
		KeyQuotes:        flattenList(raw.KeyQuotes),
		Keywords:         splitKeywords(raw.Keywords),
	}

	if result.Summary == "" && result.Title == "" && len(result.KeyThemes) == 0 {
		return domain.ExtractionResult{}, fmt.Errorf("%w: extraction has no summary, title or themes", errors.ErrUnexpectedResponse)
	}

	if result.Author == "" {
		result.Author = result.PublisherName
	}

	return result, nil
}

func parseSummary(raw json.RawMessage) rawSummary {
	if len(raw) == 0 {
		return rawSummary{}
	}

	var s rawSummary
	if err := json.Unmarshal(raw, &s); err == nil {
		s.Summary = strings.TrimSpace(s.Summary)

		return s
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return rawSummary{Summary: strings.TrimSpace(text)}
	}

	return rawSummary{}
}

func parseThemes(raw json.RawMessage) []domain.Theme {
	if len(raw) == 0 {
		return nil
	}

	var themes []domain.Theme
	if err := json.Unmarshal(raw, &themes); err == nil {
		return themes
	}

	flat := flattenList(raw)
	themes = make([]domain.Theme, 0, len(flat))

	for _, t := range flat {
		themes = append(themes, domain.Theme{Theme: t})
	}

	return themes
}

type judgeResponse struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Judge scores one item against the marketing rubric.
func (c *Client) Judge(ctx context.Context, item domain.CandidateItem) (domain.Judgement, error) {
	prompt := fmt.Sprintf(judgePromptTemplate,
		htmlutils.Truncate(item.Title, judgeTitleCap),
		htmlutils.Truncate(item.Description, judgeDescriptionCap))

	content, err := c.complete(ctx, taskJudge, judgeSystemPrompt, prompt, 0)
	if err != nil {
		return domain.Judgement{}, err
	}

	var resp judgeResponse
	if err := json.Unmarshal([]byte(extractJSON(content)), &resp); err != nil {
		c.logger.Warn().Err(err).Str("raw_response", htmlutils.Truncate(content, rawLogLimit)).Msg("unparseable judge response")

		return domain.Judgement{}, fmt.Errorf("%w: decode judgement: %w", errors.ErrUnexpectedResponse, err)
	}

	return domain.Judgement{
		Score:     int(resp.Score + 0.5),
		Reasoning: stripArticlePrefix(strings.TrimSpace(resp.Reasoning)),
	}, nil
}

// stripArticlePrefix removes a leading "Article N: " label.
func stripArticlePrefix(reasoning string) string {
	if !strings.HasPrefix(reasoning, articlePrefix) {
		return reasoning
	}

	if _, rest, ok := strings.Cut(reasoning, ": "); ok {
		return rest
	}

	return reasoning
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}

	return ""
}
