package scoring

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
)

// Rubric weights. They sum to 100.
const (
	maxEmotional    = 30
	maxUniversality = 25
	maxAuthority    = 20
	maxDepth        = 15
	maxAlignment    = 10

	pointsEmotional    = 6
	pointsUniversality = 5
	pointsAuthority    = 5
	pointsAlignment    = 5

	depthLongWords   = 40
	depthMediumWords = 20
	depthShortWords  = 8
	depthMedium      = 10
	depthShort       = 5
)

// Rubric lists the terms each scoring dimension looks for.
type Rubric struct {
	Emotional    []string
	Universality []string
	Authority    []string
	Alignment    []string
}

// DefaultRubric targets consumer-finance and shopping coverage.
func DefaultRubric() Rubric {
	return Rubric{
		Emotional: []string{
			"fear", "afraid", "warning", "crisis", "risk", "scam", "lose", "losing", "worried",
			"save", "savings", "rich", "wealth", "profit", "bonus", "free",
			"jealous", "envy", "exclusive", "elite", "luxury",
			"proud", "pride", "success", "achievement", "win",
			"hope", "dream", "future", "opportunity", "relief",
		},
		Universality: []string{
			"consumer", "consumers", "shoppers", "families", "household", "households",
			"price", "prices", "cost", "costs", "inflation", "budget", "money", "americans", "everyone",
		},
		Authority: []string{
			"study", "survey", "report", "research", "researchers", "data", "analysis",
			"percent", "economists", "experts", "official", "according",
		},
		Alignment: []string{
			"deal", "deals", "discount", "discounts", "coupon", "coupons", "sale", "sales",
			"retail", "retailer", "retailers", "shopping", "bargain",
		},
	}
}

// HeuristicJudge scores items on the five rubric dimensions without any
// network call. Identical input always yields the identical judgement.
type HeuristicJudge struct {
	emotional    map[string]struct{}
	universality map[string]struct{}
	authority    map[string]struct{}
	alignment    map[string]struct{}
}

// NewHeuristicJudge builds a judge from rubric term lists.
func NewHeuristicJudge(r Rubric) *HeuristicJudge {
	return &HeuristicJudge{
		emotional:    toSet(r.Emotional),
		universality: toSet(r.Universality),
		authority:    toSet(r.Authority),
		alignment:    toSet(r.Alignment),
	}
}

// Judge scores the item's title and description.
func (h *HeuristicJudge) Judge(_ context.Context, item domain.CandidateItem) (domain.Judgement, error) {
	words := tokenize(item.Title + " " + item.Description)
	if len(words) == 0 {
		return domain.Judgement{Score: 0, Reasoning: "empty title and description"}, nil
	}

	emotional := capped(countHits(words, h.emotional)*pointsEmotional, maxEmotional)
	universality := capped(countHits(words, h.universality)*pointsUniversality, maxUniversality)
	authority := capped((countHits(words, h.authority)+countNumbers(words))*pointsAuthority, maxAuthority)
	depth := depthScore(tokenize(item.Description))
	alignment := capped(countHits(words, h.alignment)*pointsAlignment, maxAlignment)

	return domain.Judgement{
		Score: emotional + universality + authority + depth + alignment,
		Reasoning: fmt.Sprintf("emotional=%d universality=%d authority=%d depth=%d alignment=%d",
			emotional, universality, authority, depth, alignment),
	}, nil
}

func depthScore(descriptionWords []string) int {
	switch n := len(descriptionWords); {
	case n >= depthLongWords:
		return maxDepth
	case n >= depthMediumWords:
		return depthMedium
	case n >= depthShortWords:
		return depthShort
	default:
		return 0
	}
}

// countHits counts distinct terms present in words.
func countHits(words []string, terms map[string]struct{}) int {
	seen := make(map[string]struct{})

	for _, w := range words {
		if _, ok := terms[w]; ok {
			seen[w] = struct{}{}
		}
	}

	return len(seen)
}

func countNumbers(words []string) int {
	n := 0

	for _, w := range words {
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			n++
		}
	}

	return n
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}

	return set
}

func capped(v, limit int) int {
	if v > limit {
		return limit
	}

	return v
}
