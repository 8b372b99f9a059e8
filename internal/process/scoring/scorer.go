// Package scoring turns relevance judgements into admission decisions.
package scoring

import (
	"context"
	"fmt"

	"github.com/dealfanatics/rss-pipeline/internal/core/domain"
	"github.com/dealfanatics/rss-pipeline/internal/core/ports"
)

const (
	// DefaultThreshold is the admission threshold when a source has no override.
	DefaultThreshold = 60

	// DefaultPriorityThreshold flags items worth fast-tracking.
	DefaultPriorityThreshold = 70

	minScore = 0
	maxScore = 100
)

// Config holds scorer thresholds.
type Config struct {
	Threshold         int
	PriorityThreshold int
}

// Scorer decides admission from a judge's output and the threshold in force.
// It holds no state between calls; determinism follows from the judge.
type Scorer struct {
	judge             ports.Judge
	threshold         int
	priorityThreshold int
}

// New creates a Scorer. Zero thresholds fall back to the defaults.
func New(judge ports.Judge, cfg Config) *Scorer {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}

	if cfg.PriorityThreshold <= 0 {
		cfg.PriorityThreshold = DefaultPriorityThreshold
	}

	return &Scorer{judge: judge, threshold: cfg.Threshold, priorityThreshold: cfg.PriorityThreshold}
}

// Score judges item and applies src's threshold. Errors come only from the judge.
func (s *Scorer) Score(ctx context.Context, item domain.CandidateItem, src domain.Source) (domain.AdmissionDecision, error) {
	j, err := s.judge.Judge(ctx, item)
	if err != nil {
		return domain.AdmissionDecision{}, fmt.Errorf("judge item: %w", err)
	}

	return Decide(j, src.ThresholdOr(s.threshold), s.priorityThreshold), nil
}

// Decide clamps the judged score to [0,100] and compares it to threshold.
func Decide(j domain.Judgement, threshold, priorityThreshold int) domain.AdmissionDecision {
	score := clamp(j.Score)

	return domain.AdmissionDecision{
		Accept:    score >= threshold,
		Score:     score,
		Threshold: threshold,
		Priority:  score >= threshold && score >= priorityThreshold,
		Reasoning: j.Reasoning,
	}
}

func clamp(score int) int {
	switch {
	case score < minScore:
		return minScore
	case score > maxScore:
		return maxScore
	default:
		return score
	}
}
