// Package scoring computes the 0-100 quality score of a ValidationResult.
// Score is pure: the same result always yields the same score.
package scoring

import (
	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/rubric"
)

type Engine struct {
	bands rubric.Scoring
}

func New(bands rubric.Scoring) *Engine {
	return &Engine{bands: bands}
}

// Score adds the factor points and subtracts the issue and warning penalties.
func (e *Engine) Score(r models.ValidationResult) models.QualityScore {
	b := e.bands
	sub := models.SubScores{
		WordCount:   rubric.Points(b.WordCount, r.WordCount),
		Sections:    rubric.Points(b.Sections, r.SectionScore),
		Images:      rubric.Points(b.Images, r.UniqueImageCount),
		Sources:     rubric.Points(b.Sources, r.SourceLinks),
		Blockquotes: rubric.Points(b.Blockquotes, r.BlockquoteCount),
		Tables:      rubric.Points(b.Tables, r.TableCount),
		TopicFocus:  clamp(r.TopicFocusScore, 0, b.TopicFocusMax),
		Specificity: r.SpecificityScore * b.SpecificityMultiplier,
	}
	if r.HasCDNImages {
		sub.Bonus += b.CDNBonus
	}
	if len(r.Issues) == 0 {
		sub.Bonus += b.CleanBonus
	}

	penalty := e.Penalty(r)
	value := clamp(sub.Total()-penalty, 0, 100)
	return models.QualityScore{
		Value:     value,
		Tier:      e.TierFor(value),
		SubScores: sub,
		Penalty:   penalty,
	}
}

// Penalty is the total deduction for the result's issues and warnings.
func (e *Engine) Penalty(r models.ValidationResult) int {
	p := e.bands.Penalties
	total := 0
	for _, is := range r.Issues {
		switch is.Kind {
		case models.IssueGeneric, models.IssueContamination:
			total += p.Severe
		case models.IssueEncoding, models.IssueBrokenLink:
			total += p.Encoding
		default:
			total += p.Other
		}
	}
	return total + p.Warning*len(r.Warnings)
}

// TierFor maps a score to its quality tier.
func (e *Engine) TierFor(score int) models.Tier {
	t := e.bands.Tiers
	switch {
	case score >= t.Excellent:
		return models.TierExcellent
	case score >= t.Good:
		return models.TierGood
	case score >= t.Acceptable:
		return models.TierAcceptable
	default:
		return models.TierNeedsImprovement
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
