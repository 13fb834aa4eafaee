// Package gate decides whether a validated article may be published.
// It only classifies; content is never modified here.
package gate

import (
	"fmt"

	"github.com/dtnitsch/content-gate/models"
)

type Gate struct {
	cfg models.Config
}

func New(cfg models.Config) *Gate {
	return &Gate{cfg: cfg}
}

// Evaluate runs the six checks. Pass needs MinPassingChecks of them; Publishable
// additionally needs no content-policy issue at all.
func (g *Gate) Evaluate(r models.ValidationResult) models.GateDecision {
	generic := r.IssuesOf(models.IssueGeneric)
	policy := r.IssuesOf(models.IssueContamination, models.IssueOffTopic, models.IssueDrift)

	checks := []models.GateCheck{
		{
			Name:   models.CheckStructure,
			Pass:   r.SectionScore >= g.cfg.MinSections,
			Detail: fmt.Sprintf("%d sections, need %d", r.SectionScore, g.cfg.MinSections),
		},
		{
			Name:   models.CheckWordCount,
			Pass:   r.WordCount >= g.cfg.MinWords && (g.cfg.MaxWords <= 0 || r.WordCount <= g.cfg.MaxWords),
			Detail: fmt.Sprintf("%d words, want %d-%d", r.WordCount, g.cfg.MinWords, g.cfg.MaxWords),
		},
		{
			Name:   models.CheckGeneric,
			Pass:   len(generic) == 0,
			Detail: fmt.Sprintf("%d generic phrases", len(r.GenericPhrases)),
		},
		{
			Name:   models.CheckContamination,
			Pass:   len(policy) == 0,
			Detail: fmt.Sprintf("%d contamination, off-topic or drift issues", len(policy)),
		},
		{
			Name:   models.CheckImages,
			Pass:   r.UniqueImageCount >= g.cfg.MinImages,
			Detail: fmt.Sprintf("%d unique images, need %d", r.UniqueImageCount, g.cfg.MinImages),
		},
		{
			Name:   models.CheckSources,
			Pass:   r.SourceLinks >= g.cfg.MinSources && r.HasSourcesHeader,
			Detail: fmt.Sprintf("%d source links, need %d", r.SourceLinks, g.cfg.MinSources),
		},
	}

	d := models.GateDecision{Checks: checks, Total: len(checks)}
	for _, c := range checks {
		if c.Pass {
			d.Passed++
		}
	}
	d.Pass = d.Passed >= g.cfg.MinPassingChecks
	d.Blockers = append(generic, policy...)
	d.Publishable = d.Pass && len(d.Blockers) == 0
	return d
}
