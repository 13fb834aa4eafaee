package validator

import (
	"fmt"

	"github.com/dtnitsch/content-gate/models"
)

// Missing derives the remediation targets of a result. Critical categories block
// the gate; warning categories only cost points.
func Missing(cfg models.Config, res models.ValidationResult) []models.MissingCategory {
	var out []models.MissingCategory
	add := func(cat string, sev models.Severity, format string, args ...any) {
		out = append(out, models.MissingCategory{Category: cat, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if res.SourceLinks < cfg.MinSources || !res.HasSourcesHeader {
		add(models.CategoryCitations, models.SeverityCritical, "%d of %d source links", res.SourceLinks, cfg.MinSources)
	}
	if res.StatisticCount < cfg.MinStatistics {
		add(models.CategoryStats, models.SeverityWarning, "%d of %d statistics", res.StatisticCount, cfg.MinStatistics)
	}
	if res.BlockquoteCount < cfg.MinBlockquotes {
		add(models.CategoryQuotes, models.SeverityWarning, "%d of %d expert quotes", res.BlockquoteCount, cfg.MinBlockquotes)
	}
	if res.WordCount < cfg.MinWords {
		add(models.CategoryWordCount, models.SeverityCritical, "%d of %d words", res.WordCount, cfg.MinWords)
	}
	if res.UniqueImageCount < cfg.MinImages {
		add(models.CategoryImages, models.SeverityWarning, "%d of %d images", res.UniqueImageCount, cfg.MinImages)
	}
	if res.SectionScore < cfg.MinSections {
		add(models.CategoryStructure, models.SeverityCritical, "%d of %d sections", res.SectionScore, cfg.MinSections)
	}
	return out
}

// NeedsSources reports whether any missing category can only be satisfied by a source bank
// and is severe enough to block the gate.
func NeedsSources(missing []models.MissingCategory) bool {
	for _, m := range missing {
		if m.Severity != models.SeverityCritical {
			continue
		}
		for _, c := range models.SourceCategories {
			if m.Category == c {
				return true
			}
		}
	}
	return false
}
