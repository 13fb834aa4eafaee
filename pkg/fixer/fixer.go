// Package fixer rewrites article bodies to clear the defects the validator reports.
// Every step is an HTML to HTML function that returns its input unchanged when
// there is nothing to do, so running the pipeline twice is the same as running it once.
package fixer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/rubric"
	"github.com/dtnitsch/content-gate/pkg/validator"
)

// ErrNeedsSources is returned when a critical gap can only be closed with source-bank data
// and no entry is available for the article's topic.
var ErrNeedsSources = errors.New("source data required")

// SourceLookup finds source-bank material for an article title.
type SourceLookup interface {
	Lookup(title string) (models.TopicSources, bool)
}

// Outcome is the result of one pipeline run.
type Outcome struct {
	HTML         string
	Applied      []string // steps that changed the body, in order
	NeedsSources []string // source categories that could not be filled
}

// Changed reports whether any step modified the body.
func (o Outcome) Changed() bool {
	return len(o.Applied) > 0
}

type Fixer struct {
	cfg    models.Config
	tables rubric.Tables
	bank   SourceLookup
	logger *slog.Logger
}

type Option func(*Fixer)

func WithLogger(l *slog.Logger) Option {
	return func(f *Fixer) {
		if l != nil {
			f.logger = l
		}
	}
}

// New builds a fixer. A nil bank means no source data is available.
func New(cfg models.Config, tables rubric.Tables, bank SourceLookup, opts ...Option) *Fixer {
	f := &Fixer{
		cfg:    cfg,
		tables: tables,
		bank:   bank,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type step struct {
	name  string
	apply func(body string) (string, error)
}

// Fix runs the pipeline over the article body. res is the validation of the body
// before fixing; it decides which source categories are missing.
// When a critical source gap cannot be filled the partially fixed Outcome is
// returned together with ErrNeedsSources.
func (f *Fixer) Fix(a models.Article, res models.ValidationResult) (Outcome, error) {
	missing := validator.Missing(f.cfg, res)
	topic := Topic(a.Title)
	out := Outcome{HTML: a.BodyHTML}

	steps := []step{
		{"decode_encoding", DecodeEncoding},
		{"repair_links", func(b string) (string, error) { return RepairLinks(b), nil }},
		{"remove_off_topic", func(b string) (string, error) { return RemoveOffTopic(b, a.Title, f.tables), nil }},
		{"strip_generic", func(b string) (string, error) { return StripGeneric(b, f.tables.GenericPhrases) }},
		{"normalize_citations", NormalizeCitations},
		{"strip_years", f.stripYears},
		{"ensure_opening", func(b string) (string, error) { return EnsureOpening(b, topic, f.cfg, f.tables.Opening) }},
		{"ensure_glossary", func(b string) (string, error) { return EnsureGlossary(b, a.Title, f.tables) }},
		{"expand", func(b string) (string, error) { return Expand(b, topic, f.cfg.MinWords, f.tables) }},
		{"inject_sources", func(b string) (string, error) {
			needed := sourceGaps(missing)
			if len(needed) == 0 {
				return b, nil
			}
			src, ok := f.lookup(a.Title)
			if !ok {
				out.NeedsSources = needed
				return b, nil
			}
			return InjectSources(b, src)
		}},
		// Bank statistics and quotes may carry years of their own.
		{"strip_injected_years", f.stripYears},
		// Ids and link attributes go last so injected sections and links get them too.
		{"ensure_heading_ids", EnsureHeadingIDs},
		{"enforce_link_rel", func(b string) (string, error) { return EnforceLinkRel(b, f.cfg.SiteHost) }},
	}

	for _, s := range steps {
		next, err := s.apply(out.HTML)
		if err != nil {
			return out, fmt.Errorf("failed to %s: %w", s.name, err)
		}
		if next != out.HTML {
			out.Applied = append(out.Applied, s.name)
			out.HTML = next
		}
	}

	f.logger.Debug("fix pipeline finished",
		"article_id", a.ID,
		"applied", out.Applied,
		"needs_sources", out.NeedsSources,
	)

	if len(out.NeedsSources) > 0 && validator.NeedsSources(missing) {
		return out, ErrNeedsSources
	}
	return out, nil
}

func (f *Fixer) stripYears(body string) (string, error) {
	if !f.cfg.StrictYears {
		return body, nil
	}
	return StripYears(body)
}

func (f *Fixer) lookup(title string) (models.TopicSources, bool) {
	if f.bank == nil {
		return models.TopicSources{}, false
	}
	src, ok := f.bank.Lookup(title)
	if !ok || src.Empty() {
		return models.TopicSources{}, false
	}
	return src, true
}

// sourceGaps lists the missing categories only a source bank can fill.
func sourceGaps(missing []models.MissingCategory) []string {
	var out []string
	for _, m := range missing {
		for _, c := range models.SourceCategories {
			if m.Category == c {
				out = append(out, c)
			}
		}
	}
	return out
}
