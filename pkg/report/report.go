// Package report assembles the validator, scoring engine and gate into one
// machine-readable audit record per article.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/gate"
	"github.com/dtnitsch/content-gate/pkg/rubric"
	"github.com/dtnitsch/content-gate/pkg/scoring"
	"github.com/dtnitsch/content-gate/pkg/validator"
)

type Evaluator struct {
	cfg       models.Config
	validator *validator.Validator
	scorer    *scoring.Engine
	gate      *gate.Gate
}

func New(cfg models.Config, tables rubric.Tables, opts ...validator.Option) *Evaluator {
	return &Evaluator{
		cfg:       cfg,
		validator: validator.New(cfg, tables, opts...),
		scorer:    scoring.New(tables.Scoring),
		gate:      gate.New(cfg),
	}
}

// Evaluate validates, scores and gates one article.
func (e *Evaluator) Evaluate(a models.Article) models.Report {
	res := e.validator.Validate(a)
	return models.Report{
		ArticleID:  a.ID,
		Title:      a.Title,
		Category:   res.Category,
		Score:      e.scorer.Score(res),
		Gate:       e.gate.Evaluate(res),
		Validation: res,
		Missing:    validator.Missing(e.cfg, res),
	}
}

// Write encodes v as "json" (indented) or "yaml".
func Write(w io.Writer, v any, format string) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
