package report

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/rubric"
)

func loadChickenCoop(t *testing.T) models.Article {
	t.Helper()
	body, err := os.ReadFile("../fixer/testdata/chicken_coop.html")
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return models.Article{ID: "coop", Title: "Backyard Chicken Coop Basics", BodyHTML: string(body)}
}

func hasMissing(missing []models.MissingCategory, cat string) bool {
	for _, m := range missing {
		if m.Category == cat {
			return true
		}
	}
	return false
}

func TestEvaluate(t *testing.T) {
	e := New(models.DefaultConfig(), rubric.Default())
	rep := e.Evaluate(loadChickenCoop(t))

	if rep.ArticleID != "coop" || rep.Category != "animals" {
		t.Errorf("report header = %s/%s", rep.ArticleID, rep.Category)
	}
	if rep.Score.Value >= 60 {
		t.Errorf("score = %d, want < 60", rep.Score.Value)
	}
	if rep.Gate.Pass || rep.Gate.Publishable {
		t.Errorf("gate = %+v, want fail", rep.Gate)
	}
	for _, cat := range []string{models.CategoryCitations, models.CategoryWordCount} {
		if !hasMissing(rep.Missing, cat) {
			t.Errorf("missing categories %v lack %s", rep.Missing, cat)
		}
	}
}

func TestWrite(t *testing.T) {
	rep := models.Report{ArticleID: "coop", Title: "Backyard Chicken Coop Basics", Score: models.QualityScore{Value: 42}}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, rep, "json"); err != nil {
			t.Fatal(err)
		}
		var back models.Report
		if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
			t.Fatalf("output is not json: %v", err)
		}
		if back.Score.Value != 42 {
			t.Errorf("score = %d", back.Score.Value)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, rep, "yaml"); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "article_id: coop") {
			t.Errorf("yaml output:\n%s", buf.String())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := Write(&bytes.Buffer{}, rep, "xml"); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}
