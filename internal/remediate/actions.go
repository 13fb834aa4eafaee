package remediate

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/content-gate/internal/common"
	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/fixer"
	"github.com/dtnitsch/content-gate/pkg/queue"
	"github.com/dtnitsch/content-gate/pkg/report"
)

// fixOutput is what `fix` prints.
type fixOutput struct {
	ArticleID    string        `json:"article_id" yaml:"article_id"`
	Applied      []string      `json:"applied" yaml:"applied"`
	NeedsSources []string      `json:"needs_sources,omitempty" yaml:"needs_sources,omitempty"`
	Saved        bool          `json:"saved" yaml:"saved"`
	Before       models.Report `json:"before" yaml:"before"`
	After        models.Report `json:"after" yaml:"after"`
}

// FixAction runs the fix pipeline on one article outside the queue. With --dry-run
// the fixed HTML goes to --out (or nowhere) and the store is left alone.
func FixAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	id := c.String("id")
	if id == "" {
		return fmt.Errorf("--id is required")
	}

	a, err := env.Store.Get(c.Context, id)
	if err != nil {
		return err
	}

	eval := env.Evaluator()
	before := eval.Evaluate(a)

	fx := fixer.New(env.Config, env.Tables, env.LoadBank(c.Context), fixer.WithLogger(env.Logger))
	out, fixErr := fx.Fix(a, before.Validation)
	if fixErr != nil && !errors.Is(fixErr, fixer.ErrNeedsSources) {
		return fixErr
	}

	fixed := a
	fixed.BodyHTML = out.HTML
	after := eval.Evaluate(fixed)

	result := fixOutput{
		ArticleID:    id,
		Applied:      out.Applied,
		NeedsSources: out.NeedsSources,
		Before:       before,
		After:        after,
	}

	if path := c.String("out"); path != "" {
		if err := os.WriteFile(path, []byte(out.HTML), 0644); err != nil {
			return fmt.Errorf("failed to write fixed HTML: %w", err)
		}
	}

	improved := len(after.Validation.Issues) < len(before.Validation.Issues) || after.Gate.Pass
	switch {
	case c.Bool("dry-run"):
	case fixErr != nil:
		env.Logger.Warn("Not saving: source data required", "article_id", id, "missing", out.NeedsSources)
	case !out.Changed():
		env.Logger.Info("Nothing to fix", "article_id", id)
	case !improved:
		env.Logger.Warn("Not saving: fix did not improve issue count", "article_id", id,
			"issues_before", len(before.Validation.Issues), "issues_after", len(after.Validation.Issues))
	default:
		if err := env.Store.UpdateBody(c.Context, id, out.HTML); err != nil {
			return err
		}
		result.Saved = true
		env.Logger.Info("Article fixed", "article_id", id, "score_before", before.Score.Value, "score_after", after.Score.Value)
	}

	if err := report.Write(os.Stdout, result, c.String("format")); err != nil {
		return err
	}
	if fixErr != nil {
		return cli.Exit("fix incomplete: "+fixErr.Error(), 2)
	}
	return nil
}

// QueueStatusAction prints the queue counts and open items.
func QueueStatusAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	q, err := queue.NewStore(env.Config.QueuePath, env.Config.MaxAttempts).Load()
	if err != nil {
		return err
	}

	if f := c.String("format"); f == "json" || f == "yaml" {
		return report.Write(os.Stdout, q, f)
	}

	counts := q.Counts()
	for _, s := range models.Statuses {
		fmt.Printf("%-14s %d\n", s, counts[s])
	}
	fmt.Printf("%-14s %d\n", "archived", len(q.Archived))

	if len(q.Items) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Printf("%-32s %-14s %-8s %-6s %-40s %s\n", "Article", "Status", "Attempts", "Score", "Missing", "Last Error")
	fmt.Println(strings.Repeat("-", 130))
	for _, it := range q.Items {
		fmt.Printf("%-32s %-14s %-8d %-6d %-40s %s\n",
			it.ArticleID, it.Status, it.Attempts, it.Score, strings.Join(it.MissingNames(), ","), it.LastError)
	}
	return nil
}

// QueueEnqueueAction evaluates articles and queues every one that is not publishable.
func QueueEnqueueAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}

	var articles []models.Article
	if ids := c.StringSlice("id"); len(ids) > 0 {
		for _, id := range ids {
			a, err := env.Store.Get(c.Context, id)
			if err != nil {
				return err
			}
			articles = append(articles, a)
		}
	} else if articles, err = env.Store.List(c.Context); err != nil {
		return err
	}

	eval := env.Evaluator()
	added, refreshed := 0, 0
	err = queue.NewStore(env.Config.QueuePath, env.Config.MaxAttempts).Update(func(q *queue.Queue) error {
		for _, a := range articles {
			rep := eval.Evaluate(a)
			if rep.Gate.Publishable && !c.Bool("all") {
				continue
			}
			if _, isNew := q.Enqueue(a, rep.Missing, rep.Score.Value); isNew {
				added++
			} else {
				refreshed++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	env.Logger.Info("Queue updated", "evaluated", len(articles), "added", added, "unchanged_or_refreshed", refreshed)
	return nil
}

// QueueRunAction processes queue items until none is eligible or --limit is reached.
func QueueRunAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	logger := env.Logger
	qs := queue.NewStore(env.Config.QueuePath, env.Config.MaxAttempts)

	bank := env.LoadBank(c.Context)
	if bank != nil {
		var reopened int
		if err := qs.Update(func(q *queue.Queue) error {
			reopened = q.ReopenNeedsSources()
			return nil
		}); err != nil {
			return err
		}
		if reopened > 0 {
			logger.Info("Source bank available, reopened parked items", "count", reopened)
		}
	}

	opts := []Option{
		WithLogger(logger),
		WithTimeout(env.Config.RequestTimeout),
		WithStaleAfter(env.Config.StaleAfter),
		WithMetrics(env.Metrics),
	}
	database, err := env.OpenDB(c)
	if err != nil {
		return err
	}
	var runID string
	if database != nil {
		defer database.Close()
		if runID, err = database.StartRun("queue run"); err != nil {
			return err
		}
		opts = append(opts, WithHistory(database, runID))
	}

	fx := fixer.New(env.Config, env.Tables, bank, fixer.WithLogger(logger))
	runner := NewRunner(qs, env.Store, env.Evaluator(), fx, opts...)

	results, runErr := runner.RunAll(c.Context, c.Int("limit"))

	tally := map[models.QueueStatus]int{}
	for _, r := range results {
		tally[r.Status]++
	}
	logger.Info("Queue run complete",
		"processed", len(results),
		"done", tally[models.StatusDone],
		"failed", tally[models.StatusFailed],
		"needs_sources", tally[models.StatusNeedsSources],
		"skipped", tally[models.StatusSkipped],
		"run_id", runID,
	)

	if database != nil {
		if err := database.FinishRun(runID); err != nil {
			logger.Warn("Failed to finish run", "run_id", runID, "error", err)
		}
	}
	if env.Metrics != nil {
		if q, err := qs.Load(); err == nil {
			env.Metrics.SetQueue(q.Counts())
		}
	}
	env.FlushMetrics(c)

	if errors.Is(runErr, queue.ErrBusy) {
		return cli.Exit("another item is in progress; use --stale-after or wait", 1)
	}
	return runErr
}

// QueuePruneAction archives done and skipped items.
func QueuePruneAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	var pruned int
	err = queue.NewStore(env.Config.QueuePath, env.Config.MaxAttempts).Update(func(q *queue.Queue) error {
		pruned = q.Prune()
		return nil
	})
	if err != nil {
		return err
	}
	env.Logger.Info("Queue pruned", "archived", pruned)
	return nil
}
