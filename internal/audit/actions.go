package audit

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/content-gate/internal/common"
	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/analytics"
	"github.com/dtnitsch/content-gate/pkg/analyzer"
	dbpkg "github.com/dtnitsch/content-gate/pkg/db"
	"github.com/dtnitsch/content-gate/pkg/parser"
	"github.com/dtnitsch/content-gate/pkg/report"
	"github.com/dtnitsch/content-gate/pkg/storage"
)

// ScanAction evaluates every stored article (or the --id ones) and prints the reports.
func ScanAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	logger := env.Logger

	articles, err := selectArticles(c, env.Store)
	if err != nil {
		return err
	}
	logger.Info("Scanning articles", "count", len(articles))

	database, err := env.OpenDB(c)
	if err != nil {
		return err
	}
	var runID string
	if database != nil {
		defer database.Close()
		if runID, err = database.StartRun("scan"); err != nil {
			return err
		}
	}

	eval := env.Evaluator()
	reports := make([]models.Report, 0, len(articles))
	stop := analytics.NewStopwords(env.Tables.TitleStopwords...)
	frequencies := make([]map[string]int, 0, len(articles))
	passed := 0
	for _, a := range articles {
		rep := eval.Evaluate(a)
		rep.RunID = runID
		if rep.Gate.Publishable {
			passed++
		}
		logger.Info("Article scanned",
			"article_id", a.ID,
			"score", rep.Score.Value,
			"tier", rep.Score.Tier,
			"gate", rep.Gate.Pass,
			"issues", len(rep.Validation.Issues),
		)
		if database != nil {
			if _, err := database.RecordReport(runID, dbpkg.PhaseScan, rep); err != nil {
				logger.Warn("Failed to record report", "article_id", a.ID, "error", err)
			}
		}
		if env.Metrics != nil {
			env.Metrics.ObserveReport(rep)
		}
		reports = append(reports, rep)
		frequencies = append(frequencies, analytics.WordFrequency(rep.Validation.Text, stop))
	}

	if database != nil {
		if err := database.FinishRun(runID); err != nil {
			logger.Warn("Failed to finish run", "run_id", runID, "error", err)
		}
	}
	env.FlushMetrics(c)
	logger.Info("Scan complete", "articles", len(articles), "publishable", passed, "run_id", runID)

	if c.Bool("summary") {
		printScanTable(reports)
		if top := analytics.TopKeywords(analytics.Merge(frequencies...), c.Int("keywords")); len(top) > 0 {
			fmt.Printf("Top keywords: %s\n", strings.Join(top, ", "))
		}
		return nil
	}
	return report.Write(os.Stdout, reports, c.String("format"))
}

// GateAction evaluates one article and exits non-zero unless it is publishable.
// The article comes from the store (--id) or from an HTML file (--file with --title).
func GateAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}

	var a models.Article
	switch {
	case c.String("file") != "":
		body, err := os.ReadFile(c.String("file"))
		if err != nil {
			return fmt.Errorf("failed to read article body: %w", err)
		}
		if c.String("title") == "" {
			return fmt.Errorf("--title is required with --file")
		}
		a = models.Article{ID: c.String("id"), Title: c.String("title"), BodyHTML: string(body)}
	case c.String("id") != "":
		if a, err = env.Store.Get(c.Context, c.String("id")); err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --id or --file is required")
	}

	rep := env.Evaluator().Evaluate(a)
	if err := report.Write(os.Stdout, rep, c.String("format")); err != nil {
		return err
	}

	if !rep.Gate.Publishable {
		reasons := make([]string, 0, len(rep.Gate.Blockers)+1)
		if !rep.Gate.Pass {
			reasons = append(reasons, fmt.Sprintf("%d/%d checks passed", rep.Gate.Passed, rep.Gate.Total))
		}
		for _, b := range rep.Gate.Blockers {
			reasons = append(reasons, b.String())
		}
		return cli.Exit("gate failed: "+strings.Join(reasons, "; "), 1)
	}
	env.Logger.Info("Gate passed", "article_id", a.ID, "score", rep.Score.Value)
	return nil
}

// HistoryAction prints stored reports: one article's timeline with --id, recent runs
// with --runs, otherwise the latest report of every article.
func HistoryAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}
	database, err := dbpkg.Open(env.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	limit := c.Int("limit")

	if c.Bool("runs") {
		runs, err := database.RecentRuns(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found")
			return nil
		}
		fmt.Printf("%-36s %-12s %-20s %-20s\n", "Run", "Command", "Started", "Finished")
		fmt.Println(strings.Repeat("-", 92))
		for _, r := range runs {
			finished := "-"
			if r.FinishedAt.Valid {
				finished = r.FinishedAt.Time.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-36s %-12s %-20s %-20s\n", r.RunID, r.Command, r.StartedAt.Format("2006-01-02 15:04:05"), finished)
		}
		return nil
	}

	var recs []dbpkg.ReportRecord
	if id := c.String("id"); id != "" {
		recs, err = database.ReportsForArticle(id, limit)
	} else {
		recs, err = database.LatestReports()
	}
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No reports found")
		return nil
	}

	if c.String("format") != "table" {
		out := make([]models.Report, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.Report)
		}
		return report.Write(os.Stdout, out, c.String("format"))
	}

	fmt.Printf("%-20s %-32s %-11s %-6s %-18s %-6s %-7s\n", "Created", "Article", "Phase", "Score", "Tier", "Gate", "Issues")
	fmt.Println(strings.Repeat("-", 108))
	for _, r := range recs {
		fmt.Printf("%-20s %-32s %-11s %-6d %-18s %-6t %-7d\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			truncate(r.Report.ArticleID, 32),
			r.Phase,
			r.Report.Score.Value,
			r.Report.Score.Tier,
			r.Report.Gate.Pass,
			len(r.Report.Validation.Issues),
		)
	}
	fmt.Printf("\nTotal: %d reports\n", len(recs))
	return nil
}

// ImportAction extracts the main content of a saved page into a stored article.
func ImportAction(c *cli.Context) error {
	env, err := common.Setup(c)
	if err != nil {
		return err
	}

	path := c.String("file")
	if path == "" {
		return fmt.Errorf("--file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}

	pageURL := common.SanitizeURL(c.String("url"))
	if pageURL == "" && env.Config.SiteHost != "" {
		pageURL = "https://" + env.Config.SiteHost + "/"
	}
	if pageURL == "" {
		pageURL = "https://localhost/"
	}

	p := &parser.Parser{}
	a, err := p.ParseArticle(pageURL, string(raw), c.String("id"))
	if err != nil {
		return err
	}
	if tags := c.StringSlice("tag"); len(tags) > 0 {
		a.Tags = tags
	}

	if !c.Bool("overwrite") {
		if _, err := env.Store.Get(c.Context, a.ID); err == nil {
			return fmt.Errorf("article %s already exists (use --overwrite)", a.ID)
		}
	}
	if err := env.Store.Put(c.Context, *a); err != nil {
		return err
	}

	env.Logger.Info("Article imported", "article_id", a.ID, "title", a.Title, "words", analyzer.WordCount(a.BodyHTML))
	fmt.Println(a.ID)
	return nil
}

func selectArticles(c *cli.Context, store *storage.FileStore) ([]models.Article, error) {
	ids := c.StringSlice("id")
	if len(ids) == 0 {
		return store.List(c.Context)
	}
	out := make([]models.Article, 0, len(ids))
	for _, id := range ids {
		a, err := store.Get(c.Context, strings.TrimSpace(id))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func printScanTable(reports []models.Report) {
	fmt.Printf("%-32s %-10s %-6s %-18s %-7s %-11s %-7s\n", "Article", "Category", "Score", "Tier", "Checks", "Publishable", "Issues")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range reports {
		fmt.Printf("%-32s %-10s %-6d %-18s %d/%-5d %-11t %-7d\n",
			truncate(r.ArticleID, 32),
			r.Category,
			r.Score.Value,
			r.Score.Tier,
			r.Gate.Passed, r.Gate.Total,
			r.Gate.Publishable,
			len(r.Validation.Issues),
		)
	}
	fmt.Printf("\nTotal: %d articles\n", len(reports))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
