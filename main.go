package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/content-gate/internal/audit"
	"github.com/dtnitsch/content-gate/internal/remediate"
	"github.com/dtnitsch/content-gate/pkg/help"
)

func main() {
	app := &cli.App{
		Name:  "content-gate",
		Usage: "Validate, score, gate and auto-fix blog articles before publication",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "content-gate.yaml", Usage: "YAML config file (missing file uses defaults)"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Only log errors"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Debug logging"},
			&cli.StringFlag{Name: "metrics-file", Usage: "Write Prometheus metrics to this textfile after scan and queue run"},
			&cli.StringFlag{Name: "articles-dir", Usage: "Article store directory"},
			&cli.StringFlag{Name: "queue-path", Usage: "Remediation queue snapshot"},
			&cli.StringFlag{Name: "db-path", Usage: "Audit history database"},
			&cli.StringFlag{Name: "source-bank", Usage: "Source bank file or http(s) URL"},
			&cli.IntFlag{Name: "min-words", Usage: "Override min_words"},
			&cli.IntFlag{Name: "max-attempts", Usage: "Override max_attempts"},
			&cli.BoolFlag{Name: "strict-years", Usage: "Treat year tokens as issues and strip them when fixing"},
			&cli.BoolFlag{Name: "no-history", Usage: "Do not record reports in the audit database"},
		},
		Commands: []*cli.Command{
			{
				Name:   "scan",
				Usage:  "Evaluate stored articles and print quality reports",
				Action: audit.ScanAction,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "id", Usage: "Article ids (default: all)"},
					&cli.StringFlag{Name: "format", Value: "json", Usage: "json or yaml"},
					&cli.BoolFlag{Name: "summary", Usage: "Print a table instead of full reports"},
					&cli.IntFlag{Name: "keywords", Value: 15, Usage: "Corpus keywords shown with --summary"},
				},
			},
			{
				Name:   "gate",
				Usage:  "Gate one article; exits 1 unless publishable",
				Action: audit.GateAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Stored article id"},
					&cli.StringFlag{Name: "file", Usage: "HTML body file to gate instead of a stored article"},
					&cli.StringFlag{Name: "title", Usage: "Title for --file"},
					&cli.StringFlag{Name: "format", Value: "json", Usage: "json or yaml"},
				},
			},
			{
				Name:   "fix",
				Usage:  "Run the auto-fix pipeline on one article",
				Action: remediate.FixAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Stored article id", Required: true},
					&cli.BoolFlag{Name: "dry-run", Usage: "Do not write the fixed body back"},
					&cli.StringFlag{Name: "out", Usage: "Also write the fixed HTML to this file"},
					&cli.StringFlag{Name: "format", Value: "json", Usage: "json or yaml"},
				},
			},
			{
				Name:  "queue",
				Usage: "Remediation queue",
				Subcommands: []*cli.Command{
					{
						Name:   "status",
						Usage:  "Show queue counts and items",
						Action: remediate.QueueStatusAction,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "format", Value: "table", Usage: "table, json or yaml"},
						},
					},
					{
						Name:   "enqueue",
						Usage:  "Queue articles that fail the gate",
						Action: remediate.QueueEnqueueAction,
						Flags: []cli.Flag{
							&cli.StringSliceFlag{Name: "id", Usage: "Article ids (default: all)"},
							&cli.BoolFlag{Name: "all", Usage: "Queue publishable articles too"},
						},
					},
					{
						Name:   "run",
						Usage:  "Process queue items one at a time",
						Action: remediate.QueueRunAction,
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Value: 0, Usage: "Stop after this many items (0: until empty)"},
							&cli.DurationFlag{Name: "stale-after", Usage: "Recover in_progress items older than this"},
						},
					},
					{
						Name:   "prune",
						Usage:  "Archive done and skipped items",
						Action: remediate.QueuePruneAction,
					},
				},
			},
			{
				Name:   "history",
				Usage:  "Show stored reports and runs",
				Action: audit.HistoryAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "One article's report timeline"},
					&cli.BoolFlag{Name: "runs", Usage: "List runs instead of reports"},
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum rows"},
					&cli.StringFlag{Name: "format", Value: "table", Usage: "table, json or yaml"},
				},
			},
			{
				Name:   "import",
				Usage:  "Extract a saved page into a stored article",
				Action: audit.ImportAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "Saved HTML page", Required: true},
					&cli.StringFlag{Name: "url", Usage: "Original page URL"},
					&cli.StringFlag{Name: "id", Usage: "Article id (default: slug of the title)"},
					&cli.StringSliceFlag{Name: "tag", Usage: "Article tags"},
					&cli.BoolFlag{Name: "overwrite", Usage: "Replace an existing article"},
				},
			},
			{
				Name:  "quickstart",
				Usage: "Print a quick reference",
				Action: func(c *cli.Context) error {
					fmt.Print(help.ColdstartYAML)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
