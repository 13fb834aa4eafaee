package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/caching"
	"github.com/dtnitsch/content-gate/pkg/db"
	"github.com/dtnitsch/content-gate/pkg/fetcher"
	"github.com/dtnitsch/content-gate/pkg/language"
	"github.com/dtnitsch/content-gate/pkg/metrics"
	"github.com/dtnitsch/content-gate/pkg/report"
	"github.com/dtnitsch/content-gate/pkg/rubric"
	"github.com/dtnitsch/content-gate/pkg/sourcebank"
	"github.com/dtnitsch/content-gate/pkg/storage"
	"github.com/dtnitsch/content-gate/pkg/validator"
)

// Env is what every action needs: config, rubric, logger and the article store.
type Env struct {
	Config  models.Config
	Tables  rubric.Tables
	Logger  *slog.Logger
	Store   *storage.FileStore
	Metrics *metrics.Recorder
}

// Setup loads the config named by --config, applies flag overrides and opens the store.
func Setup(c *cli.Context) (*Env, error) {
	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	applyFlags(c, &cfg)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	logger := NewLogger(c, cfg.LogLevel)

	tables := rubric.Default()
	if cfg.RubricPath != "" {
		if tables, err = rubric.Load(cfg.RubricPath); err != nil {
			return nil, err
		}
	}

	store, err := storage.NewFileStore(cfg.ArticlesDir)
	if err != nil {
		return nil, err
	}

	env := &Env{Config: cfg, Tables: tables, Logger: logger, Store: store}
	if c.String("metrics-file") != "" {
		env.Metrics = metrics.New()
	}
	return env, nil
}

func applyFlags(c *cli.Context, cfg *models.Config) {
	if c.IsSet("articles-dir") {
		cfg.ArticlesDir = c.String("articles-dir")
	}
	if c.IsSet("queue-path") {
		cfg.QueuePath = c.String("queue-path")
	}
	if c.IsSet("db-path") {
		cfg.DBPath = c.String("db-path")
	}
	if c.IsSet("source-bank") {
		cfg.SourceBank = c.String("source-bank")
	}
	if c.IsSet("min-words") {
		cfg.MinWords = c.Int("min-words")
	}
	if c.IsSet("max-attempts") {
		cfg.MaxAttempts = c.Int("max-attempts")
	}
	if c.IsSet("strict-years") {
		cfg.StrictYears = c.Bool("strict-years")
	}
	if c.IsSet("stale-after") {
		cfg.StaleAfter = c.Duration("stale-after")
	}
}

// NewLogger builds the JSON stderr logger. --quiet and --verbose win over the configured level.
func NewLogger(c *cli.Context, level string) *slog.Logger {
	logLevel := ParseLevel(level)
	if c.Bool("verbose") {
		logLevel = slog.LevelDebug
	}
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// ParseLevel maps debug|info|warn|error to a slog level; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Evaluator builds the report evaluator, with the language check when configured.
func (e *Env) Evaluator() *report.Evaluator {
	opts := []validator.Option{validator.WithLogger(e.Logger)}
	if e.Config.Language != "" {
		d, err := language.New(e.Config.Language)
		if err != nil {
			e.Logger.Warn("language check disabled", "language", e.Config.Language, "error", err)
		} else {
			opts = append(opts, validator.WithLanguage(d))
		}
	}
	return report.New(e.Config, e.Tables, opts...)
}

// OpenDB opens the audit history unless --no-history is set, in which case it returns nil.
func (e *Env) OpenDB(c *cli.Context) (*db.DB, error) {
	if c.Bool("no-history") {
		return nil, nil
	}
	database, err := db.Open(e.Config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// LoadBank loads the configured source bank. A failure is logged and yields nil;
// callers treat nil as "unavailable".
func (e *Env) LoadBank(ctx context.Context) *sourcebank.Bank {
	if e.Config.SourceBank == "" {
		return nil
	}
	opts := sourcebank.Options{
		Fetcher:  fetcher.NewFetcher(e.Config.RequestTimeout),
		Category: e.Tables.CategoryOf,
	}
	if cache, err := caching.NewCache(e.Config.CacheDir, e.Config.SourceBankTTL); err == nil {
		opts.Cache = cache
	} else {
		e.Logger.Warn("source bank cache disabled", "error", err)
	}

	bank, err := sourcebank.Load(ctx, e.Config.SourceBank, opts)
	if err != nil {
		e.Logger.Warn("source bank unavailable", "location", e.Config.SourceBank, "error", err)
		return nil
	}
	e.Logger.Debug("source bank loaded", "location", e.Config.SourceBank, "entries", bank.Size())
	return bank
}

// FlushMetrics writes the textfile named by --metrics-file, if any.
func (e *Env) FlushMetrics(c *cli.Context) {
	path := c.String("metrics-file")
	if e.Metrics == nil || path == "" {
		return
	}
	if err := e.Metrics.WriteTextfile(path); err != nil {
		e.Logger.Warn("failed to write metrics", "path", path, "error", err)
	}
}

var markdownLink = regexp.MustCompile(`^\[.*?\]\((https?://[^\)]+)\)$`)

// SanitizeURL cleans up a pasted URL: markdown link syntax, surrounding quotes and
// trailing punctuation.
func SanitizeURL(rawURL string) string {
	cleaned := strings.TrimSpace(rawURL)
	if m := markdownLink.FindStringSubmatch(cleaned); len(m) > 1 {
		cleaned = m[1]
	}
	cleaned = strings.TrimRight(cleaned, `,.)}]"'>;`)
	cleaned = strings.TrimLeft(cleaned, `([<"'`)
	return strings.TrimSpace(cleaned)
}
