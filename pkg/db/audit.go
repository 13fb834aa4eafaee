package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/dtnitsch/content-gate/models"
)

// Report phases.
const (
	PhaseScan      = "scan"
	PhaseBeforeFix = "before_fix"
	PhaseAfterFix  = "after_fix"
)

// ReportRecord is a stored report with its row metadata.
type ReportRecord struct {
	ReportID  int64
	RunID     string
	Phase     string
	CreatedAt time.Time
	Report    models.Report
}

// Transition is one queue status change.
type Transition struct {
	RunID     string
	ArticleID string
	From      models.QueueStatus
	To        models.QueueStatus
	Attempts  int
	Message   string
}

// RunSummary aggregates one run.
type RunSummary struct {
	RunID       string
	Command     string
	StartedAt   time.Time
	FinishedAt  sql.NullTime
	Reports     int
	Articles    int
	GatePassed  int
	Publishable int
	AvgScore    float64
	Transitions map[models.QueueStatus]int
}

var reportColumns = []string{"report_id", "run_id", "phase", "report_json", "created_at"}

// StartRun opens a run and returns its id.
func (db *DB) StartRun(command string) (string, error) {
	id := uuid.NewString()
	_, err := db.builder().
		Insert("runs").
		Columns("run_id", "command", "started_at").
		Values(id, command, time.Now().UTC()).
		Exec()
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the end time of a run.
func (db *DB) FinishRun(runID string) error {
	res, err := db.builder().
		Update("runs").
		Set("finished_at", time.Now().UTC()).
		Where(sq.Eq{"run_id": runID}).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordReport stores a report under runID and returns its row id.
func (db *DB) RecordReport(runID, phase string, r models.Report) (int64, error) {
	r.RunID = runID
	data, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("failed to encode report: %w", err)
	}

	res, err := db.builder().
		Insert("reports").
		Columns("run_id", "article_id", "title", "category", "phase", "score", "tier",
			"gate_pass", "publishable", "passed_checks", "issue_count", "warning_count",
			"word_count", "report_json", "created_at").
		Values(runID, r.ArticleID, r.Title, r.Category, phase, r.Score.Value, string(r.Score.Tier),
			r.Gate.Pass, r.Gate.Publishable, r.Gate.Passed, len(r.Validation.Issues), len(r.Validation.Warnings),
			r.Validation.WordCount, string(data), time.Now().UTC()).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to record report: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get report ID: %w", err)
	}
	return id, nil
}

// RecordTransition logs a queue status change. runID may be empty.
func (db *DB) RecordTransition(t Transition) error {
	var runID any
	if t.RunID != "" {
		runID = t.RunID
	}
	_, err := db.builder().
		Insert("queue_events").
		Columns("run_id", "article_id", "from_status", "to_status", "attempts", "message", "created_at").
		Values(runID, t.ArticleID, string(t.From), string(t.To), t.Attempts, t.Message, time.Now().UTC()).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// ReportsForArticle returns an article's reports, newest first. limit <= 0 means all.
func (db *DB) ReportsForArticle(articleID string, limit int) ([]ReportRecord, error) {
	q := db.builder().
		Select(reportColumns...).
		From("reports").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("report_id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := q.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

// LatestReports returns the newest report of every article, ordered by article id.
func (db *DB) LatestReports() ([]ReportRecord, error) {
	rows, err := db.builder().
		Select(reportColumns...).
		From("reports").
		Where("report_id IN (SELECT MAX(report_id) FROM reports GROUP BY article_id)").
		OrderBy("article_id").
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reports: %w", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

func scanReports(rows *sql.Rows) ([]ReportRecord, error) {
	var out []ReportRecord
	for rows.Next() {
		var rec ReportRecord
		var data string
		if err := rows.Scan(&rec.ReportID, &rec.RunID, &rec.Phase, &data, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &rec.Report); err != nil {
			return nil, fmt.Errorf("failed to decode report %d: %w", rec.ReportID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RunSummary aggregates the reports and transitions of one run.
func (db *DB) RunSummary(runID string) (*RunSummary, error) {
	s := &RunSummary{RunID: runID, Transitions: map[models.QueueStatus]int{}}

	err := db.builder().
		Select("command", "started_at", "finished_at").
		From("runs").
		Where(sq.Eq{"run_id": runID}).
		QueryRow().
		Scan(&s.Command, &s.StartedAt, &s.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var avg sql.NullFloat64
	err = db.builder().
		Select("COUNT(*)", "COUNT(DISTINCT article_id)",
			"COALESCE(SUM(gate_pass), 0)", "COALESCE(SUM(publishable), 0)", "AVG(score)").
		From("reports").
		Where(sq.Eq{"run_id": runID}).
		QueryRow().
		Scan(&s.Reports, &s.Articles, &s.GatePassed, &s.Publishable, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reports: %w", err)
	}
	s.AvgScore = avg.Float64

	rows, err := db.builder().
		Select("to_status", "COUNT(*)").
		From("queue_events").
		Where(sq.Eq{"run_id": runID}).
		GroupBy("to_status").
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate transitions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan transition count: %w", err)
		}
		s.Transitions[models.QueueStatus(status)] = n
	}
	return s, rows.Err()
}

// RecentRuns lists runs newest first.
func (db *DB) RecentRuns(limit int) ([]RunSummary, error) {
	q := db.builder().
		Select("run_id", "command", "started_at", "finished_at").
		From("runs").
		OrderBy("started_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	rows, err := q.Query()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.RunID, &s.Command, &s.StartedAt, &s.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
