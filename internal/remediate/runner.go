package remediate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/db"
	"github.com/dtnitsch/content-gate/pkg/fixer"
	"github.com/dtnitsch/content-gate/pkg/metrics"
	"github.com/dtnitsch/content-gate/pkg/queue"
	"github.com/dtnitsch/content-gate/pkg/report"
	"github.com/dtnitsch/content-gate/pkg/storage"
)

// ErrNoImprovement fails an attempt whose fix left the article no better.
var ErrNoImprovement = errors.New("fix did not improve issue count")

// ContentStore is the remote article store. Only the body is ever written back.
type ContentStore interface {
	Get(ctx context.Context, id string) (models.Article, error)
	UpdateBody(ctx context.Context, id, body string) error
}

// Result describes one processed queue item.
type Result struct {
	ArticleID string
	Status    models.QueueStatus
	Attempts  int
	Before    *models.Report
	After     *models.Report
	Applied   []string
	Err       error
}

type Runner struct {
	queue   *queue.Store
	store   ContentStore
	eval    *report.Evaluator
	fixer   *fixer.Fixer
	history *db.DB
	runID   string
	metrics *metrics.Recorder
	logger  *slog.Logger

	timeout    time.Duration
	staleAfter time.Duration

	// articles already attempted by this runner; a failed one waits for the next run
	attempted []string
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHistory records reports and transitions under runID.
func WithHistory(d *db.DB, runID string) Option {
	return func(r *Runner) {
		r.history = d
		r.runID = runID
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTimeout bounds each content store call.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithStaleAfter recovers in-progress items older than d before selecting.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Runner) { r.staleAfter = d }
}

func NewRunner(q *queue.Store, store ContentStore, eval *report.Evaluator, fx *fixer.Fixer, opts ...Option) *Runner {
	r := &Runner{
		queue:  q,
		store:  store,
		eval:   eval,
		fixer:  fx,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce takes the next eligible item through fetch, validate, fix, re-validate and
// write-back, then records where it ended up. queue.ErrEmpty means nothing was eligible.
// Failures of a single item are recorded on the item and reported in Result.Err; the
// returned error is reserved for queue problems.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	it, err := r.selectNext()
	if err != nil {
		return nil, err
	}
	res := &Result{ArticleID: it.ArticleID, Attempts: it.Attempts}
	log := r.logger.With("article_id", it.ArticleID, "attempt", it.Attempts)
	log.Info("processing queue item", "title", it.Title, "missing", it.MissingNames())

	a, err := r.get(ctx, it.ArticleID)
	if errors.Is(err, storage.ErrArticleNotFound) {
		return r.finish(res, log, err, func(q *queue.Queue) error { return q.Skip(it.ArticleID, err.Error()) })
	}
	if err != nil {
		return r.finish(res, log, err, func(q *queue.Queue) error { return q.Fail(it.ArticleID, err) })
	}

	before := r.eval.Evaluate(a)
	res.Before = &before
	r.record(db.PhaseBeforeFix, before)

	out, err := r.fixer.Fix(a, before.Validation)
	res.Applied = out.Applied
	if errors.Is(err, fixer.ErrNeedsSources) {
		return r.finish(res, log, err, func(q *queue.Queue) error { return q.NeedsSources(it.ArticleID, out.NeedsSources) })
	}
	if err != nil {
		return r.finish(res, log, err, func(q *queue.Queue) error { return q.Fail(it.ArticleID, err) })
	}

	fixed := a
	fixed.BodyHTML = out.HTML
	after := r.eval.Evaluate(fixed)
	res.After = &after
	r.record(db.PhaseAfterFix, after)

	improved := len(after.Validation.Issues) < len(before.Validation.Issues) || after.Gate.Pass
	if !improved {
		err := fmt.Errorf("%w (%d issues before, %d after)", ErrNoImprovement, len(before.Validation.Issues), len(after.Validation.Issues))
		return r.finish(res, log, err, func(q *queue.Queue) error { return q.Fail(it.ArticleID, err) })
	}

	if err := r.update(ctx, it.ArticleID, out.HTML); err != nil {
		if errors.Is(err, storage.ErrArticleNotFound) {
			return r.finish(res, log, err, func(q *queue.Queue) error { return q.Skip(it.ArticleID, err.Error()) })
		}
		return r.finish(res, log, err, func(q *queue.Queue) error { return q.Fail(it.ArticleID, err) })
	}

	log.Info("article remediated",
		"score_before", before.Score.Value,
		"score_after", after.Score.Value,
		"issues_before", len(before.Validation.Issues),
		"issues_after", len(after.Validation.Issues),
		"applied", out.Applied,
	)
	return r.finish(res, log, nil, func(q *queue.Queue) error { return q.Complete(it.ArticleID, queue.Fingerprint(fixed)) })
}

// RunAll processes items until the queue has nothing eligible or limit items were
// handled (limit <= 0 means no limit). A failing item never stops the batch, and each
// article is attempted at most once per runner.
func (r *Runner) RunAll(ctx context.Context, limit int) ([]*Result, error) {
	var results []*Result
	for limit <= 0 || len(results) < limit {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := r.RunOnce(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			return results, nil
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) selectNext() (models.QueueItem, error) {
	var it models.QueueItem
	var from models.QueueStatus
	err := r.queue.Update(func(q *queue.Queue) error {
		if r.staleAfter > 0 {
			if n := q.RecoverStale(r.staleAfter); n > 0 {
				r.logger.Warn("recovered stale queue items", "count", n)
			}
		}
		prev := map[string]models.QueueStatus{}
		for _, qi := range q.Items {
			prev[qi.ArticleID] = qi.Status
		}
		var err error
		if it, err = q.Next(r.attempted...); err != nil {
			return err
		}
		from = prev[it.ArticleID]
		return nil
	})
	if err != nil {
		return models.QueueItem{}, err
	}
	r.attempted = append(r.attempted, it.ArticleID)
	r.transition(it.ArticleID, from, it.Status, it.Attempts, "")
	return it, nil
}

// finish applies the closing transition and fills in the result.
func (r *Runner) finish(res *Result, log *slog.Logger, cause error, move func(q *queue.Queue) error) (*Result, error) {
	res.Err = cause
	var after models.QueueItem
	err := r.queue.Update(func(q *queue.Queue) error {
		if err := move(q); err != nil {
			return err
		}
		after, _ = q.Get(res.ArticleID)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to update queue: %w", err)
	}

	res.Status = after.Status
	res.Attempts = after.Attempts
	msg := ""
	if cause != nil {
		msg = cause.Error()
		log.Warn("queue item not completed", "status", after.Status, "error", cause)
	}
	r.transition(res.ArticleID, models.StatusInProgress, after.Status, after.Attempts, msg)
	if r.metrics != nil {
		r.metrics.ObserveRemediation(after.Status)
	}
	return res, nil
}

func (r *Runner) get(ctx context.Context, id string) (models.Article, error) {
	ctx, cancel := r.callContext(ctx)
	defer cancel()
	return r.store.Get(ctx, id)
}

func (r *Runner) update(ctx context.Context, id, body string) error {
	ctx, cancel := r.callContext(ctx)
	defer cancel()
	return r.store.UpdateBody(ctx, id, body)
}

func (r *Runner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

func (r *Runner) record(phase string, rep models.Report) {
	if r.metrics != nil && phase == db.PhaseAfterFix {
		r.metrics.ObserveReport(rep)
	}
	if r.history == nil {
		return
	}
	if _, err := r.history.RecordReport(r.runID, phase, rep); err != nil {
		r.logger.Warn("failed to record report", "article_id", rep.ArticleID, "error", err)
	}
}

func (r *Runner) transition(id string, from, to models.QueueStatus, attempts int, msg string) {
	if r.history == nil {
		return
	}
	err := r.history.RecordTransition(db.Transition{
		RunID:     r.runID,
		ArticleID: id,
		From:      from,
		To:        to,
		Attempts:  attempts,
		Message:   msg,
	})
	if err != nil {
		r.logger.Warn("failed to record transition", "article_id", id, "error", err)
	}
}
