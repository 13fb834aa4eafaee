// Package queue is the remediation state machine. A Queue is a plain value that is
// loaded, mutated and saved as a whole by a Store; nothing else is shared between runs.
package queue

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/dtnitsch/content-gate/models"
)

var (
	ErrBusy              = errors.New("another item is in progress")
	ErrNotFound          = errors.New("queue item not found")
	ErrInvalidTransition = errors.New("invalid queue transition")
	ErrEmpty             = errors.New("no eligible queue item")
)

// Fingerprint identifies an article revision. Title and body both count.
func Fingerprint(a models.Article) string {
	h := sha256.New()
	h.Write([]byte(a.Title))
	h.Write([]byte{0})
	h.Write([]byte(a.BodyHTML))
	return fmt.Sprintf("%x", h.Sum(nil))
}

type Queue struct {
	Items []models.QueueItem `json:"items"`
	// Archived maps pruned article ids to the fingerprint they were closed with.
	Archived  map[string]string `json:"archived,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`

	maxAttempts int
	now         func() time.Time
}

// New returns an empty queue that skips items after maxAttempts failures.
func New(maxAttempts int) *Queue {
	q := &Queue{}
	q.init(maxAttempts)
	return q
}

func (q *Queue) init(maxAttempts int) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	q.maxAttempts = maxAttempts
	if q.now == nil {
		q.now = time.Now
	}
	if q.Archived == nil {
		q.Archived = map[string]string{}
	}
}

// SetClock replaces the time source.
func (q *Queue) SetClock(now func() time.Time) {
	q.now = now
}

func (q *Queue) stamp() time.Time {
	t := q.now().UTC()
	q.UpdatedAt = t
	return t
}

func (q *Queue) index(id string) int {
	for i := range q.Items {
		if q.Items[i].ArticleID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the item for the article.
func (q *Queue) Get(id string) (models.QueueItem, bool) {
	i := q.index(id)
	if i < 0 {
		return models.QueueItem{}, false
	}
	return q.Items[i], true
}

// Enqueue registers an article for remediation and reports whether a new pending item
// was created. An active item for the same article is refreshed in place. A closed
// item (live or archived) with the same fingerprint means this revision was already
// handled and nothing happens; a different fingerprint reopens the article.
func (q *Queue) Enqueue(a models.Article, missing []models.MissingCategory, score int) (models.QueueItem, bool) {
	fp := Fingerprint(a)
	now := q.stamp()

	if i := q.index(a.ID); i >= 0 {
		it := &q.Items[i]
		if it.Status.Terminal() {
			if it.Fingerprint == fp {
				return *it, false
			}
			q.Items = append(q.Items[:i], q.Items[i+1:]...)
		} else {
			it.Title = a.Title
			it.Missing = missing
			it.Score = score
			it.Fingerprint = fp
			it.UpdatedAt = now
			return *it, false
		}
	} else if archived, ok := q.Archived[a.ID]; ok {
		if archived == fp {
			return models.QueueItem{ArticleID: a.ID, Fingerprint: fp, Status: models.StatusDone}, false
		}
		delete(q.Archived, a.ID)
	}

	it := models.QueueItem{
		ArticleID:   a.ID,
		Title:       a.Title,
		Fingerprint: fp,
		Score:       score,
		Status:      models.StatusPending,
		Missing:     missing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.Items = append(q.Items, it)
	return it, true
}

// Next moves the next eligible item to in_progress and counts the attempt.
// Pending items go first, in insertion order, then failed items with attempts left.
// Items whose article id is in skip are passed over.
func (q *Queue) Next(skip ...string) (models.QueueItem, error) {
	for _, it := range q.Items {
		if it.Status == models.StatusInProgress {
			return models.QueueItem{}, fmt.Errorf("%w: %s", ErrBusy, it.ArticleID)
		}
	}

	skipped := make(map[string]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}

	pick := -1
	for i, it := range q.Items {
		if it.Status == models.StatusPending && !skipped[it.ArticleID] {
			pick = i
			break
		}
	}
	if pick < 0 {
		for i, it := range q.Items {
			if it.Status == models.StatusFailed && it.Attempts < q.maxAttempts && !skipped[it.ArticleID] {
				pick = i
				break
			}
		}
	}
	if pick < 0 {
		return models.QueueItem{}, ErrEmpty
	}

	it := &q.Items[pick]
	it.Status = models.StatusInProgress
	it.Attempts++
	it.UpdatedAt = q.stamp()
	return *it, nil
}

func (q *Queue) inProgress(id string) (*models.QueueItem, error) {
	i := q.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	it := &q.Items[i]
	if it.Status != models.StatusInProgress {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrInvalidTransition, id, it.Status, models.StatusInProgress)
	}
	return it, nil
}

// Complete closes an in-progress item. fingerprint is the revision that was written,
// so a later Enqueue of the same body is a no-op.
func (q *Queue) Complete(id, fingerprint string) error {
	it, err := q.inProgress(id)
	if err != nil {
		return err
	}
	it.Status = models.StatusDone
	it.LastError = ""
	if fingerprint != "" {
		it.Fingerprint = fingerprint
	}
	it.UpdatedAt = q.stamp()
	return nil
}

// Fail records a failed attempt. Once attempts reach the cap the item is skipped.
func (q *Queue) Fail(id string, cause error) error {
	it, err := q.inProgress(id)
	if err != nil {
		return err
	}
	q.fail(it, cause.Error())
	return nil
}

func (q *Queue) fail(it *models.QueueItem, msg string) {
	it.LastError = msg
	it.Status = models.StatusFailed
	if it.Attempts >= q.maxAttempts {
		it.Status = models.StatusSkipped
	}
	it.UpdatedAt = q.stamp()
}

// NeedsSources parks an in-progress item until source data is available.
func (q *Queue) NeedsSources(id string, missing []string) error {
	it, err := q.inProgress(id)
	if err != nil {
		return err
	}
	it.Status = models.StatusNeedsSources
	it.LastError = fmt.Sprintf("source data required for %v", missing)
	it.UpdatedAt = q.stamp()
	return nil
}

// Skip closes any open item, e.g. when its article no longer exists.
func (q *Queue) Skip(id, reason string) error {
	i := q.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	it := &q.Items[i]
	if it.Status.Terminal() {
		return fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, id, it.Status)
	}
	it.Status = models.StatusSkipped
	it.LastError = reason
	it.UpdatedAt = q.stamp()
	return nil
}

// ReopenNeedsSources returns parked items to pending and reports how many moved.
func (q *Queue) ReopenNeedsSources() int {
	n := 0
	for i := range q.Items {
		if q.Items[i].Status == models.StatusNeedsSources {
			q.Items[i].Status = models.StatusPending
			q.Items[i].UpdatedAt = q.stamp()
			n++
		}
	}
	return n
}

// RecoverStale fails in-progress items untouched for longer than after.
// The interrupted attempt counts toward the cap.
func (q *Queue) RecoverStale(after time.Duration) int {
	cutoff := q.now().Add(-after)
	n := 0
	for i := range q.Items {
		it := &q.Items[i]
		if it.Status == models.StatusInProgress && it.UpdatedAt.Before(cutoff) {
			q.fail(it, "recovered stale in_progress item")
			n++
		}
	}
	return n
}

// Prune drops closed items from the list, keeping their fingerprints.
func (q *Queue) Prune() int {
	kept := q.Items[:0]
	n := 0
	for _, it := range q.Items {
		if it.Status.Terminal() {
			q.Archived[it.ArticleID] = it.Fingerprint
			n++
			continue
		}
		kept = append(kept, it)
	}
	q.Items = kept
	if n > 0 {
		q.stamp()
	}
	return n
}

// Counts tallies items by status. Every status is present, zero or not.
func (q *Queue) Counts() map[models.QueueStatus]int {
	out := map[models.QueueStatus]int{}
	for _, s := range models.Statuses {
		out[s] = 0
	}
	for _, it := range q.Items {
		out[it.Status]++
	}
	return out
}
