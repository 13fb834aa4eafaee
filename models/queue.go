package models

import "time"

// QueueStatus is the lifecycle state of a remediation item.
type QueueStatus string

const (
	StatusPending      QueueStatus = "pending"
	StatusInProgress   QueueStatus = "in_progress"
	StatusDone         QueueStatus = "done"
	StatusFailed       QueueStatus = "failed"
	StatusNeedsSources QueueStatus = "needs_sources"
	StatusSkipped      QueueStatus = "skipped"
)

// Statuses lists every state in lifecycle order.
var Statuses = []QueueStatus{
	StatusPending, StatusInProgress, StatusDone, StatusFailed, StatusNeedsSources, StatusSkipped,
}

// Terminal reports whether the status never leaves on its own.
func (s QueueStatus) Terminal() bool {
	return s == StatusDone || s == StatusSkipped
}

// Severity of a missing category.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Missing category names, shared by the validator, fixer and queue.
const (
	CategoryCitations = "Citations"
	CategoryStats     = "Statistics"
	CategoryQuotes    = "Expert Quotes"
	CategoryWordCount = "Word Count"
	CategoryImages    = "Images"
	CategoryStructure = "Structure"
)

// SourceCategories are the categories only a source bank can satisfy.
var SourceCategories = []string{CategoryCitations, CategoryStats, CategoryQuotes}

// MissingCategory records one remediation target.
type MissingCategory struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// QueueItem tracks one article under remediation.
type QueueItem struct {
	ArticleID   string            `json:"article_id"`
	Title       string            `json:"title"`
	Fingerprint string            `json:"fingerprint"`
	Score       int               `json:"score"`
	Status      QueueStatus       `json:"status"`
	Attempts    int               `json:"attempts"`
	Missing     []MissingCategory `json:"missing"`
	LastError   string            `json:"last_error"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MissingNames returns the category names of the item.
func (q QueueItem) MissingNames() []string {
	names := make([]string, 0, len(q.Missing))
	for _, m := range q.Missing {
		names = append(names, m.Category)
	}
	return names
}
