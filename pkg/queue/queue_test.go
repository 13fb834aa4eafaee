package queue

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dtnitsch/content-gate/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestQueue(t *testing.T, maxAttempts int) (*Queue, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := New(maxAttempts)
	q.SetClock(clock.now)
	return q, clock
}

func article(id, body string) models.Article {
	return models.Article{ID: id, Title: "Backyard Chicken Coop Basics", BodyHTML: body}
}

var wordGap = []models.MissingCategory{{Category: models.CategoryWordCount, Severity: models.SeverityCritical}}

func TestFailThreeTimesEndsSkipped(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	q.Enqueue(article("coop", "<p>v1</p>"), wordGap, 40)

	for attempt := 1; attempt <= 3; attempt++ {
		it, err := q.Next()
		if err != nil {
			t.Fatalf("attempt %d: Next: %v", attempt, err)
		}
		if it.Attempts != attempt {
			t.Errorf("attempt %d: Attempts = %d", attempt, it.Attempts)
		}
		if err := q.Fail("coop", errors.New("timeout")); err != nil {
			t.Fatalf("attempt %d: Fail: %v", attempt, err)
		}
	}

	it, _ := q.Get("coop")
	if it.Status != models.StatusSkipped {
		t.Errorf("status = %s, want skipped", it.Status)
	}
	if it.LastError != "timeout" {
		t.Errorf("LastError = %q", it.LastError)
	}
	if _, err := q.Next(); !errors.Is(err, ErrEmpty) {
		t.Errorf("Next after skip: err = %v, want ErrEmpty", err)
	}
}

func TestFailRetriesBelowCap(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	q.Enqueue(article("coop", "<p>v1</p>"), wordGap, 40)

	q.Next()
	q.Fail("coop", errors.New("boom"))
	it, _ := q.Get("coop")
	if it.Status != models.StatusFailed {
		t.Fatalf("status = %s, want failed", it.Status)
	}

	it, err := q.Next()
	if err != nil || it.ArticleID != "coop" || it.Attempts != 2 {
		t.Errorf("retry Next = %+v, %v", it, err)
	}
}

func TestNextPassesOverSkippedIDs(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	q.Enqueue(article("a", "<p>a</p>"), nil, 10)
	q.Enqueue(article("b", "<p>b</p>"), nil, 10)

	q.Next()
	q.Fail("a", errors.New("boom"))

	it, err := q.Next("a")
	if err != nil || it.ArticleID != "b" {
		t.Fatalf("Next(a) = %+v, %v; want b", it, err)
	}
	q.Fail("b", errors.New("boom"))

	if _, err := q.Next("a", "b"); !errors.Is(err, ErrEmpty) {
		t.Errorf("Next(a, b) err = %v, want ErrEmpty", err)
	}
	if it, err := q.Next(); err != nil || it.ArticleID != "a" {
		t.Errorf("Next() = %+v, %v; want a", it, err)
	}
}

func TestNextBusy(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	q.Enqueue(article("a", "<p>a</p>"), nil, 10)
	q.Enqueue(article("b", "<p>b</p>"), nil, 10)

	first, err := q.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first.ArticleID != "a" {
		t.Errorf("first = %s, want a", first.ArticleID)
	}
	if _, err := q.Next(); !errors.Is(err, ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}

	counts := q.Counts()
	if counts[models.StatusInProgress] != 1 || counts[models.StatusPending] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestEnqueueDedupe(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	a := article("coop", "<p>v1</p>")

	if _, added := q.Enqueue(a, wordGap, 40); !added {
		t.Fatal("first enqueue not added")
	}

	t.Run("active item is refreshed", func(t *testing.T) {
		it, added := q.Enqueue(a, nil, 55)
		if added {
			t.Error("duplicate enqueue added an item")
		}
		if it.Score != 55 || len(it.Missing) != 0 {
			t.Errorf("item not refreshed: %+v", it)
		}
		if len(q.Items) != 1 {
			t.Errorf("items = %d, want 1", len(q.Items))
		}
	})

	q.Next()
	if err := q.Complete("coop", Fingerprint(a)); err != nil {
		t.Fatal(err)
	}

	t.Run("same revision after done is a no-op", func(t *testing.T) {
		if _, added := q.Enqueue(a, wordGap, 40); added {
			t.Error("re-enqueue of a finished revision was added")
		}
		it, _ := q.Get("coop")
		if it.Status != models.StatusDone {
			t.Errorf("status = %s, want done", it.Status)
		}
	})

	t.Run("new revision reopens", func(t *testing.T) {
		it, added := q.Enqueue(article("coop", "<p>v2</p>"), wordGap, 30)
		if !added || it.Status != models.StatusPending || it.Attempts != 0 {
			t.Errorf("Enqueue = %+v, %v", it, added)
		}
		if len(q.Items) != 1 {
			t.Errorf("items = %d, want 1", len(q.Items))
		}
	})
}

func TestTransitionsRequireInProgress(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	q.Enqueue(article("coop", "<p>v1</p>"), nil, 10)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"complete pending", func() error { return q.Complete("coop", "") }, ErrInvalidTransition},
		{"fail pending", func() error { return q.Fail("coop", errors.New("x")) }, ErrInvalidTransition},
		{"needs sources pending", func() error { return q.NeedsSources("coop", nil) }, ErrInvalidTransition},
		{"complete unknown", func() error { return q.Complete("nope", "") }, ErrNotFound},
		{"skip unknown", func() error { return q.Skip("nope", "gone") }, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNeedsSourcesReopen(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	q.Enqueue(article("coop", "<p>v1</p>"), nil, 10)
	q.Next()

	if err := q.NeedsSources("coop", []string{models.CategoryCitations}); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Next(); !errors.Is(err, ErrEmpty) {
		t.Errorf("parked item was selected: %v", err)
	}
	if n := q.ReopenNeedsSources(); n != 1 {
		t.Errorf("reopened %d, want 1", n)
	}
	it, err := q.Next()
	if err != nil || it.ArticleID != "coop" {
		t.Errorf("Next = %+v, %v", it, err)
	}
}

func TestSkipMissingTarget(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	q.Enqueue(article("coop", "<p>v1</p>"), nil, 10)
	q.Next()

	if err := q.Skip("coop", "article not found"); err != nil {
		t.Fatal(err)
	}
	if err := q.Skip("coop", "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second skip err = %v", err)
	}
}

func TestRecoverStale(t *testing.T) {
	q, clock := newTestQueue(t, 3)
	q.Enqueue(article("coop", "<p>v1</p>"), nil, 10)
	q.Next()

	clock.t = clock.t.Add(30 * time.Minute)
	if n := q.RecoverStale(time.Hour); n != 0 {
		t.Errorf("recovered %d fresh items", n)
	}

	clock.t = clock.t.Add(2 * time.Hour)
	if n := q.RecoverStale(time.Hour); n != 1 {
		t.Fatalf("recovered %d, want 1", n)
	}
	it, _ := q.Get("coop")
	if it.Status != models.StatusFailed || it.Attempts != 1 {
		t.Errorf("recovered item = %+v", it)
	}
}

func TestPruneKeepsFingerprints(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	done := article("done", "<p>d</p>")
	q.Enqueue(done, nil, 10)
	q.Enqueue(article("open", "<p>o</p>"), nil, 10)
	q.Next()
	q.Complete("done", Fingerprint(done))

	if n := q.Prune(); n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	if len(q.Items) != 1 || q.Items[0].ArticleID != "open" {
		t.Errorf("items = %+v", q.Items)
	}

	if _, added := q.Enqueue(done, nil, 10); added {
		t.Error("pruned revision was enqueued again")
	}
	if _, added := q.Enqueue(article("done", "<p>changed</p>"), nil, 10); !added {
		t.Error("changed revision of a pruned article was not enqueued")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue", "meta_fix_queue.json")
	s := NewStore(path, 3)

	q, err := s.Load()
	if err != nil {
		t.Fatalf("Load of missing snapshot: %v", err)
	}
	if len(q.Items) != 0 {
		t.Errorf("expected empty queue, got %d items", len(q.Items))
	}

	err = s.Update(func(q *Queue) error {
		q.Enqueue(article("coop", "<p>v1</p>"), wordGap, 40)
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	q, err = s.Load()
	if err != nil {
		t.Fatal(err)
	}
	it, ok := q.Get("coop")
	if !ok || it.Status != models.StatusPending || len(it.Missing) != 1 {
		t.Errorf("reloaded item = %+v", it)
	}

	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Error("lock file left behind")
	}
}

func TestStoreUpdateErrorDoesNotSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	s := NewStore(path, 3)

	boom := errors.New("boom")
	err := s.Update(func(q *Queue) error {
		q.Enqueue(article("coop", "<p>v1</p>"), nil, 1)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("snapshot written despite error")
	}
}

func TestStoreLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	if err := os.WriteFile(path+".lock", []byte("1"), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, 3)
	s.timeout = 100 * time.Millisecond
	err := s.Update(func(q *Queue) error { return nil })
	if err == nil {
		t.Error("expected lock timeout")
	}
}
