package remediate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/analyzer"
	"github.com/dtnitsch/content-gate/pkg/db"
	"github.com/dtnitsch/content-gate/pkg/fixer"
	"github.com/dtnitsch/content-gate/pkg/queue"
	"github.com/dtnitsch/content-gate/pkg/report"
	"github.com/dtnitsch/content-gate/pkg/rubric"
	"github.com/dtnitsch/content-gate/pkg/sourcebank"
	"github.com/dtnitsch/content-gate/pkg/storage"
)

const chickenBank = `
topics:
  chicken coop:
    sources:
      - {name: CDC, url: "https://www.cdc.gov/healthy-pets/backyard-poultry.html", description: Backyard Poultry}
      - {name: USDA APHIS, url: "https://www.aphis.usda.gov/livestock-poultry-disease/avian/defend-the-flock", description: Defend the Flock}
      - {name: University of Minnesota Extension, url: "https://extension.umn.edu/poultry/raising-chickens", description: Raising Chickens}
      - {name: Penn State Extension, url: "https://extension.psu.edu/poultry-housing", description: Poultry Housing}
      - {name: Oregon State University Extension, url: "https://extension.oregonstate.edu/animals-livestock/poultry", description: Poultry}
      - {name: Merck Veterinary Manual, url: "https://www.merckvetmanual.com/poultry", description: Poultry Health}
    stats:
      - stat: "About 60% of flock owners keep fewer than ten hens."
      - stat: "Predators cause over 40% of reported flock losses."
      - stat: "A laying hen eats about 1.5 pounds of feed per week."
    quotes:
      - {quote: "Clean, dry bedding prevents most respiratory problems.", speaker: Dr. Ana Ruiz, title: Poultry Veterinarian}
      - {quote: "Secure latches matter more than thick walls.", speaker: Tom Hale, org: State Extension}
`

const coopID = "backyard-chicken-coop-basics"

type harness struct {
	runner *Runner
	rerun  func() *Runner // a runner for the next invocation, sharing queue and store
	queue  *queue.Store
	store  *storage.FileStore
	cfg    models.Config
}

func newHarness(t *testing.T, store ContentStore, bank fixer.SourceLookup, opts ...Option) *harness {
	t.Helper()
	cfg := models.DefaultConfig()
	tables := rubric.Default()

	fs, err := storage.NewFileStore(filepath.Join(t.TempDir(), "articles"))
	if err != nil {
		t.Fatal(err)
	}
	if store == nil {
		store = fs
	}

	qs := queue.NewStore(filepath.Join(t.TempDir(), "queue.json"), cfg.MaxAttempts)
	rerun := func() *Runner {
		return NewRunner(qs, store, report.New(cfg, tables), fixer.New(cfg, tables, bank), opts...)
	}
	return &harness{runner: rerun(), rerun: rerun, queue: qs, store: fs, cfg: cfg}
}

func chickenArticle(t *testing.T) models.Article {
	t.Helper()
	body, err := os.ReadFile("../../pkg/fixer/testdata/chicken_coop.html")
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return models.Article{ID: coopID, Title: "Backyard Chicken Coop Basics", BodyHTML: string(body)}
}

func (h *harness) enqueue(t *testing.T, a models.Article) {
	t.Helper()
	err := h.queue.Update(func(q *queue.Queue) error {
		q.Enqueue(a, nil, 0)
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func (h *harness) item(t *testing.T, id string) models.QueueItem {
	t.Helper()
	q, err := h.queue.Load()
	if err != nil {
		t.Fatal(err)
	}
	it, ok := q.Get(id)
	if !ok {
		t.Fatalf("item %s not in queue", id)
	}
	return it
}

func loadBank(t *testing.T) *sourcebank.Bank {
	t.Helper()
	b, err := sourcebank.Parse([]byte(chickenBank), "yaml")
	if err != nil {
		t.Fatalf("bank: %v", err)
	}
	return b
}

func TestRunOnceRemediates(t *testing.T) {
	ctx := context.Background()

	history, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer history.Close()
	runID, err := history.StartRun("queue run")
	if err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, nil, loadBank(t), WithHistory(history, runID))
	a := chickenArticle(t)
	if err := h.store.Put(ctx, a); err != nil {
		t.Fatal(err)
	}
	h.enqueue(t, a)

	res, err := h.runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Err != nil || res.Status != models.StatusDone {
		t.Fatalf("result = %s, %v", res.Status, res.Err)
	}
	if res.Before.Score.Value >= 60 {
		t.Errorf("score before = %d, want < 60", res.Before.Score.Value)
	}

	stored, err := h.store.Get(ctx, coopID)
	if err != nil {
		t.Fatal(err)
	}
	if words := analyzer.WordCount(stored.BodyHTML); words < 1800 {
		t.Errorf("stored body has %d words, want >= 1800", words)
	}
	if stored.Title != a.Title {
		t.Errorf("title changed to %q", stored.Title)
	}

	it := h.item(t, coopID)
	if it.Fingerprint != queue.Fingerprint(stored) {
		t.Error("queue fingerprint does not match the written revision")
	}

	// The written revision is already handled.
	err = h.queue.Update(func(q *queue.Queue) error {
		if _, added := q.Enqueue(stored, nil, 0); added {
			t.Error("remediated revision was enqueued again")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	sum, err := history.RunSummary(runID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Reports != 2 || sum.Transitions[models.StatusDone] != 1 || sum.Transitions[models.StatusInProgress] != 1 {
		t.Errorf("summary = %+v", sum)
	}

	if _, err := h.runner.RunOnce(ctx); !errors.Is(err, queue.ErrEmpty) {
		t.Errorf("second RunOnce err = %v, want ErrEmpty", err)
	}
}

func TestRunOnceNeedsSources(t *testing.T) {
	ctx := context.Background()
	var noBank *sourcebank.Bank
	h := newHarness(t, nil, noBank)

	a := chickenArticle(t)
	h.store.Put(ctx, a)
	h.enqueue(t, a)

	res, err := h.runner.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Status != models.StatusNeedsSources || !errors.Is(res.Err, fixer.ErrNeedsSources) {
		t.Errorf("result = %s, %v", res.Status, res.Err)
	}

	stored, _ := h.store.Get(ctx, coopID)
	if stored.BodyHTML != a.BodyHTML {
		t.Error("body was written although sources were missing")
	}
}

func TestRunOnceMissingArticleSkips(t *testing.T) {
	h := newHarness(t, nil, loadBank(t))
	h.enqueue(t, models.Article{ID: "deleted-post", Title: "Gone"})

	res, err := h.runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Status != models.StatusSkipped || !errors.Is(res.Err, storage.ErrArticleNotFound) {
		t.Errorf("result = %s, %v", res.Status, res.Err)
	}
}

// flakyStore fails every call with a transport error.
type flakyStore struct{ calls int }

var errTransport = errors.New("connection reset by peer")

func (f *flakyStore) Get(ctx context.Context, id string) (models.Article, error) {
	f.calls++
	return models.Article{}, errTransport
}

func (f *flakyStore) UpdateBody(ctx context.Context, id, body string) error {
	f.calls++
	return errTransport
}

func TestTransportFailuresEndSkipped(t *testing.T) {
	flaky := &flakyStore{}
	h := newHarness(t, flaky, loadBank(t))
	h.enqueue(t, chickenArticle(t))

	for run := 1; run <= h.cfg.MaxAttempts; run++ {
		results, err := h.rerun().RunAll(context.Background(), 0)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if len(results) != 1 {
			t.Fatalf("run %d processed %d items, want 1", run, len(results))
		}
		want := models.StatusFailed
		if run == h.cfg.MaxAttempts {
			want = models.StatusSkipped
		}
		if results[0].Status != want {
			t.Errorf("run %d status = %s, want %s", run, results[0].Status, want)
		}
	}

	it := h.item(t, coopID)
	if it.Status != models.StatusSkipped || it.Attempts != h.cfg.MaxAttempts {
		t.Errorf("item = %s after %d attempts", it.Status, it.Attempts)
	}
	if it.LastError != errTransport.Error() {
		t.Errorf("LastError = %q", it.LastError)
	}
	if flaky.calls != h.cfg.MaxAttempts {
		t.Errorf("store called %d times", flaky.calls)
	}

	results, err := h.rerun().RunAll(context.Background(), 0)
	if err != nil || len(results) != 0 {
		t.Errorf("run after skip = %v, %v", results, err)
	}
}

func TestRunAllRetriesFailedItemOnNextRun(t *testing.T) {
	flaky := &flakyStore{}
	h := newHarness(t, flaky, loadBank(t))
	h.enqueue(t, chickenArticle(t))

	results, err := h.runner.RunAll(context.Background(), 0)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 1 || results[0].Status != models.StatusFailed {
		t.Fatalf("results = %+v, want one failed attempt", results)
	}
	if _, err := h.runner.RunOnce(context.Background()); !errors.Is(err, queue.ErrEmpty) {
		t.Errorf("same runner RunOnce err = %v, want ErrEmpty", err)
	}
	if it := h.item(t, coopID); it.Status != models.StatusFailed || it.Attempts != 1 {
		t.Errorf("item = %s after %d attempts", it.Status, it.Attempts)
	}
	if flaky.calls != 1 {
		t.Errorf("store called %d times", flaky.calls)
	}
}

func TestRunOnceBusy(t *testing.T) {
	h := newHarness(t, nil, loadBank(t))
	h.enqueue(t, models.Article{ID: "a", Title: "A"})
	h.enqueue(t, models.Article{ID: "b", Title: "B"})

	err := h.queue.Update(func(q *queue.Queue) error {
		_, err := q.Next()
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.runner.RunOnce(context.Background()); !errors.Is(err, queue.ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
}

func TestRunAllEmpty(t *testing.T) {
	h := newHarness(t, nil, loadBank(t))
	results, err := h.runner.RunAll(context.Background(), 5)
	if err != nil || len(results) != 0 {
		t.Errorf("RunAll on empty queue = %v, %v", results, err)
	}
}
