package fixer

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/gate"
	"github.com/dtnitsch/content-gate/pkg/parser"
	"github.com/dtnitsch/content-gate/pkg/rubric"
	"github.com/dtnitsch/content-gate/pkg/scoring"
	"github.com/dtnitsch/content-gate/pkg/validator"
)

type staticBank struct {
	src models.TopicSources
}

func (b staticBank) Lookup(string) (models.TopicSources, bool) {
	return b.src, true
}

func chickenSources() models.TopicSources {
	return models.TopicSources{
		Sources: []models.Citation{
			{Name: "CDC", URL: "https://www.cdc.gov/healthy-pets/backyard-poultry.html", Description: "Backyard Poultry"},
			{Name: "USDA APHIS", URL: "https://www.aphis.usda.gov/livestock-poultry-disease/avian/defend-the-flock", Description: "Defend the Flock"},
			{Name: "University of Minnesota Extension", URL: "https://extension.umn.edu/poultry/raising-chickens", Description: "Raising Chickens"},
			{Name: "Penn State Extension", URL: "https://extension.psu.edu/poultry-housing", Description: "Poultry Housing"},
			{Name: "Oregon State University Extension", URL: "https://extension.oregonstate.edu/animals-livestock/poultry", Description: "Poultry"},
			{Name: "Merck Veterinary Manual", URL: "https://www.merckvetmanual.com/poultry", Description: "Poultry Health"},
		},
		Stats: []models.Statistic{
			{Text: "About 60% of flock owners keep fewer than ten hens."},
			{Text: "Predators cause over 40% of reported flock losses."},
			{Text: "A laying hen eats about 1.5 pounds of feed per week."},
		},
		Quotes: []models.Quote{
			{Text: "Clean, dry bedding prevents most respiratory problems.", Speaker: "Dr. Ana Ruiz", Title: "Poultry Veterinarian"},
			{Text: "Secure latches matter more than thick walls.", Speaker: "Tom Hale", Org: "State Extension"},
		},
	}
}

// must wraps a step result: must(t)(DecodeEncoding(in)).
func must(t *testing.T) func(string, error) string {
	return func(out string, err error) string {
		t.Helper()
		if err != nil {
			t.Fatalf("step failed: %v", err)
		}
		return out
	}
}

func parse(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := parser.ParseFragment(body)
	if err != nil {
		t.Fatalf("ParseFragment: %v", err)
	}
	return doc
}

func TestDecodeEncoding(t *testing.T) {
	in := `<p>Hello%20world &amp;amp; friends</p><ul><li>%20</li></ul><a href="https://x.com/a%20b">link</a>`
	out := must(t)(DecodeEncoding(in))

	if !strings.Contains(out, "<p>Hello world &amp; friends</p>") {
		t.Errorf("text not decoded: %s", out)
	}
	if strings.Contains(out, "<ul>") {
		t.Errorf("empty list kept: %s", out)
	}
	if !strings.Contains(out, `href="https://x.com/a%20b"`) {
		t.Errorf("link target modified: %s", out)
	}
	if again := must(t)(DecodeEncoding(out)); again != out {
		t.Errorf("not idempotent:\n%s\n%s", out, again)
	}
}

func TestDecodeEncodingDeepEscapes(t *testing.T) {
	out := must(t)(DecodeEncoding(`<p>Grade %2525252525252541 feed</p>`))
	if !strings.Contains(out, "<p>Grade A feed</p>") {
		t.Errorf("escapes not fully decoded: %s", out)
	}
	if again := must(t)(DecodeEncoding(out)); again != out {
		t.Errorf("not idempotent:\n%s\n%s", out, again)
	}
}

func TestRepairLinks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "missing slash", in: `<a href=" https:/cdc.gov">CDC</a>`, want: `<a href="https://cdc.gov">CDC</a>`},
		{name: "truncated target", in: `<p>See <a href="https:>CDC</a>.</p>`, want: `<p>See CDC.</p>`},
		{name: "encoded space before li", in: `<ul><li>Item%20</li></ul>`, want: `<ul><li>Item</li></ul>`},
		{name: "already valid", in: `<a href="https://cdc.gov">CDC</a>`, want: `<a href="https://cdc.gov">CDC</a>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepairLinks(tt.in)
			if got != tt.want {
				t.Errorf("RepairLinks = %s, want %s", got, tt.want)
			}
			if again := RepairLinks(got); again != got {
				t.Errorf("not idempotent: %s", again)
			}
		})
	}
}

func TestStripGeneric(t *testing.T) {
	in := `<p>Keep hens dry. This comprehensive guide provides tips. Clean weekly.</p>` +
		`<p>Whether you are a beginner, start small.</p>`
	out := must(t)(StripGeneric(in, rubric.Default().GenericPhrases))
	if want := `<p>Keep hens dry. Clean weekly.</p>`; out != want {
		t.Errorf("StripGeneric = %s, want %s", out, want)
	}
}

func TestNormalizeCitations(t *testing.T) {
	in := `<a href="https://www.cdc.gov/healthy-pets/backyard-poultry.html">cdc.gov</a>` +
		`<a href="/coops">coops.com</a>` +
		`<a href="https://extension.umn.edu/poultry">UMN Extension — Poultry</a>`
	out := must(t)(NormalizeCitations(in))

	doc := parse(t, out)
	texts := doc.Find("a").Map(func(i int, s *goquery.Selection) string { return s.Text() })
	want := []string{"CDC — Backyard Poultry", "coops.com", "UMN Extension — Poultry"}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("link %d text = %q, want %q", i, texts[i], want[i])
		}
	}
	if again := must(t)(NormalizeCitations(out)); again != out {
		t.Errorf("not idempotent: %s", again)
	}
}

func TestStripYears(t *testing.T) {
	out := must(t)(StripYears(`<p>In 2023, hens laid well.</p><a href="https://x.com/2023">2019 report</a>`))
	if strings.Contains(out, "In 2023") || strings.Contains(out, "2019") {
		t.Errorf("years kept in text: %s", out)
	}
	if !strings.Contains(out, "In recent years, hens") {
		t.Errorf("replacement missing: %s", out)
	}
	if !strings.Contains(out, `href="https://x.com/2023"`) {
		t.Errorf("link target modified: %s", out)
	}
}

func TestEnsureOpening(t *testing.T) {
	cfg := models.DefaultConfig()
	sentences := rubric.Default().Opening

	out := must(t)(EnsureOpening(`<p>Short intro about coops.</p>`, "backyard chicken coops", cfg, sentences))
	first := parser.TextOf(parser.FirstParagraph(parse(t, out)))
	n := len(strings.Fields(first))
	if n < cfg.OpeningMinWords || n > cfg.OpeningMaxWords {
		t.Errorf("opening has %d words: %q", n, first)
	}
	if !strings.Contains(first, "backyard chicken coops") {
		t.Errorf("opening does not mention the topic: %q", first)
	}
	if again := must(t)(EnsureOpening(out, "backyard chicken coops", cfg, sentences)); again != out {
		t.Errorf("second run inserted another opening")
	}

	ok := "<p>" + strings.TrimSpace(strings.Repeat("word ", 60)) + "</p>"
	if got := must(t)(EnsureOpening(ok, "x", cfg, sentences)); got != ok {
		t.Errorf("opening inside the window was replaced: %s", got)
	}
}

func TestEnsureGlossary(t *testing.T) {
	tables := rubric.Default()
	in := `<p>Body.</p><h2>Sources</h2><ul><li>x</li></ul>`
	out := must(t)(EnsureGlossary(in, "Backyard Chicken Coop Basics", tables))

	doc := parse(t, out)
	if doc.Find("#key-terms").Length() != 1 {
		t.Fatalf("glossary heading missing: %s", out)
	}
	if next := doc.Find("#key-terms").NextAllFiltered("h2").First().Text(); next != "Sources" {
		t.Errorf("glossary not placed before Sources, next heading %q", next)
	}
	if n := doc.Find("#key-terms + ul li").Length(); n != 3 {
		t.Errorf("glossary has %d terms, want 3", n)
	}
	if again := must(t)(EnsureGlossary(out, "Backyard Chicken Coop Basics", tables)); again != out {
		t.Errorf("not idempotent")
	}
}

func TestEnsureHeadingIDs(t *testing.T) {
	in := `<h2>FAQ</h2><h2>FAQ</h2><h3 id="Bad Id">Pro Tips</h3><h2 id="keep-me">Other</h2>`
	out := must(t)(EnsureHeadingIDs(in))

	ids := parse(t, out).Find("h2, h3").Map(func(i int, s *goquery.Selection) string {
		return s.AttrOr("id", "")
	})
	want := []string{"faq", "faq-2", "pro-tips", "keep-me"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("heading %d id = %q, want %q", i, ids[i], want[i])
		}
	}
	if again := must(t)(EnsureHeadingIDs(out)); again != out {
		t.Errorf("not idempotent")
	}
}

func TestEnforceLinkRel(t *testing.T) {
	in := `<a href="https://cdc.gov" rel="noopener">CDC</a>` +
		`<a href="https://shop.example.com/x">Shop</a>` +
		`<a href="/local">Local</a>`
	out := must(t)(EnforceLinkRel(in, "shop.example.com"))

	links := parse(t, out).Find("a")
	cdc := links.Eq(0)
	if rel := cdc.AttrOr("rel", ""); rel != "noopener nofollow" {
		t.Errorf("rel = %q, want %q", rel, "noopener nofollow")
	}
	if target := cdc.AttrOr("target", ""); target != "_blank" {
		t.Errorf("target = %q", target)
	}
	for i := 1; i < 3; i++ {
		if _, ok := links.Eq(i).Attr("rel"); ok {
			t.Errorf("link %d got a rel attribute", i)
		}
	}
	if again := must(t)(EnforceLinkRel(out, "shop.example.com")); again != out {
		t.Errorf("not idempotent")
	}
}

func TestExpand(t *testing.T) {
	tables := rubric.Default()
	in := `<p>Chicken coops need care.</p><h2>Sources</h2><ul><li>x</li></ul>`
	out := must(t)(Expand(in, "backyard chicken coops", 300, tables))

	doc := parse(t, out)
	if words := len(strings.Fields(parser.TextOf(doc.Selection))); words < 300 {
		t.Errorf("expanded body has %d words, want >= 300", words)
	}
	if last := doc.Find("h2").Last().Text(); last != "Sources" {
		t.Errorf("filler placed after Sources, last heading %q", last)
	}
	if found := genericPhrasesIn(t, out); len(found) != 0 {
		t.Errorf("filler introduced generic phrases: %v", found)
	}
	if again := must(t)(Expand(out, "backyard chicken coops", 300, tables)); again != out {
		t.Errorf("not idempotent")
	}
}

func genericPhrasesIn(t *testing.T, body string) []string {
	t.Helper()
	text := parser.TextOf(parse(t, body).Selection)
	var found []string
	for _, p := range rubric.Default().GenericPhrases {
		if strings.Contains(strings.ToLower(text), p) {
			found = append(found, p)
		}
	}
	return found
}

func TestInjectSources(t *testing.T) {
	in := `<p>Body.</p><h2>Sources</h2><ul><li><a href="https://www.cdc.gov/healthy-pets/backyard-poultry.html">CDC</a></li></ul>`
	out := must(t)(InjectSources(in, chickenSources()))

	doc := parse(t, out)
	if n := doc.Find("h2:contains('Sources') + ul li").Length(); n != 6 {
		t.Errorf("sources list has %d items, want 6", n)
	}
	headings := doc.Find("h2").Map(func(i int, s *goquery.Selection) string { return s.Text() })
	want := []string{HighlightsHeading, InsightsHeading, SourcesHeading}
	if strings.Join(headings, "|") != strings.Join(want, "|") {
		t.Errorf("headings = %v, want %v", headings, want)
	}
	if n := doc.Find("blockquote").Length(); n != 2 {
		t.Errorf("blockquotes = %d, want 2", n)
	}
	if again := must(t)(InjectSources(out, chickenSources())); again != out {
		t.Errorf("not idempotent")
	}
}

func TestFixNeedsSources(t *testing.T) {
	cfg := models.DefaultConfig()
	tables := rubric.Default()
	a := models.Article{ID: "coop", Title: "Backyard Chicken Coop Basics", BodyHTML: `<p>Backyard chicken coops need care.</p>`}
	res := validator.New(cfg, tables).Validate(a)

	out, err := New(cfg, tables, nil).Fix(a, res)
	if !errors.Is(err, ErrNeedsSources) {
		t.Fatalf("err = %v, want ErrNeedsSources", err)
	}
	if len(out.NeedsSources) == 0 || out.NeedsSources[0] != models.CategoryCitations {
		t.Errorf("NeedsSources = %v", out.NeedsSources)
	}
}

func TestFixEndToEnd(t *testing.T) {
	raw, err := os.ReadFile("testdata/chicken_coop.html")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	cfg := models.DefaultConfig()
	tables := rubric.Default()
	v := validator.New(cfg, tables)
	g := gate.New(cfg)
	scorer := scoring.New(tables.Scoring)

	a := models.Article{ID: "backyard-chicken-coop-basics", Title: "Backyard Chicken Coop Basics", BodyHTML: string(raw)}
	before := v.Validate(a)

	if before.WordCount != 900 {
		t.Fatalf("fixture has %d words, want 900", before.WordCount)
	}
	if score := scorer.Score(before).Value; score >= 60 {
		t.Errorf("score before fix = %d, want < 60", score)
	}
	decision := g.Evaluate(before)
	for _, name := range []string{models.CheckWordCount, models.CheckSources, models.CheckGeneric} {
		if c, _ := decision.Check(name); c.Pass {
			t.Errorf("check %s passed before fix", name)
		}
	}

	f := New(cfg, tables, staticBank{src: chickenSources()})
	out, err := f.Fix(a, before)
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}

	a.BodyHTML = out.HTML
	after := v.Validate(a)
	if after.WordCount < 1800 {
		t.Errorf("words after fix = %d, want >= 1800", after.WordCount)
	}
	if after.SourceLinks < 5 {
		t.Errorf("source links after fix = %d, want >= 5", after.SourceLinks)
	}
	if n := len(after.IssuesOf(models.IssueGeneric)); n != 0 {
		t.Errorf("generic issues after fix = %d", n)
	}
	if len(after.GenericPhrases) != 0 {
		t.Errorf("generic phrases left: %v", after.GenericPhrases)
	}
	if n := len(after.IssuesOf(models.IssueDrift)); n != 0 {
		t.Errorf("fix introduced drift: %v", after.IssuesOf(models.IssueDrift))
	}
	if len(after.Issues) >= len(before.Issues) {
		t.Errorf("issues did not decrease: %d -> %d", len(before.Issues), len(after.Issues))
	}

	again, err := f.Fix(a, after)
	if err != nil {
		t.Fatalf("second Fix: %v", err)
	}
	if again.Changed() {
		t.Errorf("second run changed the body, applied %v", again.Applied)
	}
}

func TestFixStripsYearsFromInjectedSources(t *testing.T) {
	raw, err := os.ReadFile("testdata/chicken_coop.html")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	cfg := models.DefaultConfig()
	tables := rubric.Default()
	v := validator.New(cfg, tables)

	src := chickenSources()
	src.Stats = append(src.Stats, models.Statistic{Text: "In 2021, 13% of US households kept backyard poultry."})
	src.Quotes = append(src.Quotes, models.Quote{Text: "Since 2019, coop kits have doubled in price.", Speaker: "Lee Park", Org: "Feed Store Co-op"})

	a := models.Article{ID: "backyard-chicken-coop-basics", Title: "Backyard Chicken Coop Basics", BodyHTML: string(raw)}
	f := New(cfg, tables, staticBank{src: src})
	out, err := f.Fix(a, v.Validate(a))
	if err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if strings.Contains(out.HTML, "2021") || strings.Contains(out.HTML, "2019") {
		t.Errorf("injected years kept in body")
	}
	if !strings.Contains(out.HTML, "In recent years, 13% of US households") {
		t.Errorf("statistic not injected with the year replaced")
	}

	a.BodyHTML = out.HTML
	after := v.Validate(a)
	if issues := after.IssuesOf(models.IssueYear); len(issues) != 0 {
		t.Errorf("year issues after fix: %v", issues)
	}

	again, err := f.Fix(a, after)
	if err != nil {
		t.Fatalf("second Fix: %v", err)
	}
	if again.Changed() {
		t.Errorf("second run changed the body, applied %v", again.Applied)
	}
}
