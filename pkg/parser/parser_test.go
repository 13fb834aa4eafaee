package parser

import (
	"reflect"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestParseFragmentRoundTrip(t *testing.T) {
	in := `<h2 id="faq">FAQ</h2><p>One <strong>bold</strong> word.</p>`
	doc, err := ParseFragment(in)
	if err != nil {
		t.Fatalf("ParseFragment: %v", err)
	}
	out, err := Render(doc)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != in {
		t.Errorf("round trip changed markup:\n got %s\nwant %s", out, in)
	}
}

func TestTextOf(t *testing.T) {
	doc, err := ParseFragment(`<p>a<strong>b</strong></p><p>c</p><script>var x;</script><ul><li>d</li></ul>`)
	if err != nil {
		t.Fatalf("ParseFragment: %v", err)
	}
	if got := TextOf(doc.Selection); got != "ab c d" {
		t.Errorf("TextOf = %q, want %q", got, "ab c d")
	}
}

func TestParagraphs(t *testing.T) {
	doc, err := ParseFragment(`<p>First.</p><blockquote><p>Quoted.</p></blockquote>` +
		`<ul><li><p>Listed.</p></li></ul><p>   </p><div><p>Last.</p></div>`)
	if err != nil {
		t.Fatalf("ParseFragment: %v", err)
	}
	if got, want := Paragraphs(doc), []string{"First.", "Last."}; !reflect.DeepEqual(got, want) {
		t.Errorf("Paragraphs = %v, want %v", got, want)
	}
	if got := TextOf(FirstParagraph(doc)); got != "First." {
		t.Errorf("FirstParagraph = %q", got)
	}
}

func TestWalkText(t *testing.T) {
	doc, err := ParseFragment(`<p>one <em>two</em></p><style>p{}</style>`)
	if err != nil {
		t.Fatalf("ParseFragment: %v", err)
	}
	var seen []string
	WalkText(doc.Selection, func(n *html.Node) {
		seen = append(seen, strings.TrimSpace(n.Data))
	})
	if want := []string{"one", "two"}; !reflect.DeepEqual(seen, want) {
		t.Errorf("WalkText saw %v, want %v", seen, want)
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("  Backyard \n\n  Chicken\tCoop  "); got != "Backyard Chicken Coop" {
		t.Errorf("NormalizeText = %q", got)
	}
}

func TestParseArticle(t *testing.T) {
	page := `<html><head><title>Backyard Chicken Coop Basics</title></head><body>
<article><h1>Backyard Chicken Coop Basics</h1>
<p>` + strings.Repeat("A dry, draft-free coop keeps backyard chickens healthy through every season. ", 12) + `</p>
<p>` + strings.Repeat("Give each hen enough floor space, roosting bars and a clean nesting box. ", 12) + `</p>
</article></body></html>`

	var p Parser
	a, err := p.ParseArticle("https://example.com/coops", page, "")
	if err != nil {
		t.Fatalf("ParseArticle: %v", err)
	}
	if a.Title != "Backyard Chicken Coop Basics" {
		t.Errorf("Title = %q", a.Title)
	}
	if a.ID != "backyard-chicken-coop-basics" {
		t.Errorf("ID = %q", a.ID)
	}
	if !strings.Contains(a.BodyHTML, "draft-free coop") {
		t.Errorf("body lost content: %s", a.BodyHTML)
	}
}
