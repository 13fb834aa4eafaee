package classifier

import (
	"strings"

	"github.com/dtnitsch/content-gate/pkg/analytics"
	"github.com/dtnitsch/content-gate/pkg/parser"
)

// closingParagraphs is how many trailing paragraphs make up the conclusion.
const closingParagraphs = 2

// DriftResult reports whether the opening and closing paragraphs stay on topic.
type DriftResult struct {
	Keywords  []string
	Opening   string
	Closing   []string
	OpeningOK bool
	ClosingOK bool
}

// Drifted is true when the opening or the conclusion never mentions a topic keyword.
// A body without paragraphs, or a title without keywords, cannot drift.
func (d DriftResult) Drifted() bool {
	if len(d.Keywords) == 0 || d.Opening == "" {
		return false
	}
	return !d.OpeningOK || !d.ClosingOK
}

// Drift checks the first paragraph and the final two paragraphs of html
// against the keywords of title.
func Drift(title, html string, stop analytics.Stopwords) DriftResult {
	res := DriftResult{Keywords: stems(TitleKeywords(title, stop))}
	doc, err := parser.ParseFragment(html)
	if err != nil {
		return res
	}
	paragraphs := parser.Paragraphs(doc)
	if len(paragraphs) == 0 {
		return res
	}

	res.Opening = paragraphs[0]
	start := len(paragraphs) - closingParagraphs
	if start < 0 {
		start = 0
	}
	res.Closing = paragraphs[start:]

	res.OpeningOK = analytics.ContainsAny(res.Opening, res.Keywords)
	res.ClosingOK = analytics.ContainsAny(strings.Join(res.Closing, " "), res.Keywords)
	return res
}

// stems trims a plural "s" so "chickens" in a title matches "chicken" in the body.
func stems(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		if len(kw) > KeywordMinLen+1 && strings.HasSuffix(kw, "s") && !strings.HasSuffix(kw, "ss") {
			kw = strings.TrimSuffix(kw, "s")
		}
		out[i] = kw
	}
	return out
}
