package classifier

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/content-gate/pkg/analytics"
	"github.com/dtnitsch/content-gate/pkg/parser"
	"github.com/dtnitsch/content-gate/pkg/rubric"
)

// RemoveOffTopic deletes paragraphs and list items that contain an unprotected
// off-topic phrase, and whole sections whose heading contains a heading phrase.
// Markup that cannot be parsed is returned unchanged.
func RemoveOffTopic(html, title string, t rubric.Tables) string {
	if t.Exempt(t.CategoryOf(title)) {
		return html
	}
	doc, err := parser.ParseFragment(html)
	if err != nil {
		return html
	}
	if !removeOffTopic(doc, title, t) {
		return html
	}
	out, err := parser.Render(doc)
	if err != nil {
		return html
	}
	return out
}

func removeOffTopic(doc *goquery.Document, title string, t rubric.Tables) bool {
	keywords := TitleKeywords(title, analytics.NewStopwords(t.TitleStopwords...))
	hit := func(s *goquery.Selection, phrases []string) bool {
		text := strings.ToLower(parser.TextOf(s))
		for _, p := range phrases {
			if strings.Contains(text, p) && !protected(p, title, keywords) {
				return true
			}
		}
		return false
	}

	changed := false
	doc.Find("h2, h3").Each(func(i int, h *goquery.Selection) {
		if !hit(h, t.OffTopic.HeadingPhrases) {
			return
		}
		h.NextUntil("h2, h3").Remove()
		h.Remove()
		changed = true
	})

	doc.Find("p, li").Each(func(i int, s *goquery.Selection) {
		if hit(s, t.OffTopic.Phrases) {
			s.Remove()
			changed = true
		}
	})

	if changed {
		doc.Find("ul, ol").Each(func(i int, list *goquery.Selection) {
			if list.Find("li").Length() == 0 {
				list.Remove()
			}
		})
	}
	return changed
}
