package fixer

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/analytics"
	"github.com/dtnitsch/content-gate/pkg/analyzer"
	"github.com/dtnitsch/content-gate/pkg/classifier"
	"github.com/dtnitsch/content-gate/pkg/detector"
	"github.com/dtnitsch/content-gate/pkg/parser"
	"github.com/dtnitsch/content-gate/pkg/rubric"
	"github.com/dtnitsch/content-gate/pkg/slug"
	xhtml "golang.org/x/net/html"
)

// rewrite parses body, lets fn mutate it and renders the result.
// When fn reports no change the input is returned byte for byte.
func rewrite(body string, fn func(doc *goquery.Document) bool) (string, error) {
	doc, err := parser.ParseFragment(body)
	if err != nil {
		return "", err
	}
	if !fn(doc) {
		return body, nil
	}
	return parser.Render(doc)
}

var percentRe = regexp.MustCompile(`%([0-9A-Fa-f]{2})`)

// decodeText undoes percent-encoding and HTML entities until nothing changes.
// Escapes that would decode to control characters are left alone.
func decodeText(s string) string {
	// Every pass that changes s makes it shorter.
	for {
		next := percentRe.ReplaceAllStringFunc(s, func(m string) string {
			b, err := strconv.ParseUint(m[1:], 16, 8)
			if err != nil || b < 0x20 || b > 0x7e {
				return m
			}
			return string(rune(b))
		})
		next = html.UnescapeString(next)
		if next == s {
			return s
		}
		s = next
	}
}

// DecodeEncoding decodes stray percent-escapes and entities in text and in alt/title
// attributes. Link targets are left untouched. Elements emptied by the cleanup are removed.
func DecodeEncoding(body string) (string, error) {
	return rewrite(body, func(doc *goquery.Document) bool {
		changed := false
		parser.WalkText(doc.Selection, func(n *xhtml.Node) {
			if d := decodeText(n.Data); d != n.Data {
				n.Data = d
				changed = true
			}
		})
		doc.Find("[alt], [title]").Each(func(i int, s *goquery.Selection) {
			for _, attr := range []string{"alt", "title"} {
				if v, ok := s.Attr(attr); ok {
					if d := decodeText(v); d != v {
						s.SetAttr(attr, d)
						changed = true
					}
				}
			}
		})
		if removeEmpty(doc) {
			changed = true
		}
		return changed
	})
}

// removeEmpty drops list items, lists and paragraphs that carry no text and no media.
func removeEmpty(doc *goquery.Document) bool {
	changed := false
	empty := func(i int, s *goquery.Selection) bool {
		return parser.TextOf(s) == "" && s.Find("img, iframe, video, picture").Length() == 0
	}
	if li := doc.Find("li").FilterFunction(empty); li.Length() > 0 {
		li.Remove()
		changed = true
	}
	if lists := doc.Find("ul, ol").FilterFunction(func(i int, s *goquery.Selection) bool {
		return s.Find("li").Length() == 0
	}); lists.Length() > 0 {
		lists.Remove()
		changed = true
	}
	if p := doc.Find("p").FilterFunction(empty); p.Length() > 0 {
		p.Remove()
		changed = true
	}
	return changed
}

var (
	protocolRe     = regexp.MustCompile(`(?i)href=(["'])\s*(https?):/{0,2}`)
	brokenAnchorRe = regexp.MustCompile(`(?i)<a\s+href=["']\s*https?:>([^<]*)</a>`)
	strayBrokenRe  = regexp.MustCompile(`(?i)https?:>`)
	liSpaceRe      = regexp.MustCompile(`(?i)(?:%20)+\s*(</?li\b)`)
)

// RepairLinks fixes malformed protocol fragments in href values, unwraps anchors whose
// target was truncated to "https:>", and collapses encoded whitespace before list tags.
func RepairLinks(body string) string {
	out := brokenAnchorRe.ReplaceAllString(body, "$1")
	out = strayBrokenRe.ReplaceAllString(out, "")
	out = protocolRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := protocolRe.FindStringSubmatch(m)
		return "href=" + sub[1] + strings.ToLower(sub[2]) + "://"
	})
	out = liSpaceRe.ReplaceAllString(out, "$1")
	return out
}

// RemoveOffTopic strips off-topic paragraphs, list items and heading sections.
func RemoveOffTopic(body, title string, t rubric.Tables) string {
	return classifier.RemoveOffTopic(body, title, t)
}

var sentenceRe = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)\s*`)

// StripGeneric drops every sentence that contains a generic phrase.
func StripGeneric(body string, phrases []string) (string, error) {
	return rewrite(body, func(doc *goquery.Document) bool {
		changed := false
		parser.WalkText(doc.Selection, func(n *xhtml.Node) {
			if len(classifier.GenericPhrases(n.Data, phrases)) == 0 {
				return
			}
			var b strings.Builder
			for _, sentence := range sentenceRe.FindAllString(n.Data, -1) {
				if len(classifier.GenericPhrases(sentence, phrases)) == 0 {
					b.WriteString(sentence)
				}
			}
			n.Data = b.String()
			changed = true
		})
		if changed {
			removeEmpty(doc)
		}
		return changed
	})
}

// NormalizeCitations rewrites external link text that shows a raw URL or domain
// as "Name — Description".
func NormalizeCitations(body string) (string, error) {
	return rewrite(body, func(doc *goquery.Document) bool {
		changed := false
		doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
			href := s.AttrOr("href", "")
			if !analyzer.IsExternal(href) || !analyzer.LooksLikeURL(parser.TextOf(s)) {
				return
			}
			if text := CitationText(href, ""); text != "" {
				s.SetText(text)
				changed = true
			}
		})
		return changed
	})
}

// CitationText builds "Name — Description" for a link, using the URL path when
// description is empty.
func CitationText(href, description string) string {
	name := detector.Classify(href).Name
	if description == "" {
		description = detector.Describe(href)
	}
	switch {
	case name == "":
		return description
	case description == "":
		return name
	default:
		return name + " — " + description
	}
}

// yearReplacement stands in for removed year tokens.
const yearReplacement = "recent years"

// StripYears replaces four-digit years in visible text. Attributes and link targets are kept.
func StripYears(body string) (string, error) {
	return rewrite(body, func(doc *goquery.Document) bool {
		changed := false
		parser.WalkText(doc.Selection, func(n *xhtml.Node) {
			if analyzer.YearRe.MatchString(n.Data) {
				n.Data = analyzer.YearRe.ReplaceAllString(n.Data, yearReplacement)
				changed = true
			}
		})
		return changed
	})
}

// EnsureOpening prepends an opening paragraph built from the rubric sentences when the
// current opening falls outside the configured word window.
func EnsureOpening(body, topic string, cfg models.Config, sentences []string) (string, error) {
	return rewrite(body, func(doc *goquery.Document) bool {
		first := parser.FirstParagraph(doc)
		if first.Length() > 0 {
			n := len(strings.Fields(parser.TextOf(first)))
			if n >= cfg.OpeningMinWords && n <= cfg.OpeningMaxWords {
				return false
			}
		}

		target := cfg.OpeningMinWords + 5
		var parts []string
		words := 0
		for _, s := range sentences {
			s = strings.ReplaceAll(s, "{topic}", topic)
			n := len(strings.Fields(s))
			if words+n > cfg.OpeningMaxWords {
				break
			}
			parts = append(parts, s)
			words += n
			if words >= target {
				break
			}
		}
		if words < cfg.OpeningMinWords {
			return false
		}
		doc.Selection.PrependHtml("<p>" + html.EscapeString(strings.Join(parts, " ")) + "</p>")
		return true
	})
}

// EnsureGlossary adds a key-terms section built from the title keywords, unless one exists.
func EnsureGlossary(body, title string, t rubric.Tables) (string, error) {
	g := t.Glossary
	return rewrite(body, func(doc *goquery.Document) bool {
		if doc.Find("#"+g.ID).Length() > 0 {
			return false
		}
		exists := false
		doc.Find("h2, h3").EachWithBreak(func(i int, s *goquery.Selection) bool {
			exists = strings.EqualFold(parser.TextOf(s), g.Heading)
			return !exists
		})
		if exists {
			return false
		}

		topic := Topic(title)
		terms := classifier.TitleKeywords(title, analytics.NewStopwords(t.TitleStopwords...))
		for _, f := range g.FallbackTerms {
			if len(terms) >= 3 {
				break
			}
			terms = append(terms, strings.ToLower(f))
		}

		var b strings.Builder
		fmt.Fprintf(&b, `<h2 id="%s">%s</h2><ul>`, html.EscapeString(g.ID), html.EscapeString(g.Heading))
		for _, term := range terms {
			def := strings.NewReplacer("{term}", term, "{topic}", topic).Replace(g.Definition)
			fmt.Fprintf(&b, "<li><strong>%s</strong>: %s</li>", html.EscapeString(capitalize(term)), html.EscapeString(def))
		}
		b.WriteString("</ul>")
		insertBeforeSources(doc, b.String())
		return true
	})
}

// EnsureHeadingIDs gives every h2/h3 a unique kebab-case id. Valid ids are kept;
// collisions get a numeric suffix.
func EnsureHeadingIDs(body string) (string, error) {
	return rewrite(body, func(doc *goquery.Document) bool {
		reg := slug.NewRegistry()
		changed := false
		doc.Find("h2, h3").Each(func(i int, s *goquery.Selection) {
			current, _ := s.Attr("id")
			var id string
			if slug.IsKebab(current) {
				id = reg.Claim(current)
			} else {
				id = reg.Claim(slug.GenerateWithFallback(parser.TextOf(s), "section"))
			}
			if id != current {
				s.SetAttr("id", id)
				changed = true
			}
		})
		return changed
	})
}

// EnforceLinkRel makes every external link open in a new tab with rel nofollow noopener.
// Links to siteHost are internal and left alone.
func EnforceLinkRel(body, siteHost string) (string, error) {
	return rewrite(body, func(doc *goquery.Document) bool {
		changed := false
		doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
			href := s.AttrOr("href", "")
			if !analyzer.IsExternal(href) || isSiteLink(href, siteHost) {
				return
			}
			tokens := strings.Fields(s.AttrOr("rel", ""))
			added := false
			for _, want := range []string{"nofollow", "noopener"} {
				if !containsFold(tokens, want) {
					tokens = append(tokens, want)
					added = true
				}
			}
			if added {
				s.SetAttr("rel", strings.Join(tokens, " "))
				changed = true
			}
			if _, ok := s.Attr("target"); !ok {
				s.SetAttr("target", "_blank")
				changed = true
			}
		})
		return changed
	})
}

// Expand appends filler sections, in rubric order, while the body is below minWords.
// Sections already present or matching a generic phrase are skipped.
func Expand(body, topic string, minWords int, t rubric.Tables) (string, error) {
	return rewrite(body, func(doc *goquery.Document) bool {
		words := len(strings.Fields(parser.TextOf(doc.Selection)))
		if words >= minWords {
			return false
		}
		headings := make(map[string]bool)
		doc.Find("h2, h3").Each(func(i int, s *goquery.Selection) {
			headings[strings.ToLower(parser.TextOf(s))] = true
		})

		changed := false
		for _, sec := range t.Filler {
			if words >= minWords {
				break
			}
			if headings[strings.ToLower(sec.Heading)] {
				continue
			}
			text := sec.Heading
			var b strings.Builder
			fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(sec.Heading))
			for _, p := range sec.Paragraphs {
				p = strings.ReplaceAll(p, "{topic}", topic)
				text += " " + p
				fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(p))
			}
			if len(classifier.GenericPhrases(text, t.GenericPhrases)) > 0 {
				continue
			}
			insertBeforeSources(doc, b.String())
			words += len(strings.Fields(text))
			changed = true
		}
		return changed
	})
}

// Section headings written by InjectSources.
const (
	SourcesHeading    = "Sources"
	HighlightsHeading = "Research Highlights"
	InsightsHeading   = "Expert Insights"
)

// InjectSources adds bank citations to the Sources list, creating the section if needed,
// and adds statistics and quote sections when they are absent. Links already in the
// body are not repeated.
func InjectSources(body string, src models.TopicSources) (string, error) {
	return rewrite(body, func(doc *goquery.Document) bool {
		changed := false
		present := make(map[string]bool)
		doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
			present[normalizeURL(s.AttrOr("href", ""))] = true
		})

		if len(src.Stats) > 0 && !hasHeading(doc, HighlightsHeading) {
			var b strings.Builder
			fmt.Fprintf(&b, "<h2>%s</h2><ul>", HighlightsHeading)
			for _, st := range src.Stats {
				b.WriteString("<li>" + html.EscapeString(st.Text))
				if st.SourceURL != "" {
					fmt.Fprintf(&b, ` (<a href="%s">%s</a>)`, html.EscapeString(st.SourceURL), html.EscapeString(CitationText(st.SourceURL, "")))
					present[normalizeURL(st.SourceURL)] = true
				}
				b.WriteString("</li>")
			}
			b.WriteString("</ul>")
			insertBeforeSources(doc, b.String())
			changed = true
		}

		if len(src.Quotes) > 0 && !hasHeading(doc, InsightsHeading) {
			var b strings.Builder
			fmt.Fprintf(&b, "<h2>%s</h2>", InsightsHeading)
			for _, q := range src.Quotes {
				fmt.Fprintf(&b, "<blockquote><p>“%s”</p><footer>— %s</footer></blockquote>",
					html.EscapeString(strings.Trim(q.Text, `"“” `)), html.EscapeString(attribution(q)))
			}
			insertBeforeSources(doc, b.String())
			changed = true
		}

		var items []string
		for _, c := range src.Sources {
			key := normalizeURL(c.URL)
			if c.URL == "" || present[key] {
				continue
			}
			present[key] = true
			text := c.Name
			if c.Description != "" {
				text = c.Name + " — " + c.Description
			}
			if text == "" {
				text = CitationText(c.URL, "")
			}
			items = append(items, fmt.Sprintf(`<li><a href="%s">%s</a></li>`, html.EscapeString(c.URL), html.EscapeString(text)))
		}
		if len(items) == 0 {
			return changed
		}

		heading := sourcesHeading(doc)
		if heading.Length() == 0 {
			doc.Selection.AppendHtml(fmt.Sprintf("<h2>%s</h2><ul></ul>", SourcesHeading))
			heading = sourcesHeading(doc)
		}
		list := heading.NextUntil("h2, h3").Filter("ul, ol").First()
		if list.Length() == 0 {
			heading.AfterHtml("<ul></ul>")
			list = heading.Next()
		}
		list.AppendHtml(strings.Join(items, ""))
		return true
	})
}

func attribution(q models.Quote) string {
	parts := []string{q.Speaker}
	for _, p := range []string{q.Title, q.Org} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Topic is the phrase substituted for {topic} in rubric templates.
func Topic(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

func sourcesHeading(doc *goquery.Document) *goquery.Selection {
	return doc.Find("h2, h3").FilterFunction(func(i int, s *goquery.Selection) bool {
		text := strings.ToLower(parser.TextOf(s))
		return strings.Contains(text, "sources") || strings.Contains(text, "further reading") || strings.Contains(text, "references")
	}).First()
}

func insertBeforeSources(doc *goquery.Document, fragment string) {
	if h := sourcesHeading(doc); h.Length() > 0 {
		h.BeforeHtml(fragment)
		return
	}
	doc.Selection.AppendHtml(fragment)
}

func hasHeading(doc *goquery.Document, text string) bool {
	return doc.Find("h2, h3").FilterFunction(func(i int, s *goquery.Selection) bool {
		return strings.EqualFold(parser.TextOf(s), text)
	}).Length() > 0
}

func normalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimPrefix(strings.TrimPrefix(u, "https://"), "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimRight(u, "/")
}

func isSiteLink(href, siteHost string) bool {
	if siteHost == "" {
		return false
	}
	host := strings.SplitN(normalizeURL(href), "/", 2)[0]
	return host == strings.TrimPrefix(strings.ToLower(siteHost), "www.")
}

func containsFold(tokens []string, want string) bool {
	for _, t := range tokens {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
