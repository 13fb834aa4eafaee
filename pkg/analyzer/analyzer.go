// Package analyzer extracts raw structural counts from an HTML article body.
// It never fails: malformed markup degrades to whatever the HTML5 parser recovers,
// and a missing feature is a zero count.
package analyzer

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/parser"
)

var (
	openTagRe  = regexp.MustCompile(`(?i)<([a-z][a-z0-9]*)\b[^>]*>`)
	closeTagRe = regexp.MustCompile(`(?i)</[a-z][a-z0-9]*\s*>`)
	attrURLRe  = regexp.MustCompile(`(?i)\b(href|src)\s*=\s*("[^"]*"|'[^']*')`)
	brokenRe   = regexp.MustCompile(`(?i)href\s*=\s*["']\s+https?:|https?:>`)
	rawURLText = regexp.MustCompile(`(?i)(^https?://|\b[\w-]+\.(com|org|net|io|gov|edu)\b)`)
	YearRe     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// voidElements never take a closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "source": true, "track": true, "wbr": true,
}

// encodedSequences are percent-escapes that should never show up in rendered text.
var encodedSequences = []string{"%20", "%3A", "%22", "%2F", "%3C", "%3E"}

var statPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+(?:\.\d+)?%`),
	regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:million|billion|trillion)`),
	regexp.MustCompile(`\$\d+(?:\.\d+)?`),
	regexp.MustCompile(`\d{1,3}(?:,\d{3})+`),
	regexp.MustCompile(`(?i)\b(?:approximately|about|around|over|under|nearly)\s+\d+`),
}

// Analyze parses rawHTML and returns its counts. The input is never modified.
func Analyze(rawHTML string) models.Metrics {
	m := models.Metrics{
		OpenTags:    countOpenTags(rawHTML),
		CloseTags:   len(closeTagRe.FindAllString(rawHTML, -1)),
		BrokenLinks: len(brokenRe.FindAllString(rawHTML, -1)),
	}

	// Link targets may legitimately carry escapes; only the rest of the markup is checked.
	stripped := attrURLRe.ReplaceAllString(rawHTML, "$1=\"\"")
	upper := strings.ToUpper(stripped)
	for _, seq := range encodedSequences {
		if strings.Contains(upper, seq) {
			m.EncodedSequences = append(m.EncodedSequences, seq)
		}
	}

	doc, err := parser.ParseFragment(rawHTML)
	if err != nil {
		return m
	}

	m.Text = parser.TextOf(doc.Selection)
	m.WordCount = len(strings.Fields(m.Text))
	m.YearTokens = YearRe.FindAllString(m.Text, -1)
	m.StatisticCount = countStatistics(m.Text)

	doc.Find("h2, h3").Each(func(i int, s *goquery.Selection) {
		text := parser.TextOf(s)
		m.Headings = append(m.Headings, text)
		if goquery.NodeName(s) == "h2" {
			m.H2Count++
		}
		lower := strings.ToLower(text)
		if strings.Contains(lower, "sources") || strings.Contains(lower, "further reading") || strings.Contains(lower, "references") {
			m.HasSourcesHeader = true
		}
	})

	seen := make(map[string]bool)
	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			m.EmptyImageSrc++
			return
		}
		m.ImageCount++
		m.ImageSources = append(m.ImageSources, src)
		if !seen[src] {
			seen[src] = true
			m.UniqueImageCount++
		}
	})

	m.TableCount = doc.Find("table").Length()
	m.BlockquoteCount = doc.Find("blockquote").Length()

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if IsExternal(href) {
			m.SourceLinks++
			m.SourceURLs = append(m.SourceURLs, href)
		}
		if LooksLikeURL(parser.TextOf(s)) {
			m.RawURLLinks++
		}
	})

	paragraphs := parser.Paragraphs(doc)
	m.ParagraphCount = len(paragraphs)
	if len(paragraphs) > 0 {
		m.OpeningWords = len(strings.Fields(paragraphs[0]))
	}

	return m
}

// IsExternal reports whether href is an absolute http(s) link.
func IsExternal(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// LooksLikeURL reports whether visible link text is a bare URL or domain.
func LooksLikeURL(text string) bool {
	return rawURLText.MatchString(strings.TrimSpace(text))
}

// WordCount counts the words of an HTML fragment's visible text.
func WordCount(rawHTML string) int {
	doc, err := parser.ParseFragment(rawHTML)
	if err != nil {
		return 0
	}
	return len(strings.Fields(parser.TextOf(doc.Selection)))
}

func countOpenTags(rawHTML string) int {
	n := 0
	for _, m := range openTagRe.FindAllStringSubmatch(rawHTML, -1) {
		if voidElements[strings.ToLower(m[1])] || strings.HasSuffix(m[0], "/>") {
			continue
		}
		n++
	}
	return n
}

func countStatistics(text string) int {
	n := 0
	for _, re := range statPatterns {
		n += len(re.FindAllString(text, -1))
	}
	return n
}
