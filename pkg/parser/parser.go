package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/slug"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type Parser struct{}

// ParseArticle uses go-readability to pull the main content out of a full saved page
// and returns it as an unpublished Article ready for the content store.
func (p *Parser) ParseArticle(rawURL, rawHTML, id string) (*models.Article, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	rp := readability.NewParser()
	article, err := rp.Parse(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract article: %w", err)
	}

	title := NormalizeText(article.Title)
	if id == "" {
		id = slug.GenerateWithFallback(title, "article")
	}

	out := &models.Article{
		ID:       id,
		Title:    title,
		Handle:   slug.Generate(title),
		BodyHTML: strings.TrimSpace(article.Content),
	}
	if article.Image != "" {
		out.Image = &models.ImageRef{Src: article.Image, Alt: title}
	}
	return out, nil
}

// ParseFragment parses an article body as children of a synthetic <body>.
// Unlike a full document parse, nothing is relocated into <head>.
// The returned document's root selection is that body.
func ParseFragment(raw string) (*goquery.Document, error) {
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(raw), root)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// Render serializes the children of a fragment root back to HTML.
func Render(doc *goquery.Document) (string, error) {
	var buf bytes.Buffer
	for _, root := range doc.Nodes {
		for c := root.FirstChild; c != nil; c = c.NextSibling {
			if err := html.Render(&buf, c); err != nil {
				return "", fmt.Errorf("failed to render HTML: %w", err)
			}
		}
	}
	return buf.String(), nil
}

// NormalizeText cleans up a string by trimming space and removing excess newlines.
func NormalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.Join(strings.Fields(scanner.Text()), " ")
		if line != "" {
			b.WriteString(line)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

// TextOf returns the visible text of a selection with element boundaries
// turned into spaces, so "<p>a</p><p>b</p>" reads as "a b" rather than "ab".
func TextOf(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeText(&b, n)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

var inline = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Code: true, atom.Em: true, atom.I: true,
	atom.Mark: true, atom.Small: true, atom.Span: true, atom.Strong: true, atom.Sub: true, atom.Sup: true,
}

func writeText(b *strings.Builder, n *html.Node) {
	block := false
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
		block = !inline[n.DataAtom]
	}
	if block {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte(' ')
	}
}

// A <p> inside any of these is not body prose.
const nonProse = "blockquote, li, table, footer, figure, aside"

// Paragraphs returns the normalized text of every non-empty body paragraph in document order.
func Paragraphs(doc *goquery.Document) []string {
	var out []string
	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		if s.ParentsFiltered(nonProse).Length() > 0 {
			return
		}
		if text := TextOf(s); text != "" {
			out = append(out, text)
		}
	})
	return out
}

// FirstParagraph returns the first body paragraph selection, or an empty selection.
func FirstParagraph(doc *goquery.Document) *goquery.Selection {
	return doc.Find("p").FilterFunction(func(i int, s *goquery.Selection) bool {
		return s.ParentsFiltered(nonProse).Length() == 0 && TextOf(s) != ""
	}).First()
}

// WalkText calls fn for every text node under the selection, skipping script and style.
func WalkText(s *goquery.Selection, fn func(n *html.Node)) {
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			fn(n)
			return
		}
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			walk(c)
			c = next
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
}
