// Package validator turns an article into a ValidationResult: structural counts from
// the analyzer, content-policy issues from the classifiers, and the derived sub-scores.
// A result is recomputed from the body on every call; nothing is cached between runs.
package validator

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/analytics"
	"github.com/dtnitsch/content-gate/pkg/analyzer"
	"github.com/dtnitsch/content-gate/pkg/classifier"
	"github.com/dtnitsch/content-gate/pkg/detector"
	"github.com/dtnitsch/content-gate/pkg/language"
	"github.com/dtnitsch/content-gate/pkg/rubric"
)

// Validator checks articles against one rubric profile. It is safe for concurrent use.
type Validator struct {
	cfg    models.Config
	tables rubric.Tables
	stop   analytics.Stopwords
	lang   *language.Detector
	logger *slog.Logger
}

type Option func(*Validator)

// WithLogger sets the logger used for debug traces.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithLanguage enables the language-mismatch warning.
func WithLanguage(d *language.Detector) Option {
	return func(v *Validator) { v.lang = d }
}

func New(cfg models.Config, tables rubric.Tables, opts ...Option) *Validator {
	v := &Validator{
		cfg:    cfg,
		tables: tables,
		stop:   analytics.NewStopwords(tables.TitleStopwords...),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Stopwords returns the stopword set used for title keywords.
func (v *Validator) Stopwords() analytics.Stopwords {
	return v.stop
}

// Validate analyzes the article body and collects every issue and warning.
func (v *Validator) Validate(a models.Article) models.ValidationResult {
	m := analyzer.Analyze(a.BodyHTML)
	res := models.ValidationResult{
		ArticleID: a.ID,
		Title:     a.Title,
		Category:  v.tables.CategoryOf(a.Title),
		Metrics:   m,
	}

	v.countFeaturedImage(&res, a.Image)
	v.externalSources(&res)
	v.sections(&res)
	res.HasCDNImages = v.hasCDNImage(res.ImageSources)
	if a.Image != nil && v.onCDN(a.Image.Src) {
		res.HasCDNImages = true
	}

	v.structuralIssues(&res)
	v.policyIssues(&res, a)
	v.topicFocus(&res)
	res.SpecificityScore = v.specificity(m.Text)
	v.warnings(&res, a)

	v.logger.Debug("validated article",
		"article_id", a.ID,
		"words", res.WordCount,
		"issues", len(res.Issues),
		"warnings", len(res.Warnings),
	)
	return res
}

// countFeaturedImage counts the featured image as one more unique image when the body does not repeat it.
func (v *Validator) countFeaturedImage(res *models.ValidationResult, img *models.ImageRef) {
	if img == nil || strings.TrimSpace(img.Src) == "" {
		return
	}
	for _, src := range res.ImageSources {
		if src == img.Src {
			return
		}
	}
	res.UniqueImageCount++
}

// externalSources drops links to the article's own site from the source count.
func (v *Validator) externalSources(res *models.ValidationResult) {
	if v.cfg.SiteHost == "" {
		return
	}
	kept := res.SourceURLs[:0:0]
	for _, href := range res.SourceURLs {
		u, err := url.Parse(href)
		if err == nil && strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), strings.TrimPrefix(v.cfg.SiteHost, "www.")) {
			continue
		}
		kept = append(kept, href)
	}
	res.SourceURLs = kept
	res.SourceLinks = len(kept)
}

func (v *Validator) sections(res *models.ValidationResult) {
	res.Sections = make(map[string]bool, len(v.tables.Sections))
	lowered := make([]string, len(res.Headings))
	for i, h := range res.Headings {
		lowered[i] = strings.ToLower(h)
	}
	for _, sec := range v.tables.Sections {
		found := false
		for _, h := range lowered {
			for _, kw := range sec.Keywords {
				if strings.Contains(h, kw) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		res.Sections[sec.Name] = found
		if found {
			res.FoundSections = append(res.FoundSections, sec.Name)
		} else {
			res.MissingSections = append(res.MissingSections, sec.Name)
		}
	}
	res.SectionScore = len(res.FoundSections)
}

func (v *Validator) hasCDNImage(srcs []string) bool {
	for _, src := range srcs {
		if v.onCDN(src) {
			return true
		}
	}
	return false
}

func (v *Validator) onCDN(src string) bool {
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, cdn := range v.cfg.CDNHosts {
		cdn = strings.ToLower(cdn)
		if host == cdn || strings.HasSuffix(host, "."+cdn) {
			return true
		}
	}
	return false
}

func (v *Validator) structuralIssues(res *models.ValidationResult) {
	add := func(kind models.IssueKind, format string, args ...any) {
		res.Issues = append(res.Issues, models.Issue{Kind: kind, Message: fmt.Sprintf(format, args...)})
	}

	if res.WordCount < v.cfg.MinWords {
		add(models.IssueWordCount, "word count %d below minimum %d", res.WordCount, v.cfg.MinWords)
	}
	if res.SectionScore < v.cfg.MinSections {
		add(models.IssueSections, "only %d of %d sections present, need %d", res.SectionScore, len(v.tables.Sections), v.cfg.MinSections)
	}
	if res.UniqueImageCount < v.cfg.MinImages {
		add(models.IssueImages, "only %d unique images, need %d", res.UniqueImageCount, v.cfg.MinImages)
	}
	if dup := res.ImageCount - countUnique(res.ImageSources); dup > 0 {
		add(models.IssueDuplicateImages, "%d duplicate images", dup)
	}
	if res.EmptyImageSrc > 0 {
		add(models.IssueEmptySrc, "%d images with empty src", res.EmptyImageSrc)
	}
	if res.SourceLinks < v.cfg.MinSources {
		add(models.IssueSources, "only %d source links, need %d", res.SourceLinks, v.cfg.MinSources)
	}
	if !res.HasSourcesHeader {
		add(models.IssueSources, "missing Sources section")
	}
	if len(res.EncodedSequences) > 0 {
		add(models.IssueEncoding, "URL-encoded content found: %s", strings.Join(res.EncodedSequences, ", "))
	}
	if res.BrokenLinks > 0 {
		add(models.IssueBrokenLink, "%d broken source links", res.BrokenLinks)
	}
	if res.RawURLLinks > 0 {
		add(models.IssueRawURL, "%d links show a raw URL as text", res.RawURLLinks)
	}
	if v.cfg.StrictYears && len(res.YearTokens) > 0 {
		add(models.IssueYear, "year references found: %s", strings.Join(res.YearTokens, ", "))
	}
}

func (v *Validator) policyIssues(res *models.ValidationResult, a models.Article) {
	res.GenericPhrases = classifier.GenericPhrases(res.Text, v.tables.GenericPhrases)
	switch {
	case len(res.GenericPhrases) >= 2:
		res.Issues = append(res.Issues, models.Issue{
			Kind:    models.IssueGeneric,
			Message: fmt.Sprintf("generic content: %s", strings.Join(res.GenericPhrases, "; ")),
		})
	case len(res.GenericPhrases) == 1:
		res.Warnings = append(res.Warnings, fmt.Sprintf("generic phrase: %s", res.GenericPhrases[0]))
	}

	res.Issues = append(res.Issues, classifier.Contamination(a.Title, res.Text, v.tables.Contamination)...)

	res.OffTopicPhrases = classifier.OffTopicPhrases(a.Title, res.Text, v.tables)
	if len(res.OffTopicPhrases) > 0 {
		res.Issues = append(res.Issues, models.Issue{
			Kind:    models.IssueOffTopic,
			Message: fmt.Sprintf("off-topic content: %s", strings.Join(res.OffTopicPhrases, ", ")),
		})
	}

	if drift := classifier.Drift(a.Title, a.BodyHTML, v.stop); drift.Drifted() {
		where := "conclusion"
		if !drift.OpeningOK {
			where = "opening"
		}
		res.Issues = append(res.Issues, models.Issue{
			Kind:    models.IssueDrift,
			Message: fmt.Sprintf("%s never mentions %s", where, strings.Join(drift.Keywords, ", ")),
		})
	}
}

// topicFocus scores how often the first three title keywords appear in the body.
func (v *Validator) topicFocus(res *models.ValidationResult) {
	keywords := classifier.TitleKeywords(res.Title, v.stop)
	res.TitleKeywords = keywords
	if len(keywords) > 3 {
		keywords = keywords[:3]
	}
	if len(keywords) == 0 {
		return
	}
	res.KeywordDensity = make(map[string]int, len(keywords))
	total := 0
	for _, kw := range keywords {
		n := analytics.CountOccurrences(res.Text, kw)
		res.KeywordDensity[kw] = n
		total += n
	}
	focus := total / len(keywords) / 3
	if limit := v.tables.Scoring.TopicFocusMax; focus > limit {
		focus = limit
	}
	res.TopicFocusScore = focus
}

var (
	unitRe  = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:inches|inch|feet|foot|ft|cm|mm|meters|lbs|lb|pounds|kg|grams|oz|ounces|cups|cup|gallons|gallon|liters|liter|degrees|square feet|sq ft|hours|hour|days|day|weeks|week)\b`)
	rangeRe = regexp.MustCompile(`(?i)\b\d+\s*(?:-|–|to)\s*\d+\s*(?:minutes|hours|days|weeks|months|years)\b`)
	kindsRe = regexp.MustCompile(`(?i)\b(?:varieties|types)\b`)
)

// specificity counts concrete-detail signals, 0-4.
func (v *Validator) specificity(text string) int {
	score := 0
	if len(unitRe.FindAllString(text, -1)) >= 3 {
		score++
	}
	if len(rangeRe.FindAllString(text, -1)) >= 2 {
		score++
	}
	authorities := 0
	for _, a := range v.tables.Authorities {
		authorities += strings.Count(text, a)
	}
	if authorities >= 2 {
		score++
	}
	if kindsRe.MatchString(text) {
		score++
	}
	return score
}

func (v *Validator) warnings(res *models.ValidationResult, a models.Article) {
	warn := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	if v.cfg.MaxWords > 0 && res.WordCount > v.cfg.MaxWords {
		warn("word count %d above maximum %d", res.WordCount, v.cfg.MaxWords)
	}
	if res.BlockquoteCount < v.cfg.MinBlockquotes {
		warn("only %d blockquotes, recommend %d", res.BlockquoteCount, v.cfg.MinBlockquotes)
	}
	if res.TableCount == 0 {
		warn("no comparison table")
	}
	if len(res.KeywordDensity) > 0 && res.TopicFocusScore == 0 {
		warn("low keyword density for %s", strings.Join(res.TitleKeywords, ", "))
	}
	if diff := res.OpenTags - res.CloseTags; diff > 2 || diff < -2 {
		warn("unbalanced tags: %d open, %d close", res.OpenTags, res.CloseTags)
	}
	if n := len([]rune(a.Title)); n > 70 {
		warn("title is %d characters, recommend at most 70", n)
	} else if n > 0 && n < 20 {
		warn("title is %d characters, recommend at least 20", n)
	}
	if res.ParagraphCount > 0 && (res.OpeningWords < v.cfg.OpeningMinWords || res.OpeningWords > v.cfg.OpeningMaxWords) {
		warn("opening paragraph has %d words, recommend %d-%d", res.OpeningWords, v.cfg.OpeningMinWords, v.cfg.OpeningMaxWords)
	}

	for _, href := range res.SourceURLs {
		if detector.Classify(href).Authoritative {
			res.AuthoritativeSources++
		}
	}
	if res.SourceLinks > 0 && res.AuthoritativeSources == 0 {
		warn("no authoritative (.gov, .edu or academic) sources")
	}

	if v.lang != nil {
		detected, ok := v.lang.Matches(res.Text)
		res.Language = strings.ToLower(detected)
		if !ok {
			warn("body language is %s, expected %s", strings.ToLower(detected), strings.ToLower(v.lang.Expected()))
		}
	}
}

func countUnique(srcs []string) int {
	seen := make(map[string]bool, len(srcs))
	for _, s := range srcs {
		seen[s] = true
	}
	return len(seen)
}
