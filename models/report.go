package models

// Metrics are the raw structural counts the analyzer extracts from an HTML body.
type Metrics struct {
	WordCount        int      `json:"word_count" yaml:"word_count"`
	Headings         []string `json:"headings,omitempty" yaml:"headings,omitempty"` // h2/h3 text, document order
	H2Count          int      `json:"h2_count" yaml:"h2_count"`
	ImageCount       int      `json:"image_count" yaml:"image_count"`
	UniqueImageCount int      `json:"unique_image_count" yaml:"unique_image_count"`
	EmptyImageSrc    int      `json:"empty_image_src" yaml:"empty_image_src"`
	ImageSources     []string `json:"image_sources,omitempty" yaml:"image_sources,omitempty"`
	TableCount       int      `json:"table_count" yaml:"table_count"`
	BlockquoteCount  int      `json:"blockquote_count" yaml:"blockquote_count"`
	SourceLinks      int      `json:"source_links" yaml:"source_links"` // anchors with an http(s) href
	SourceURLs       []string `json:"source_urls,omitempty" yaml:"source_urls,omitempty"`
	RawURLLinks      int      `json:"raw_url_links" yaml:"raw_url_links"` // anchors whose visible text is a domain/URL
	HasSourcesHeader bool     `json:"has_sources_section" yaml:"has_sources_section"`
	ParagraphCount   int      `json:"paragraph_count" yaml:"paragraph_count"`
	OpeningWords     int      `json:"opening_words" yaml:"opening_words"`
	StatisticCount   int      `json:"statistic_count" yaml:"statistic_count"`
	OpenTags         int      `json:"open_tags" yaml:"open_tags"`
	CloseTags        int      `json:"close_tags" yaml:"close_tags"`
	EncodedSequences []string `json:"encoded_sequences,omitempty" yaml:"encoded_sequences,omitempty"` // %20, %3A ... found in raw markup
	BrokenLinks      int      `json:"broken_links" yaml:"broken_links"`
	YearTokens       []string `json:"year_tokens,omitempty" yaml:"year_tokens,omitempty"`
	Text             string   `json:"-" yaml:"-"`
}

// IssueKind classifies a hard issue. Penalties and gate checks switch on it.
type IssueKind string

const (
	IssueGeneric         IssueKind = "generic"
	IssueContamination   IssueKind = "contamination"
	IssueOffTopic        IssueKind = "off_topic"
	IssueDrift           IssueKind = "drift"
	IssueEncoding        IssueKind = "encoding"
	IssueBrokenLink      IssueKind = "broken_link"
	IssueRawURL          IssueKind = "raw_url"
	IssueWordCount       IssueKind = "word_count"
	IssueSections        IssueKind = "sections"
	IssueImages          IssueKind = "images"
	IssueDuplicateImages IssueKind = "duplicate_images"
	IssueEmptySrc        IssueKind = "empty_src"
	IssueSources         IssueKind = "sources"
	IssueYear            IssueKind = "year"
)

// ContentPolicy reports whether the kind is a content-policy violation.
// Those block publication no matter how many gate checks pass.
func (k IssueKind) ContentPolicy() bool {
	switch k {
	case IssueGeneric, IssueContamination, IssueOffTopic, IssueDrift:
		return true
	}
	return false
}

// Issue is a hard failure found during validation.
type Issue struct {
	Kind    IssueKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
}

func (i Issue) String() string {
	return string(i.Kind) + ": " + i.Message
}

// ValidationResult is recomputed from the body on every run and never treated as authoritative state.
// Issues is empty if and only if the article is structurally valid.
type ValidationResult struct {
	ArticleID string `json:"article_id" yaml:"article_id"`
	Title     string `json:"title" yaml:"title"`
	Category  string `json:"category" yaml:"category"`

	Metrics `yaml:",inline"`

	Sections        map[string]bool `json:"sections" yaml:"sections"`
	FoundSections   []string        `json:"found_sections" yaml:"found_sections"`
	MissingSections []string        `json:"missing_sections" yaml:"missing_sections"`
	HasCDNImages    bool            `json:"has_cdn_images" yaml:"has_cdn_images"`

	GenericPhrases  []string       `json:"generic_phrases,omitempty" yaml:"generic_phrases,omitempty"`
	OffTopicPhrases []string       `json:"off_topic_phrases,omitempty" yaml:"off_topic_phrases,omitempty"`
	TitleKeywords   []string       `json:"title_keywords,omitempty" yaml:"title_keywords,omitempty"`
	KeywordDensity  map[string]int `json:"keyword_density,omitempty" yaml:"keyword_density,omitempty"`
	Language        string         `json:"language,omitempty" yaml:"language,omitempty"`

	AuthoritativeSources int `json:"authoritative_sources" yaml:"authoritative_sources"`

	SectionScore     int `json:"section_score" yaml:"section_score"`         // sections found, 0-11
	TopicFocusScore  int `json:"topic_focus_score" yaml:"topic_focus_score"` // 0-10
	SpecificityScore int `json:"specificity_score" yaml:"specificity_score"` // 0-4

	Issues   []Issue  `json:"issues" yaml:"issues"`
	Warnings []string `json:"warnings" yaml:"warnings"`
}

// Valid reports whether no hard issue was found.
func (r ValidationResult) Valid() bool {
	return len(r.Issues) == 0
}

// IssuesOf returns the issues of the given kinds.
func (r ValidationResult) IssuesOf(kinds ...IssueKind) []Issue {
	var out []Issue
	for _, is := range r.Issues {
		for _, k := range kinds {
			if is.Kind == k {
				out = append(out, is)
				break
			}
		}
	}
	return out
}

// Tier is the editorial quality band of a score.
type Tier string

const (
	TierExcellent        Tier = "excellent"
	TierGood             Tier = "good"
	TierAcceptable       Tier = "acceptable"
	TierNeedsImprovement Tier = "needs_improvement"
)

// SubScores are the per-factor points before penalties.
type SubScores struct {
	WordCount   int `json:"word_count" yaml:"word_count"`
	Sections    int `json:"sections" yaml:"sections"`
	Images      int `json:"images" yaml:"images"`
	Sources     int `json:"sources" yaml:"sources"`
	Blockquotes int `json:"blockquotes" yaml:"blockquotes"`
	Tables      int `json:"tables" yaml:"tables"`
	TopicFocus  int `json:"topic_focus" yaml:"topic_focus"`
	Specificity int `json:"specificity" yaml:"specificity"`
	Bonus       int `json:"bonus" yaml:"bonus"`
}

// Total sums every factor.
func (s SubScores) Total() int {
	return s.WordCount + s.Sections + s.Images + s.Sources + s.Blockquotes +
		s.Tables + s.TopicFocus + s.Specificity + s.Bonus
}

// QualityScore is the clamped 0-100 composite.
type QualityScore struct {
	Value     int       `json:"value" yaml:"value"`
	Tier      Tier      `json:"tier" yaml:"tier"`
	SubScores SubScores `json:"sub_scores" yaml:"sub_scores"`
	Penalty   int       `json:"penalty" yaml:"penalty"`
}

// Gate check names.
const (
	CheckStructure     = "structure"
	CheckWordCount     = "word_count"
	CheckGeneric       = "generic"
	CheckContamination = "contamination"
	CheckImages        = "images"
	CheckSources       = "sources"
)

// GateCheck is one boolean gate check.
type GateCheck struct {
	Name   string `json:"name" yaml:"name"`
	Pass   bool   `json:"pass" yaml:"pass"`
	Detail string `json:"detail" yaml:"detail"`
}

// GateDecision is the read-only verdict of the quality gate.
type GateDecision struct {
	Checks      []GateCheck `json:"checks" yaml:"checks"`
	Passed      int         `json:"passed_checks" yaml:"passed_checks"`
	Total       int         `json:"total_checks" yaml:"total_checks"`
	Pass        bool        `json:"pass" yaml:"pass"` // Passed >= min passing checks
	Blockers    []Issue     `json:"blockers,omitempty" yaml:"blockers,omitempty"`
	Publishable bool        `json:"publishable" yaml:"publishable"` // Pass and no content-policy blockers
}

// Check returns the named check.
func (d GateDecision) Check(name string) (GateCheck, bool) {
	for _, c := range d.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return GateCheck{}, false
}

// Report is the machine-readable audit record of one article in one run.
type Report struct {
	RunID      string            `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ArticleID  string            `json:"article_id" yaml:"article_id"`
	Title      string            `json:"title" yaml:"title"`
	Category   string            `json:"category" yaml:"category"`
	Score      QualityScore      `json:"score" yaml:"score"`
	Gate       GateDecision      `json:"gate" yaml:"gate"`
	Validation ValidationResult  `json:"validation" yaml:"validation"`
	Missing    []MissingCategory `json:"missing,omitempty" yaml:"missing,omitempty"`
}
