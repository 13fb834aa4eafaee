// Package rubric loads the editorial tables the classifiers, scorer and fixer run against.
// The tables are data, not code: an embedded default ships with the binary and a YAML file can replace it.
package rubric

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Tables holds every externally loaded list.
type Tables struct {
	GenericPhrases []string            `yaml:"generic_phrases"`
	Contamination  []ContaminationRule `yaml:"contamination"`
	OffTopic       OffTopic            `yaml:"off_topic"`
	Categories     []Category          `yaml:"categories"`
	Sections       []Section           `yaml:"sections"`
	TitleStopwords []string            `yaml:"title_stopwords"`
	Authorities    []string            `yaml:"authorities"`
	Scoring        Scoring             `yaml:"scoring"`
	Opening        []string            `yaml:"opening"`
	Glossary       Glossary            `yaml:"glossary"`
	Filler         []FillerSection     `yaml:"filler"`
}

// ContaminationRule forbids words in articles whose title mentions Topic.
type ContaminationRule struct {
	Topic     string   `yaml:"topic"`
	Forbidden []string `yaml:"forbidden"`
}

// OffTopic lists phrases whose paragraphs are removed from unrelated articles.
type OffTopic struct {
	Phrases          []string `yaml:"phrases"`
	HeadingPhrases   []string `yaml:"heading_phrases"`
	ExemptCategories []string `yaml:"exempt_categories"`
}

// Category is a topic category detected from title keywords.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Section is one of the named article sections, found through heading keywords.
type Section struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Band awards Points when a count reaches Min.
type Band struct {
	Min    int `yaml:"min"`
	Points int `yaml:"points"`
}

// Penalties are deducted per issue kind and per warning.
type Penalties struct {
	Severe   int `yaml:"severe"`   // generic content, contamination
	Encoding int `yaml:"encoding"` // encoding, broken links
	Other    int `yaml:"other"`
	Warning  int `yaml:"warning"`
}

// Tiers are the lower bounds of each quality tier.
type Tiers struct {
	Excellent  int `yaml:"excellent"`
	Good       int `yaml:"good"`
	Acceptable int `yaml:"acceptable"`
}

// Scoring holds the point bands of the scoring engine.
type Scoring struct {
	WordCount             []Band    `yaml:"word_count"`
	Sections              []Band    `yaml:"sections"`
	Images                []Band    `yaml:"images"`
	Sources               []Band    `yaml:"sources"`
	Blockquotes           []Band    `yaml:"blockquotes"`
	Tables                []Band    `yaml:"tables"`
	TopicFocusMax         int       `yaml:"topic_focus_max"`
	SpecificityMultiplier int       `yaml:"specificity_multiplier"`
	CDNBonus              int       `yaml:"cdn_bonus"`
	CleanBonus            int       `yaml:"clean_bonus"`
	Penalties             Penalties `yaml:"penalties"`
	Tiers                 Tiers     `yaml:"tiers"`
}

// Glossary configures the injected key-terms section.
type Glossary struct {
	Heading       string   `yaml:"heading"`
	ID            string   `yaml:"id"`
	Definition    string   `yaml:"definition"`
	FallbackTerms []string `yaml:"fallback_terms"`
}

// FillerSection is a neutral section appended to under-length bodies.
type FillerSection struct {
	Heading    string   `yaml:"heading"`
	Paragraphs []string `yaml:"paragraphs"`
}

var loadDefault = sync.OnceValues(func() (Tables, error) {
	return Parse(defaultYAML)
})

// Default returns the embedded tables.
func Default() Tables {
	t, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("embedded rubric is invalid: %v", err))
	}
	return t
}

// Load reads tables from path; an empty path returns Default.
func Load(path string) (Tables, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read rubric: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return Tables{}, fmt.Errorf("failed to load rubric %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and normalizes a rubric document.
func Parse(data []byte) (Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tables{}, fmt.Errorf("failed to parse rubric: %w", err)
	}
	t.normalize()
	if err := t.validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

func (t *Tables) normalize() {
	t.GenericPhrases = lowerAll(t.GenericPhrases)
	t.OffTopic.Phrases = lowerAll(t.OffTopic.Phrases)
	t.OffTopic.HeadingPhrases = lowerAll(t.OffTopic.HeadingPhrases)
	t.TitleStopwords = lowerAll(t.TitleStopwords)
	for i := range t.Contamination {
		t.Contamination[i].Topic = strings.ToLower(strings.TrimSpace(t.Contamination[i].Topic))
		t.Contamination[i].Forbidden = lowerAll(t.Contamination[i].Forbidden)
	}
	for i := range t.Categories {
		t.Categories[i].Keywords = lowerAll(t.Categories[i].Keywords)
	}
	for i := range t.Sections {
		t.Sections[i].Keywords = lowerAll(t.Sections[i].Keywords)
	}
}

func (t Tables) validate() error {
	if len(t.GenericPhrases) == 0 {
		return fmt.Errorf("rubric has no generic phrases")
	}
	if len(t.Sections) == 0 {
		return fmt.Errorf("rubric has no sections")
	}
	for _, bands := range [][]Band{t.Scoring.WordCount, t.Scoring.Sections, t.Scoring.Images, t.Scoring.Sources, t.Scoring.Blockquotes, t.Scoring.Tables} {
		for i := 1; i < len(bands); i++ {
			if bands[i].Min >= bands[i-1].Min {
				return fmt.Errorf("scoring bands must be ordered by descending min")
			}
		}
	}
	return nil
}

// Points returns the points of the first band whose Min is reached.
func Points(bands []Band, value int) int {
	for _, b := range bands {
		if value >= b.Min {
			return b.Points
		}
	}
	return 0
}

// CategoryOf returns the first category with a keyword starting a word of title, or "general".
func (t Tables) CategoryOf(title string) string {
	lower := strings.ToLower(title)
	for _, c := range t.Categories {
		for _, kw := range c.Keywords {
			if startsWord(lower, kw) {
				return c.Name
			}
		}
	}
	return "general"
}

// Exempt reports whether the off-topic remover must leave articles of category alone.
func (t Tables) Exempt(category string) bool {
	for _, c := range t.OffTopic.ExemptCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

var prefixCache sync.Map

// startsWord matches kw at a word boundary in s (kw may be a word prefix).
func startsWord(s, kw string) bool {
	re, ok := prefixCache.Load(kw)
	if !ok {
		re, _ = prefixCache.LoadOrStore(kw, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)))
	}
	return re.(*regexp.Regexp).MatchString(s)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
