// Package language identifies the natural language of article text with lingua.
package language

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// minChars is the shortest text worth classifying; shorter input is reported as unknown.
const minChars = 200

// candidates are the languages a body is compared against, besides the expected one.
var candidates = []lingua.Language{
	lingua.English, lingua.French, lingua.German, lingua.Spanish,
	lingua.Portuguese, lingua.Italian, lingua.Dutch,
}

// Detector reports whether text is written in the expected language.
type Detector struct {
	expected lingua.Language
	once     sync.Once
	detector lingua.LanguageDetector
}

// New returns a detector for the named language ("english", "German", ...).
func New(name string) (*Detector, error) {
	lang, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown language %q", name)
	}
	return &Detector{expected: lang}, nil
}

// Lookup resolves a language by its case-insensitive English name.
func Lookup(name string) (lingua.Language, bool) {
	for _, l := range lingua.AllLanguages() {
		if strings.EqualFold(l.String(), strings.TrimSpace(name)) {
			return l, true
		}
	}
	return lingua.Unknown, false
}

// Expected returns the configured language name.
func (d *Detector) Expected() string {
	return d.expected.String()
}

// Detect returns the detected language name, or "" when text is too short or ambiguous.
func (d *Detector) Detect(text string) string {
	if len(text) < minChars {
		return ""
	}
	d.once.Do(func() {
		langs := append([]lingua.Language{d.expected}, candidates...)
		d.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(dedupe(langs)...).
			Build()
	})
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return lang.String()
}

// Matches reports whether text is in the expected language. Undetermined text matches.
func (d *Detector) Matches(text string) (detected string, ok bool) {
	detected = d.Detect(text)
	if detected == "" {
		return "", true
	}
	return detected, strings.EqualFold(detected, d.expected.String())
}

func dedupe(langs []lingua.Language) []lingua.Language {
	seen := make(map[lingua.Language]bool, len(langs))
	out := langs[:0]
	for _, l := range langs {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}
