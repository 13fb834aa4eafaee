// Package classifier holds the content-policy detectors: generic boilerplate,
// topic contamination, off-topic phrases and topic drift.
// The phrase lists live in rubric tables; nothing here is specific to one topic.
package classifier

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/analytics"
	"github.com/dtnitsch/content-gate/pkg/rubric"
)

// KeywordMinLen is the length a title word must exceed to count as a topic keyword.
const KeywordMinLen = 3

// TitleKeywords derives the topic keywords of a title.
func TitleKeywords(title string, stop analytics.Stopwords) []string {
	return analytics.TitleKeywords(title, stop, KeywordMinLen)
}

// GenericPhrases returns the listed phrases found in text, in list order.
func GenericPhrases(text string, phrases []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, p) {
			found = append(found, p)
		}
	}
	return found
}

// Contamination returns one issue per forbidden word found in text, for every
// rule whose topic starts a word of the title.
func Contamination(title, text string, rules []rubric.ContaminationRule) []models.Issue {
	lower := strings.ToLower(text)
	var issues []models.Issue
	seen := make(map[string]bool)
	for _, rule := range rules {
		if !analytics.ContainsAny(title, []string{rule.Topic}) {
			continue
		}
		for _, word := range rule.Forbidden {
			if seen[word] || !containsWord(lower, word) {
				continue
			}
			seen[word] = true
			issues = append(issues, models.Issue{
				Kind:    models.IssueContamination,
				Message: fmt.Sprintf("%q does not belong in a %s article", word, rule.Topic),
			})
		}
	}
	return issues
}

// OffTopicPhrases returns the off-topic phrases present in text that the title does not protect.
// Articles in an exempt category report nothing.
func OffTopicPhrases(title, text string, t rubric.Tables) []string {
	if t.Exempt(t.CategoryOf(title)) {
		return nil
	}
	lower := strings.ToLower(text)
	keywords := TitleKeywords(title, analytics.NewStopwords(t.TitleStopwords...))
	var found []string
	for _, p := range t.OffTopic.Phrases {
		if strings.Contains(lower, p) && !protected(p, title, keywords) {
			found = append(found, p)
		}
	}
	return found
}

// protected reports whether phrase belongs to the article's own topic.
func protected(phrase, title string, keywords []string) bool {
	if strings.Contains(strings.ToLower(title), phrase) {
		return true
	}
	for _, kw := range keywords {
		if kw == phrase {
			return true
		}
	}
	return false
}

var wordCache sync.Map

func containsWord(lower, word string) bool {
	re, ok := wordCache.Load(word)
	if !ok {
		re, _ = wordCache.LoadOrStore(word, regexp.MustCompile(`\b`+regexp.QuoteMeta(word)+`\b`))
	}
	return re.(*regexp.Regexp).MatchString(lower)
}
