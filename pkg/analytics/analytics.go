package analytics

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Stopwords is a set of lowercase words ignored by keyword extraction.
type Stopwords map[string]struct{}

// baseStopwords are frequent English function words.
var baseStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an", "and", "any",
	"are", "as", "at", "be", "because", "been", "before", "being", "below", "between", "both",
	"but", "by", "can", "cannot", "could", "did", "do", "does", "doing", "down", "during",
	"each", "even", "every", "few", "for", "from", "further", "had", "has", "have", "having",
	"he", "her", "here", "hers", "him", "his", "how", "i", "if", "in", "into", "is", "it",
	"its", "itself", "just", "many", "may", "me", "might", "more", "most", "much", "must",
	"my", "no", "nor", "not", "now", "of", "off", "often", "on", "once", "one", "only", "or",
	"other", "our", "ours", "out", "over", "own", "same", "she", "should", "so", "some",
	"such", "than", "that", "the", "their", "them", "then", "there", "these", "they", "this",
	"those", "through", "to", "too", "under", "until", "up", "us", "very", "was", "we",
	"were", "what", "when", "where", "whether", "which", "while", "who", "whom", "why",
	"will", "with", "within", "without", "would", "yet", "you", "your", "yours",
}

// NewStopwords returns the base list extended with extra words.
func NewStopwords(extra ...string) Stopwords {
	s := make(Stopwords, len(baseStopwords)+len(extra))
	for _, w := range baseStopwords {
		s[w] = struct{}{}
	}
	for _, w := range extra {
		s[strings.ToLower(w)] = struct{}{}
	}
	return s
}

// Has reports whether word is a stopword.
func (s Stopwords) Has(word string) bool {
	_, ok := s[strings.ToLower(word)]
	return ok
}

var wordRe = regexp.MustCompile(`[a-z0-9]+(?:'[a-z]+)?`)

// Words lowercases text and splits it into alphanumeric tokens.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// TitleKeywords returns the distinct title words longer than minLen that are not stopwords, in title order.
func TitleKeywords(title string, stop Stopwords, minLen int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range Words(title) {
		if len(w) <= minLen || stop.Has(w) || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// WordFrequency counts non-stopword tokens of text.
func WordFrequency(text string, stop Stopwords) map[string]int {
	frequencies := make(map[string]int)
	for _, w := range Words(text) {
		if stop.Has(w) {
			continue
		}
		frequencies[w]++
	}
	return frequencies
}

// CountOccurrences counts case-insensitive substring occurrences of kw in text.
func CountOccurrences(text, kw string) int {
	if kw == "" {
		return 0
	}
	return strings.Count(strings.ToLower(text), strings.ToLower(kw))
}

// ContainsAny reports whether text mentions any keyword at a word start.
func ContainsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		idx := 0
		for {
			i := strings.Index(lower[idx:], kw)
			if i < 0 {
				break
			}
			pos := idx + i
			if pos == 0 || !isWordByte(lower[pos-1]) {
				return true
			}
			idx = pos + 1
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return ('a' <= b && b <= 'z') || ('0' <= b && b <= '9')
}

// Merge aggregates several frequency maps into one.
func Merge(counts ...map[string]int) map[string]int {
	total := make(map[string]int)
	for _, c := range counts {
		for w, n := range c {
			total[w] += n
		}
	}
	return total
}

// TopKeywords returns the n most frequent words formatted as "word:count".
// Ties are broken alphabetically so the output is stable.
func TopKeywords(counts map[string]int, n int) []string {
	if n <= 0 {
		return nil
	}
	type kv struct {
		Key   string
		Value int
	}
	ss := make([]kv, 0, len(counts))
	for k, v := range counts {
		ss = append(ss, kv{k, v})
	}
	sort.Slice(ss, func(i, j int) bool {
		if ss[i].Value != ss[j].Value {
			return ss[i].Value > ss[j].Value
		}
		return ss[i].Key < ss[j].Key
	})

	limit := n
	if len(ss) < n {
		limit = len(ss)
	}
	keywords := make([]string, limit)
	for i := 0; i < limit; i++ {
		keywords[i] = fmt.Sprintf("%s:%d", ss[i].Key, ss[i].Value)
	}
	return keywords
}
