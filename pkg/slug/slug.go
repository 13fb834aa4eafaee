package slug

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxLen = 80

var (
	separators = regexp.MustCompile(`[\s_]+`)
	invalid    = regexp.MustCompile(`[^a-z0-9-]+`)
	dashes     = regexp.MustCompile(`-+`)
	kebab      = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// Generate creates a URL-safe kebab-case identifier from heading or title text.
func Generate(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = transliterate(s)
	s = separators.ReplaceAllString(s, "-")
	s = invalid.ReplaceAllString(s, "")
	s = dashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	return s
}

// GenerateWithFallback falls back to fallback when s yields an empty slug.
func GenerateWithFallback(s, fallback string) string {
	if out := Generate(s); out != "" {
		return out
	}
	return Generate(fallback)
}

// IsKebab reports whether id is already a valid kebab-case identifier.
func IsKebab(id string) bool {
	return kebab.MatchString(id)
}

// transliterate strips accents: NFD, drop nonspacing marks, NFC.
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}

// Registry hands out identifiers that are unique within one document.
type Registry struct {
	used map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{used: make(map[string]bool)}
}

// Claim returns base if unused, otherwise base-2, base-3, ... and marks the result used.
func (r *Registry) Claim(base string) string {
	candidate := base
	for n := 2; r.used[candidate]; n++ {
		candidate = base + "-" + strconv.Itoa(n)
	}
	r.used[candidate] = true
	return candidate
}
