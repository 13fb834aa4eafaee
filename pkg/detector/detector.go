package detector

import (
	"net/url"
	"path"
	"strings"
	"unicode"
)

// SourceInfo classifies the target of a citation link.
type SourceInfo struct {
	Host          string // lowercased, without "www."
	DomainType    string // gov, edu, academic, commercial, mobile, unknown
	Category      string // gov/health, gov/agriculture, academic/extension, academic/general, news, blog, general
	Name          string // display name for link text, e.g. "CDC"
	Authoritative bool   // gov, edu or academic
}

// knownNames maps registrable hosts to the name readers recognise.
var knownNames = map[string]string{
	"cdc.gov":                 "CDC",
	"usda.gov":                "USDA",
	"nal.usda.gov":            "USDA National Agricultural Library",
	"fda.gov":                 "FDA",
	"nih.gov":                 "NIH",
	"ncbi.nlm.nih.gov":        "NCBI",
	"pubmed.ncbi.nlm.nih.gov": "PubMed",
	"epa.gov":                 "EPA",
	"extension.org":           "Cooperative Extension",
	"rhs.org.uk":              "Royal Horticultural Society",
	"aspca.org":               "ASPCA",
	"avma.org":                "AVMA",
	"who.int":                 "WHO",
}

var academicDomains = []string{
	"arxiv.org", "doi.org", "pubmed.ncbi.nlm.nih.gov", "ncbi.nlm.nih.gov",
	"scholar.google.com", "researchgate.net", "academia.edu",
	"sciencedirect.com", "springer.com", "wiley.com", "nature.com", "extension.org",
}

// Classify inspects a citation URL. Unparseable or relative URLs yield DomainType "unknown".
func Classify(rawURL string) SourceInfo {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return SourceInfo{DomainType: "unknown", Category: "general"}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	info := SourceInfo{Host: host}
	info.DomainType = detectDomainType(host)
	info.Category = detectCategory(host, info.DomainType)
	info.Name = OrgName(host)
	info.Authoritative = info.DomainType == "gov" || info.DomainType == "edu" || info.DomainType == "academic"
	return info
}

// detectDomainType identifies domain classification
func detectDomainType(host string) string {
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".mil") || strings.Contains(host, ".gov.") {
		return "gov"
	}
	if strings.HasSuffix(host, ".edu") || strings.Contains(host, ".ac.") {
		return "edu"
	}
	for _, domain := range academicDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return "academic"
		}
	}
	if strings.HasPrefix(host, "m.") || strings.HasPrefix(host, "mobile.") {
		return "mobile"
	}
	return "commercial"
}

func detectCategory(host, domainType string) string {
	switch domainType {
	case "gov":
		if strings.Contains(host, "health") || strings.Contains(host, "cdc") ||
			strings.Contains(host, "nih") || strings.Contains(host, "fda") {
			return "gov/health"
		}
		if strings.Contains(host, "usda") || strings.Contains(host, "agri") {
			return "gov/agriculture"
		}
		return "gov/general"
	case "edu", "academic":
		if strings.Contains(host, "extension") {
			return "academic/extension"
		}
		return "academic/general"
	}

	if strings.HasPrefix(host, "blog.") {
		return "blog"
	}
	for _, news := range []string{"news", "times", "post", "guardian", "reuters"} {
		if strings.Contains(host, news) {
			return "news"
		}
	}
	return "general"
}

// OrgName returns a display name for a host: a known organisation name, otherwise
// the registrable label, upper-cased when it looks like an acronym.
func OrgName(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if name, ok := knownNames[host]; ok {
		return name
	}
	parts := strings.Split(host, ".")
	for i := 1; i < len(parts); i++ {
		if name, ok := knownNames[strings.Join(parts[i:], ".")]; ok {
			return name
		}
	}

	label := registrableLabel(parts)
	if label == "" {
		return ""
	}
	if len(label) <= 4 {
		return strings.ToUpper(label)
	}
	return titleWord(label)
}

// registrableLabel picks the label left of the public suffix ("example" in
// "extension.example.co.uk"). Two-letter country suffixes after a short label are treated as one suffix.
func registrableLabel(parts []string) string {
	if len(parts) < 2 {
		if len(parts) == 1 {
			return parts[0]
		}
		return ""
	}
	i := len(parts) - 2
	if len(parts) >= 3 && len(parts[len(parts)-1]) == 2 && len(parts[i]) <= 3 {
		i--
	}
	return parts[i]
}

// Describe turns the last path segment of a URL into readable words
// ("/healthy-pets/backyard-poultry.html" becomes "Backyard Poultry").
func Describe(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" || seg == "" {
		return ""
	}
	seg = strings.TrimSuffix(seg, path.Ext(seg))
	if seg == "index" || seg == "default" {
		seg = path.Base(path.Dir(strings.TrimRight(u.Path, "/")))
		if seg == "." || seg == "/" {
			return ""
		}
	}

	words := strings.FieldsFunc(seg, func(r rune) bool {
		return r == '-' || r == '_' || r == '+' || r == '%'
	})
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return strings.Join(words, " ")
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
