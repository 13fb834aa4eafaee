package models

// Citation is a named reference link.
type Citation struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Statistic is a quantified claim with an optional source.
type Statistic struct {
	Text      string `json:"stat" yaml:"stat"`
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
}

// Quote is an attributed expert quote.
type Quote struct {
	Text      string `json:"quote" yaml:"quote"`
	Speaker   string `json:"speaker" yaml:"speaker"`
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
	Org       string `json:"org,omitempty" yaml:"org,omitempty"`
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
}

// TopicSources is the source-bank entry for one topic.
type TopicSources struct {
	Sources []Citation  `json:"sources" yaml:"sources"`
	Stats   []Statistic `json:"stats" yaml:"stats"`
	Quotes  []Quote     `json:"quotes" yaml:"quotes"`
}

// Empty reports whether the entry carries nothing usable.
func (t TopicSources) Empty() bool {
	return len(t.Sources) == 0 && len(t.Stats) == 0 && len(t.Quotes) == 0
}
