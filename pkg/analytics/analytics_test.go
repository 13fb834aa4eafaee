package analytics

import (
	"reflect"
	"testing"
)

func TestTitleKeywords(t *testing.T) {
	stop := NewStopwords("guide", "basics", "diy")

	tests := []struct {
		name  string
		title string
		want  []string
	}{
		{
			name:  "drops stopwords and short words",
			title: "Backyard Chicken Coop Basics",
			want:  []string{"backyard", "chicken", "coop"},
		},
		{
			name:  "deduplicates",
			title: "DIY Soap: Soap Making Guide",
			want:  []string{"soap", "making"},
		},
		{
			name:  "empty title",
			title: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TitleKeywords(tt.title, stop, 3)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TitleKeywords(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestContainsAny(t *testing.T) {
	tests := []struct {
		text     string
		keywords []string
		want     bool
	}{
		{"Chickens need a dry coop.", []string{"coop"}, true},
		{"Chickens need shelter.", []string{"chicken"}, true},
		{"A scoop of feed.", []string{"coop"}, false},
		{"", []string{"coop"}, false},
		{"anything", nil, false},
	}

	for _, tt := range tests {
		if got := ContainsAny(tt.text, tt.keywords); got != tt.want {
			t.Errorf("ContainsAny(%q, %v) = %v, want %v", tt.text, tt.keywords, got, tt.want)
		}
	}
}

func TestWordFrequencyAndTopKeywords(t *testing.T) {
	stop := NewStopwords()
	a := WordFrequency("The coop and the run. The coop!", stop)
	b := WordFrequency("Coop ventilation", stop)

	total := Merge(a, b)
	if total["coop"] != 3 {
		t.Errorf("coop count = %d, want 3", total["coop"])
	}
	if _, ok := total["the"]; ok {
		t.Error("stopword 'the' should be skipped")
	}

	got := TopKeywords(total, 2)
	want := []string{"coop:3", "run:1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopKeywords = %v, want %v", got, want)
	}
}

func TestCountOccurrences(t *testing.T) {
	if got := CountOccurrences("Coop coop COOP", "coop"); got != 3 {
		t.Errorf("CountOccurrences = %d, want 3", got)
	}
	if got := CountOccurrences("anything", ""); got != 0 {
		t.Errorf("CountOccurrences with empty keyword = %d, want 0", got)
	}
}
