// Package sourcebank loads the citations, statistics and expert quotes the fixer
// injects into articles that lack them.
package sourcebank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dtnitsch/content-gate/models"
	"github.com/dtnitsch/content-gate/pkg/caching"
	"github.com/dtnitsch/content-gate/pkg/fetcher"
	"github.com/dtnitsch/content-gate/pkg/storage"
)

// ErrUnavailable means no bank could be loaded. Articles that need it are parked.
var ErrUnavailable = errors.New("source bank unavailable")

// DefaultKey is the entry used when no topic or category entry matches.
const DefaultKey = "default"

// Bank maps topic keys to source material. Keys are lowercase: a topic phrase
// ("chicken coop"), a category name ("animals") or DefaultKey.
type Bank struct {
	Topics   map[string]models.TopicSources
	category func(title string) string
}

// document is the on-disk shape. A bank may be a single flat entry, which then
// serves as the default.
type document struct {
	Topics map[string]models.TopicSources `json:"topics" yaml:"topics"`
	models.TopicSources `yaml:",inline"`
}

// Options configure how a remote bank is fetched.
type Options struct {
	Fetcher *fetcher.Fetcher
	Cache   *caching.Cache
	// Category maps a title to a topic category for the fallback lookup.
	Category func(title string) string
}

// Load reads the bank at location, a file path or an http(s) URL. Every failure
// wraps ErrUnavailable.
func Load(ctx context.Context, location string, opts Options) (*Bank, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: no location configured", ErrUnavailable)
	}

	data, err := read(ctx, location, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	b, err := Parse(data, formatOf(location, data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	b.category = opts.Category
	return b, nil
}

func read(ctx context.Context, location string, opts Options) ([]byte, error) {
	if !isRemote(location) {
		var fs storage.Storage
		return fs.ReadFile(location)
	}

	if opts.Cache != nil {
		if data, ok := opts.Cache.Get(location); ok {
			return data, nil
		}
	}
	f := opts.Fetcher
	if f == nil {
		f = fetcher.NewFetcher(0)
	}
	data, err := f.GetBytes(ctx, location)
	if err != nil {
		return nil, err
	}
	if opts.Cache != nil {
		// A cache write failure only costs a refetch next run.
		_ = opts.Cache.Set(location, data)
	}
	return data, nil
}

func isRemote(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

func formatOf(location string, data []byte) string {
	switch strings.ToLower(filepath.Ext(strings.SplitN(location, "?", 2)[0])) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}
	if t := strings.TrimSpace(string(data)); strings.HasPrefix(t, "{") {
		return "json"
	}
	return "yaml"
}

// Parse decodes a bank document in the given format ("json" or "yaml").
func Parse(data []byte, format string) (*Bank, error) {
	var doc document
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse source bank: %w", err)
	}

	b := &Bank{Topics: map[string]models.TopicSources{}}
	for k, v := range doc.Topics {
		b.Topics[normalizeKey(k)] = v
	}
	if !doc.TopicSources.Empty() {
		if _, ok := b.Topics[DefaultKey]; !ok {
			b.Topics[DefaultKey] = doc.TopicSources
		}
	}
	if len(b.Topics) == 0 {
		return nil, errors.New("source bank has no entries")
	}
	return b, nil
}

func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Lookup finds material for a title: the longest topic key contained in the title,
// then the title's category, then the default entry.
func (b *Bank) Lookup(title string) (models.TopicSources, bool) {
	if b == nil {
		return models.TopicSources{}, false
	}
	t := " " + normalizeKey(title) + " "

	keys := make([]string, 0, len(b.Topics))
	for k := range b.Topics {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if k != DefaultKey && strings.Contains(t, " "+k+" ") {
			return b.Topics[k], true
		}
	}

	if b.category != nil {
		if src, ok := b.Topics[normalizeKey(b.category(title))]; ok {
			return src, true
		}
	}
	src, ok := b.Topics[DefaultKey]
	return src, ok
}

// Size is the number of entries.
func (b *Bank) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Topics)
}
