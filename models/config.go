package models

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the rubric thresholds and runtime knobs.
// It is passed by value into every component; nothing reads thresholds from package state.
type Config struct {
	MinWords         int  `yaml:"min_words"`
	MaxWords         int  `yaml:"max_words"`
	MinSections      int  `yaml:"min_sections"`
	MinImages        int  `yaml:"min_images"`
	MinSources       int  `yaml:"min_sources"`
	MinBlockquotes   int  `yaml:"min_blockquotes"`
	MinStatistics    int  `yaml:"min_statistics"`
	MinPassingChecks int  `yaml:"min_passing_checks"` // out of 6
	MaxAttempts      int  `yaml:"max_attempts"`
	StrictYears      bool `yaml:"strict_years"`

	OpeningMinWords int `yaml:"opening_min_words"`
	OpeningMaxWords int `yaml:"opening_max_words"`

	Language string   `yaml:"language"`  // lingua language name, "" disables the check
	CDNHosts []string `yaml:"cdn_hosts"` // image hosts that earn the CDN bonus
	SiteHost string   `yaml:"site_host"` // links to this host are not external

	LogLevel string `yaml:"log_level"`

	QueuePath      string        `yaml:"queue_path"`
	ArticlesDir    string        `yaml:"articles_dir"`
	DBPath         string        `yaml:"db_path"`
	RubricPath     string        `yaml:"rubric_path"` // "" uses the embedded rubric
	SourceBank     string        `yaml:"source_bank"` // file path or http(s) URL, "" means unavailable
	SourceBankTTL  time.Duration `yaml:"source_bank_ttl"`
	CacheDir       string        `yaml:"cache_dir"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StaleAfter     time.Duration `yaml:"stale_after"`
}

// DefaultConfig returns the editorial defaults.
func DefaultConfig() Config {
	return Config{
		MinWords:         1800,
		MaxWords:         2500,
		MinSections:      9,
		MinImages:        4,
		MinSources:       5,
		MinBlockquotes:   2,
		MinStatistics:    3,
		MinPassingChecks: 5,
		MaxAttempts:      3,
		StrictYears:      true,
		OpeningMinWords:  50,
		OpeningMaxWords:  70,
		Language:         "english",
		CDNHosts:         []string{"cdn.shopify.com"},
		LogLevel:         "info",
		QueuePath:        "content/meta_fix_queue.json",
		ArticlesDir:      "content/articles",
		DBPath:           "content-gate.db",
		SourceBankTTL:    24 * time.Hour,
		CacheDir:         ".content-gate-cache",
		RequestTimeout:   30 * time.Second,
		StaleAfter:       time.Hour,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
// A missing file is not an error; the defaults are returned.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return cfg, fmt.Errorf("invalid config %s: %v", path, errs)
	}
	return cfg, nil
}

// Validate reports every inconsistent threshold at once.
func (c Config) Validate() []error {
	var errs []error
	if c.MinWords <= 0 {
		errs = append(errs, fmt.Errorf("min_words must be positive, got %d", c.MinWords))
	}
	if c.MaxWords < c.MinWords {
		errs = append(errs, fmt.Errorf("max_words (%d) must be >= min_words (%d)", c.MaxWords, c.MinWords))
	}
	if c.MinSections < 0 || c.MinImages < 0 || c.MinSources < 0 || c.MinBlockquotes < 0 || c.MinStatistics < 0 {
		errs = append(errs, fmt.Errorf("minimum counts must not be negative"))
	}
	if c.MinPassingChecks < 1 || c.MinPassingChecks > 6 {
		errs = append(errs, fmt.Errorf("min_passing_checks must be between 1 and 6, got %d", c.MinPassingChecks))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.OpeningMinWords <= 0 || c.OpeningMaxWords < c.OpeningMinWords {
		errs = append(errs, fmt.Errorf("opening window %d-%d is invalid", c.OpeningMinWords, c.OpeningMaxWords))
	}
	return errs
}
