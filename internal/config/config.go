// Package config loads gh-sift settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "GH_SIFT_"

const maxConfigFileSize = 1024 * 1024

// Config holds every setting that can also be given on the command line.
type Config struct {
	Scan   ScanConfig   `koanf:"scan"`
	Search SearchConfig `koanf:"search"`
	Crawl  CrawlConfig  `koanf:"crawl"`
	GitHub GitHubConfig `koanf:"github"`
}

// ScanConfig selects and tunes the pattern rules.
type ScanConfig struct {
	Rules      []string `koanf:"rules"`      // rule names, empty for all
	RulesFile  string   `koanf:"rules_file"` // replaces the built-in rules
	Excludes   []string `koanf:"excludes"`
	MaxExcerpt int      `koanf:"max_excerpt"`
	MaxFile    string   `koanf:"max_file"` // largest scanned file, e.g. "1M"
}

// SearchConfig narrows the repository search. Ranges use "a..b" syntax and
// dates accept either a date or a duration before now.
type SearchConfig struct {
	Languages      []string `koanf:"languages"`
	Topics         []string `koanf:"topics"`
	Org            string   `koanf:"org"`
	User           string   `koanf:"user"`
	Stars          string   `koanf:"stars"`
	Forks          string   `koanf:"forks"`
	PushedAfter    string   `koanf:"pushed_after"`
	MaxSize        string   `koanf:"max_size"`
	Before         string   `koanf:"before"`
	MaxEmptyMonths int      `koanf:"max_empty_months"`
}

// CrawlConfig controls the worker pool and where its files go.
type CrawlConfig struct {
	Jobs     int    `koanf:"jobs"`
	StateDir string `koanf:"state_dir"`
	LogDir   string `koanf:"log_dir"`
	WorkDir  string `koanf:"work_dir"`
}

// GitHubConfig tunes API access.
type GitHubConfig struct {
	NoCache        bool          `koanf:"no_cache"`
	CacheDir       string        `koanf:"cache_dir"`
	CacheTTL       time.Duration `koanf:"cache_ttl"`
	SearchInterval time.Duration `koanf:"search_interval"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			MaxExcerpt: 200,
			MaxFile:    "1M",
		},
		Crawl: CrawlConfig{
			Jobs:     8,
			StateDir: "processed",
			LogDir:   "logs",
			WorkDir:  filepath.Join(os.TempDir(), "gh-sift"),
		},
		GitHub: GitHubConfig{
			CacheTTL:       time.Hour,
			SearchInterval: 2 * time.Second,
		},
	}
}

// DefaultPath returns ~/.config/gh-sift/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "gh-sift", "config.yaml"), nil
}

// Load reads configuration from the YAML file at path and then from
// GH_SIFT_* environment variables, which take precedence. An empty path
// uses DefaultPath, which need not exist; an explicit path must.
//
// Environment names map to keys by splitting at the first underscore after
// the prefix:
//
//	GH_SIFT_SEARCH_MAX_SIZE -> search.max_size
//	GH_SIFT_CRAWL_JOBS      -> crawl.jobs
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	content, err := readConfigFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case err != nil:
		return nil, err
	default:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Keys absent from the file and environment keep their defaults; keys set
	// to a zero value override them.
	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				timestampToStringHook,
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// timestampToStringHook undoes YAML's timestamp resolution for string
// fields, so that "before: 2020-01-01" needs no quotes.
func timestampToStringHook(_, to reflect.Type, data any) (any, error) {
	t, ok := data.(time.Time)
	if !ok || to.Kind() != reflect.String {
		return data, nil
	}
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(time.DateOnly), nil
	}
	return t.Format(time.RFC3339), nil
}

func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content := make([]byte, info.Size())
	if _, err := f.ReadAt(content, 0); err != nil && info.Size() > 0 {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Validate checks settings that do not need further parsing.
func (c *Config) Validate() error {
	if c.Crawl.Jobs < 1 || c.Crawl.Jobs > 100 {
		return fmt.Errorf("crawl.jobs must be between 1 and 100, got %d", c.Crawl.Jobs)
	}
	if c.Search.MaxEmptyMonths < 0 {
		return fmt.Errorf("search.max_empty_months cannot be negative")
	}
	if c.Scan.MaxExcerpt < 0 {
		return fmt.Errorf("scan.max_excerpt cannot be negative")
	}
	if c.Search.Org != "" && c.Search.User != "" {
		return fmt.Errorf("search.org and search.user are mutually exclusive")
	}
	if c.GitHub.CacheTTL < 0 || c.GitHub.SearchInterval < 0 {
		return fmt.Errorf("github durations cannot be negative")
	}
	return nil
}
