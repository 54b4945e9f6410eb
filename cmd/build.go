package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jparise/gh-sift/internal/config"
	"github.com/jparise/gh-sift/internal/scanner"
	"github.com/jparise/gh-sift/internal/search"
	"github.com/jparise/gh-sift/internal/timeparse"
)

func loadRules(cfg config.ScanConfig) ([]*scanner.Rule, error) {
	rules := scanner.DefaultRules()
	if cfg.RulesFile != "" {
		f, err := os.Open(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open rules file: %w", err)
		}
		defer f.Close()

		if rules, err = scanner.LoadRules(f); err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.RulesFile, err)
		}
	}
	return scanner.Select(rules, cfg.Rules)
}

func buildScanOptions(cfg config.ScanConfig) (scanner.Options, error) {
	opts := scanner.Options{
		MaxExcerpt: cfg.MaxExcerpt,
		Excludes:   cfg.Excludes,
	}
	if cfg.MaxFile != "" {
		size, err := parseByteSize(cfg.MaxFile)
		if err != nil {
			return opts, fmt.Errorf("invalid max file size %q: %w", cfg.MaxFile, err)
		}
		opts.MaxFileSize = size
	}
	return opts, nil
}

// buildFilter turns the search settings into qualifiers. Without explicit
// languages, the rules' languages are searched.
func buildFilter(cfg config.SearchConfig, rules []*scanner.Rule, now time.Time) (search.Filter, error) {
	f := search.Filter{
		Languages: cfg.Languages,
		Topics:    cfg.Topics,
		Org:       cfg.Org,
		User:      cfg.User,
	}
	if len(f.Languages) == 0 {
		f.Languages = scanner.Languages(rules)
	}

	var err error
	if cfg.Stars != "" {
		if f.Stars, err = parseRange(cfg.Stars); err != nil {
			return f, fmt.Errorf("invalid stars range: %w", err)
		}
	}
	if cfg.Forks != "" {
		if f.Forks, err = parseRange(cfg.Forks); err != nil {
			return f, fmt.Errorf("invalid forks range: %w", err)
		}
	}
	if cfg.PushedAfter != "" {
		if f.PushedAfter, err = parseDate("pushed after", cfg.PushedAfter, now); err != nil {
			return f, err
		}
	}
	if cfg.MaxSize != "" {
		size, err := parseByteSize(cfg.MaxSize)
		if err != nil {
			return f, fmt.Errorf("invalid max size %q: %w", cfg.MaxSize, err)
		}
		if size == 0 {
			return f, fmt.Errorf("max size must be greater than 0")
		}
		// The search API measures repositories in kilobytes.
		f.MaxSize = int((size + 1023) / 1024)
	}

	return f, f.Validate()
}

// parseRange parses "a..b", or "n" for exactly n.
func parseRange(s string) (*search.Range, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "..")
	if !ok {
		hi = lo
	}
	minimum, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return nil, fmt.Errorf("%q: expected a..b", s)
	}
	maximum, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return nil, fmt.Errorf("%q: expected a..b", s)
	}
	return &search.Range{Min: minimum, Max: maximum}, nil
}

func parseDate(name, s string, now time.Time) (time.Time, error) {
	t, err := timeparse.ParseDate(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date: %w", name, err)
	}
	return t, nil
}
