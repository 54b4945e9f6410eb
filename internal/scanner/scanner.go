// Package scanner runs a table of static patterns over a checked-out
// repository.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

const (
	// DefaultMaxExcerpt is the default excerpt length in characters.
	DefaultMaxExcerpt = 200
	// DefaultMaxFileSize is the default limit on scanned file size.
	DefaultMaxFileSize = 1024 * 1024

	// DefaultMatchTimeout bounds a single pattern run over one file.
	DefaultMatchTimeout = 5 * time.Second

	binarySniff = 8000
)

// Options configures a Scanner.
type Options struct {
	MaxExcerpt   int           // characters per excerpt
	MaxFileSize  int64         // larger files are skipped
	Excludes     []string      // doublestar patterns against slash-separated relative paths
	MatchTimeout time.Duration // per rule and file
	Logger       *zap.Logger
}

// Finding is a single pattern match.
type Finding struct {
	Rule    string
	Path    string // relative to the scanned root, slash-separated
	Line    int    // 1-based
	Excerpt string
}

type compiledRule struct {
	*Rule
	re *regexp2.Regexp
}

// Scanner matches rules against files. It is safe for concurrent use.
type Scanner struct {
	opts   Options
	byExt  map[string][]*compiledRule
	filter *prefilter
}

// New compiles rules into a Scanner.
func New(rules []*Rule, opts Options) (*Scanner, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("no rules provided")
	}
	if opts.MaxExcerpt <= 0 {
		opts.MaxExcerpt = DefaultMaxExcerpt
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MatchTimeout <= 0 {
		opts.MatchTimeout = DefaultMatchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	for _, pattern := range opts.Excludes {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	s := &Scanner{
		opts:   opts,
		byExt:  make(map[string][]*compiledRule),
		filter: newPrefilter(rules),
	}
	for _, rule := range rules {
		re, err := regexp2.Compile(rule.Pattern, regexp2.IgnoreCase|regexp2.Multiline)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern for rule %s: %w", rule.Name, err)
		}
		re.MatchTimeout = opts.MatchTimeout

		cr := &compiledRule{Rule: rule, re: re}
		for _, ext := range rule.FileTypes {
			s.byExt[ext] = append(s.byExt[ext], cr)
		}
	}

	return s, nil
}

// ScanDir scans every eligible file below root.
func (s *Scanner) ScanDir(ctx context.Context, root string) ([]Finding, error) {
	var findings []Finding

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if s.excluded(rel) {
			return nil
		}

		rules := s.byExt[extension(rel)]
		if len(rules) == 0 {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 || info.Size() > s.opts.MaxFileSize {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}

		findings = append(findings, s.scan(rel, content, rules)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return findings, nil
}

// ScanFile scans a single file's content as if it lived at path.
func (s *Scanner) ScanFile(path string, content []byte) []Finding {
	return s.scan(path, content, s.byExt[extension(path)])
}

// scan runs rules over content. A rule that times out is skipped for this
// file; matches it produced before the timeout are kept.
func (s *Scanner) scan(path string, content []byte, rules []*compiledRule) []Finding {
	if len(rules) == 0 || isBinary(content) {
		return nil
	}

	candidates := s.filter.filter(bytes.ToLower(content))

	var findings []Finding
	text := string(content)
	for _, rule := range rules {
		if !candidates[rule.Rule] {
			continue
		}

		match, err := rule.re.FindStringMatch(text)
		lines := newLineCounter(text)
		for err == nil && match != nil {
			findings = append(findings, Finding{
				Rule:    rule.Name,
				Path:    path,
				Line:    lines.at(match.Index),
				Excerpt: Excerpt(match.String(), s.opts.MaxExcerpt),
			})

			match, err = rule.re.FindNextMatch(match)
		}
		if err != nil {
			s.opts.Logger.Warn("skipping rule",
				zap.String("rule", rule.Name),
				zap.String("path", path),
				zap.Error(err))
		}
	}

	return findings
}

func (s *Scanner) excluded(rel string) bool {
	for _, pattern := range s.opts.Excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Excerpt collapses whitespace in match and truncates it to limit characters.
func Excerpt(match string, limit int) string {
	collapsed := strings.Join(strings.Fields(match), " ")
	runes := []rune(collapsed)
	if limit <= 0 || len(runes) <= limit {
		return collapsed
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// isBinary reports whether content looks binary (a NUL byte near the start).
func isBinary(content []byte) bool {
	return bytes.IndexByte(content[:min(len(content), binarySniff)], 0) >= 0
}

// lineCounter maps rune offsets, which regexp2 reports, to line numbers.
// Offsets must be queried in increasing order.
type lineCounter struct {
	text  string
	pos   int // byte position reached
	runes int // rune offset of pos
	line  int
}

func newLineCounter(text string) *lineCounter {
	return &lineCounter{text: text, line: 1}
}

func (lc *lineCounter) at(runeIndex int) int {
	for lc.runes < runeIndex && lc.pos < len(lc.text) {
		r, size := utf8.DecodeRuneInString(lc.text[lc.pos:])
		if r == '\n' {
			lc.line++
		}
		lc.pos += size
		lc.runes++
	}
	return lc.line
}
