// Package state persists which repositories have been processed and what
// was found in them, so that an interrupted crawl can resume.
package state

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jparise/gh-sift/internal/github"
	"github.com/jparise/gh-sift/internal/scanner"
	"github.com/jparise/gh-sift/internal/search"
)

// Load reads the processed set from path, one full name per line. A missing
// file is an empty set.
func Load(path string) (search.Set, error) {
	set := search.NewSet()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			set.Add(id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read state %s: %w", path, err)
	}
	return set, nil
}

// Log appends processed full names to a state file. It is safe for
// concurrent use.
type Log struct {
	mu sync.Mutex
	f  *os.File
}

// OpenLog opens path for appending, creating it and its directory if needed.
func OpenLog(path string) (*Log, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &Log{f: f}, nil
}

// Append records id and flushes it to disk.
func (l *Log) Append(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("failed to record %s: %w", id, err)
	}
	return l.f.Sync()
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.f.Close()
}

// FindingsLog appends one block per repository with findings. It is safe
// for concurrent use.
type FindingsLog struct {
	mu sync.Mutex
	f  *os.File
}

// OpenFindings opens path for appending, creating it and its directory if
// needed.
func OpenFindings(path string) (*FindingsLog, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &FindingsLog{f: f}, nil
}

// Write records the findings for repo. Nothing is written when findings is
// empty.
func (l *FindingsLog) Write(repo github.Repository, findings []scanner.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", repo.FullName)
	if repo.HTMLURL != "" {
		fmt.Fprintf(&b, "url: %s\n", repo.HTMLURL)
	}
	if repo.Description != "" {
		fmt.Fprintf(&b, "description: %s\n", strings.Join(strings.Fields(repo.Description), " "))
	}
	for _, f := range findings {
		fmt.Fprintf(&b, "%s %s:%d: %s\n", f.Rule, f.Path, f.Line, f.Excerpt)
	}
	b.WriteString("\n")

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to log findings for %s: %w", repo.FullName, err)
	}
	return l.f.Sync()
}

// Close closes the underlying file.
func (l *FindingsLog) Close() error {
	return l.f.Close()
}

// Path returns the file name for ruleset below dir, ruleset being the
// sorted, distinct rule names joined with "+". The same set of rules always
// maps to the same file.
func Path(dir string, ruleNames []string, ext string) string {
	names := slices.Clone(ruleNames)
	slices.Sort(names)
	names = slices.Compact(names)
	return filepath.Join(dir, strings.Join(names, "+")+ext)
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}
