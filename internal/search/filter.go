package search

import (
	"fmt"
	"strings"
	"time"
)

// Range is an inclusive integer range used by the stars and forks qualifiers.
type Range struct {
	Min int
	Max int
}

func (r Range) String() string {
	return fmt.Sprintf("%d..%d", r.Min, r.Max)
}

// Filter holds the search qualifiers that stay fixed for the lifetime of a
// cursor. The creation-date qualifier is not part of it; the cursor adds one
// window per query.
type Filter struct {
	Stars       *Range
	Forks       *Range
	PushedAfter time.Time // zero means no constraint
	MaxSize     int       // KB, 0 means no constraint
	Languages   []string
	Topics      []string
	Org         string
	User        string
}

// Validate reports malformed qualifiers.
func (f Filter) Validate() error {
	for name, r := range map[string]*Range{"stars": f.Stars, "forks": f.Forks} {
		if r == nil {
			continue
		}
		if r.Min < 0 || r.Max < 0 {
			return fmt.Errorf("%s range %s must not be negative", name, r)
		}
		if r.Min > r.Max {
			return fmt.Errorf("%s range %s is empty", name, r)
		}
	}
	if f.MaxSize < 0 {
		return fmt.Errorf("max size %d must not be negative", f.MaxSize)
	}
	if f.Org != "" && f.User != "" {
		return fmt.Errorf("org and user qualifiers are mutually exclusive")
	}
	return nil
}

// Query renders the filter and the window into a search query string.
func (f Filter) Query(w Window) string {
	var parts []string
	if f.Stars != nil {
		parts = append(parts, "stars:"+f.Stars.String())
	}
	if f.Forks != nil {
		parts = append(parts, "forks:"+f.Forks.String())
	}
	if !f.PushedAfter.IsZero() {
		parts = append(parts, "pushed:>"+f.PushedAfter.Format(time.DateOnly))
	}
	if f.MaxSize > 0 {
		parts = append(parts, fmt.Sprintf("size:<=%d", f.MaxSize))
	}
	for _, language := range f.Languages {
		parts = append(parts, "language:"+quote(language))
	}
	for _, topic := range f.Topics {
		parts = append(parts, "topic:"+quote(topic))
	}
	if f.Org != "" {
		parts = append(parts, "org:"+f.Org)
	}
	if f.User != "" {
		parts = append(parts, "user:"+f.User)
	}
	parts = append(parts, "created:"+w.String())
	return strings.Join(parts, " ")
}

// quote wraps qualifier values containing whitespace, e.g. "visual basic".
func quote(v string) string {
	if strings.ContainsAny(v, " \t") {
		return `"` + v + `"`
	}
	return v
}
