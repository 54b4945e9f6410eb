// Package search enumerates repositories from the GitHub search API one
// month-long creation window at a time, newest first, and hands them out
// to concurrent workers exactly once.
package search

import (
	"context"
	"time"

	"github.com/jparise/gh-sift/internal/github"
	"go.uber.org/zap"
)

const (
	// MaxResults caps how far into a single query's results the cursor reads.
	MaxResults = github.MaxSearchResults

	defaultSort       = "stars"
	defaultOrder      = "desc"
	defaultRetryDelay = 5 * time.Second
)

// Searcher is the API the cursor consumes.
type Searcher interface {
	// Search runs a query. Errors should be classified with Retryable or
	// Fatal.
	Search(ctx context.Context, query, sort, order string) (Page, error)
	// RateLimit reports the remaining search quota.
	RateLimit(ctx context.Context) (Quota, error)
}

// Page is the result of a single query.
type Page interface {
	// TotalCount is the number of matching repositories. It may change
	// as further results are fetched.
	TotalCount() int
	// Get returns the i-th result, fetching it if needed.
	Get(ctx context.Context, i int) (github.Repository, error)
}

// Quota is a snapshot of the remaining search calls.
type Quota struct {
	Remaining int
	Reset     time.Time
}

// Set is a set of repository full names (owner/name).
type Set map[string]struct{}

// NewSet returns a set holding ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s Set) Add(id string) {
	s[id] = struct{}{}
}

// Contains reports whether id is in the set. A nil set is empty.
func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Clock abstracts time so that waits can be simulated in tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options configures a Cursor or a Dispenser.
type Options struct {
	// Before is the creation date of the newest window (inclusive). Zero
	// means today.
	Before time.Time
	// MaxEmptyWindows is how many consecutive empty windows are tolerated
	// before the search ends. N tolerated means N+1 windows are queried.
	MaxEmptyWindows int
	Sort            string
	Order           string
	// RetryDelay is the pause before retrying a rate limited request.
	RetryDelay time.Duration
	Clock      Clock
	Logger     *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Sort == "" {
		o.Sort = defaultSort
	}
	if o.Order == "" {
		o.Order = defaultOrder
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Before.IsZero() {
		o.Before = o.Clock.Now()
	}
	if o.MaxEmptyWindows < 0 {
		o.MaxEmptyWindows = 0
	}
	return o
}
