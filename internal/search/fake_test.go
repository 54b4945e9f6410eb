package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jparise/gh-sift/internal/github"
)

// fakeClock advances instantly when slept on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fakePage serves generated results.
type fakePage struct {
	mu       sync.Mutex
	total    int
	item     func(i int) github.Repository
	served   int // if set, results past this index have disappeared
	failGets int // retryable failures before Get succeeds
}

func (p *fakePage) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

func (p *fakePage) Get(_ context.Context, i int) (github.Repository, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failGets > 0 {
		p.failGets--
		return github.Repository{}, Retryable(fmt.Errorf("secondary rate limit"))
	}
	if p.served > 0 && i >= p.served {
		p.total = p.served
		return github.Repository{}, ErrPageShrunk
	}
	return p.item(i), nil
}

func namedPage(names ...string) *fakePage {
	return &fakePage{
		total: len(names),
		item: func(i int) github.Repository {
			return repo(names[i])
		},
	}
}

func repo(fullName string) github.Repository {
	owner, name, _ := strings.Cut(fullName, "/")
	return github.Repository{Owner: owner, Name: name, FullName: fullName}
}

// fakeSearcher maps windows (by their created: qualifier) to pages. Windows
// without a page are empty.
type fakeSearcher struct {
	mu       sync.Mutex
	pages    map[string]*fakePage
	queries  []string
	searched []time.Time // clock time of each search

	clock       *fakeClock
	quota       Quota
	searchErrs  []error       // returned, in order, before searches succeed
	searchErrAt map[int]error // returned by the nth search, counting from 1
	rateLimitFn func() (Quota, error)
}

func newFakeSearcher(clock *fakeClock) *fakeSearcher {
	return &fakeSearcher{
		pages: make(map[string]*fakePage),
		clock: clock,
		quota: Quota{Remaining: 30},
	}
}

func (s *fakeSearcher) setWindow(w Window, page *fakePage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[w.String()] = page
}

func (s *fakeSearcher) Search(_ context.Context, query, _, _ string) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, query)
	if s.clock != nil {
		s.searched = append(s.searched, s.clock.Now())
	}
	if err, ok := s.searchErrAt[len(s.queries)]; ok {
		return nil, err
	}
	if len(s.searchErrs) > 0 {
		err := s.searchErrs[0]
		s.searchErrs = s.searchErrs[1:]
		return nil, err
	}

	_, created, _ := strings.Cut(query, "created:")
	if page, ok := s.pages[created]; ok {
		return page, nil
	}
	return &fakePage{item: func(int) github.Repository { panic("empty page") }}, nil
}

func (s *fakeSearcher) RateLimit(context.Context) (Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rateLimitFn != nil {
		return s.rateLimitFn()
	}
	return s.quota, nil
}

func (s *fakeSearcher) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// windowsFrom returns the first n windows a cursor starting at before
// would query.
func windowsFrom(before time.Time, n int) []Window {
	windows := make([]Window, 0, n)
	end := before
	for range n {
		w := PreviousWindow(end)
		windows = append(windows, w)
		end = w.Start.AddDate(0, 0, -1)
	}
	return windows
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
