package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jparise/gh-sift/internal/github"
	"go.uber.org/zap"
)

// epoch is the oldest window end the cursor will query.
var epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// Cursor walks search results page by page, then window by window
// backward in time. It is not safe for concurrent use; see Dispenser.
type Cursor struct {
	searcher Searcher
	filter   Filter
	opts     Options
	logger   *zap.Logger

	end     time.Time // end of the next window to load
	window  Window    // window of the current page
	page    Page
	index   int
	done    bool
	windows int // windows loaded so far
	empty   int // consecutive empty windows
}

// NewCursor returns a cursor whose first window ends on opts.Before.
func NewCursor(s Searcher, f Filter, opts Options) (*Cursor, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search filter: %w", err)
	}
	opts = opts.withDefaults()
	return &Cursor{
		searcher: s,
		filter:   f,
		opts:     opts,
		logger:   opts.Logger,
		end:      Date(opts.Before),
	}, nil
}

// Next returns the next repository, or Done once no window within the
// empty-window budget has results. After Done the cursor stays exhausted.
func (c *Cursor) Next(ctx context.Context) (github.Repository, error) {
	for !c.done {
		if !c.hasNext() {
			found, err := c.loadNonEmptyWindow(ctx)
			if err != nil {
				return github.Repository{}, err
			}
			if !found {
				c.done = true
				break
			}
		}

		var repo github.Repository
		err := c.retry(ctx, "get", func() error {
			var err error
			repo, err = c.page.Get(ctx, c.index)
			return err
		})
		if errors.Is(err, ErrPageShrunk) {
			c.logger.Debug("search results shrank",
				zap.Stringer("window", c.window),
				zap.Int("index", c.index))
			c.page = nil
			continue
		}
		if err != nil {
			return github.Repository{}, err
		}

		c.index++
		return repo, nil
	}
	return github.Repository{}, Done
}

// Windows returns the number of windows loaded so far.
func (c *Cursor) Windows() int {
	return c.windows
}

func (c *Cursor) limit() int {
	return min(c.page.TotalCount(), MaxResults)
}

func (c *Cursor) hasNext() bool {
	return c.page != nil && c.index < c.limit()
}

// loadNonEmptyWindow loads windows until one has results. It gives up once
// more than MaxEmptyWindows consecutive windows were empty. The count spans
// calls, so an error partway through a run of empty windows does not reset it.
func (c *Cursor) loadNonEmptyWindow(ctx context.Context) (bool, error) {
	for c.empty <= c.opts.MaxEmptyWindows {
		if c.end.Before(epoch) {
			return false, nil
		}
		if err := c.loadWindow(ctx); err != nil {
			return false, err
		}
		if c.hasNext() {
			c.empty = 0
			return true, nil
		}
		c.empty++
		c.logger.Debug("empty window",
			zap.Stringer("window", c.window),
			zap.Int("consecutive", c.empty))
	}
	return false, nil
}

func (c *Cursor) loadWindow(ctx context.Context) error {
	w := PreviousWindow(c.end)
	query := c.filter.Query(w)

	var page Page
	err := c.retry(ctx, "search", func() error {
		var err error
		page, err = c.searcher.Search(ctx, query, c.opts.Sort, c.opts.Order)
		return err
	})
	if err != nil {
		return fmt.Errorf("searching %s: %w", w, err)
	}

	c.window = w
	c.page = page
	c.index = 0
	c.end = w.Start.AddDate(0, 0, -1)
	c.windows++

	total := page.TotalCount()
	c.logger.Debug("loaded window",
		zap.Stringer("window", w),
		zap.String("query", query),
		zap.Int("total", total))
	if total > MaxResults {
		c.logger.Warn("window exceeds the search result limit; results are incomplete",
			zap.Stringer("window", w),
			zap.Int("total", total),
			zap.Int("limit", MaxResults))
	}
	return nil
}

// retry runs fn until it succeeds or fails with a non-retryable error.
func (c *Cursor) retry(ctx context.Context, op string, fn func() error) error {
	for {
		err := fn()
		if !IsRetryable(err) {
			return err
		}
		c.logger.Warn("rate limited, retrying",
			zap.String("op", op),
			zap.Duration("delay", c.opts.RetryDelay),
			zap.Error(err))
		if err := c.opts.Clock.Sleep(ctx, c.opts.RetryDelay); err != nil {
			return err
		}
	}
}
