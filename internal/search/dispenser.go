package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jparise/gh-sift/internal/github"
	"go.uber.org/zap"
)

// minRemaining is the quota below which a window load waits for the reset.
// One call is kept in reserve.
const minRemaining = 2

// Stats counts what a Dispenser has done so far.
type Stats struct {
	Dispensed  int
	Skipped    int
	Windows    int
	QuotaWaits int
}

// Dispenser hands out each repository found by a Cursor at most once,
// skipping ignored ones. It is safe for concurrent use.
//
// A single mutex covers the cursor, the ignore set and the quota check, so
// network requests made while loading a window are serialized.
type Dispenser struct {
	mu      sync.Mutex
	cursor  *Cursor
	gate    *quotaGate
	ignored Set
	drained bool
	stats   Stats
	logger  *zap.Logger
}

// NewDispenser returns a Dispenser over a new Cursor for f. ignored may be
// nil.
func NewDispenser(s Searcher, f Filter, ignored Set, opts Options) (*Dispenser, error) {
	opts = opts.withDefaults()
	gate := &quotaGate{
		Searcher: s,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	cursor, err := NewCursor(gate, f, opts)
	if err != nil {
		return nil, err
	}
	return &Dispenser{
		cursor:  cursor,
		gate:    gate,
		ignored: ignored,
		logger:  opts.Logger,
	}, nil
}

// Next returns the next repository not in the ignore set, or Done. Once
// Done has been returned, every later call returns Done.
func (d *Dispenser) Next(ctx context.Context) (github.Repository, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for !d.drained {
		if err := ctx.Err(); err != nil {
			return github.Repository{}, err
		}

		repo, err := d.cursor.Next(ctx)
		if errors.Is(err, Done) {
			d.drained = true
			break
		}
		if err != nil {
			return github.Repository{}, err
		}

		if d.ignored.Contains(repo.FullName) {
			d.stats.Skipped++
			d.logger.Debug("skipping processed repository", zap.String("repo", repo.FullName))
			continue
		}

		d.stats.Dispensed++
		return repo, nil
	}
	return github.Repository{}, Done
}

// SetIgnored replaces the ignore set. Calls to Next that start afterwards
// see the new set.
func (d *Dispenser) SetIgnored(ids Set) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ignored = ids
}

// Stats returns a snapshot of the dispenser's counters.
func (d *Dispenser) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := d.stats
	stats.Windows = d.cursor.Windows()
	stats.QuotaWaits = d.gate.waits
	return stats
}

// quotaGate waits for the quota to reset before each search when too few
// calls remain. Page access is not gated; a rate limited page fetch is
// retried by the cursor instead.
type quotaGate struct {
	Searcher
	clock  Clock
	logger *zap.Logger
	waits  int
}

func (g *quotaGate) Search(ctx context.Context, query, sort, order string) (Page, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.Searcher.Search(ctx, query, sort, order)
}

func (g *quotaGate) wait(ctx context.Context) error {
	quota, err := g.RateLimit(ctx)
	if err != nil {
		return err
	}
	if quota.Remaining >= minRemaining {
		return nil
	}

	delay := max(quota.Reset.Sub(g.clock.Now()), 0) + time.Second
	g.waits++
	g.logger.Info("search quota exhausted, waiting for reset",
		zap.Int("remaining", quota.Remaining),
		zap.Time("reset", quota.Reset),
		zap.Duration("delay", delay))
	return g.clock.Sleep(ctx, delay)
}
