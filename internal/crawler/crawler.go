// Package crawler drives a pool of workers that pull repositories from a
// dispenser, scan them and record the results.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jparise/gh-sift/internal/github"
	"github.com/jparise/gh-sift/internal/scanner"
	"github.com/jparise/gh-sift/internal/search"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispenser hands out repositories until it returns search.Done.
type Dispenser interface {
	Next(ctx context.Context) (github.Repository, error)
}

// Processor handles a single repository.
type Processor interface {
	Process(ctx context.Context, repo github.Repository) ([]scanner.Finding, error)
}

// Summary describes a finished run.
type Summary struct {
	Processed   int // including failures
	Failed      int
	Findings    int
	Interrupted bool
	Elapsed     time.Duration
}

type result struct {
	repo     github.Repository
	findings []scanner.Finding
	err      error
}

// Run starts opts.Jobs workers and blocks until they have all exited.
//
// A worker stops when the dispenser is drained, when ctx is canceled, or
// when the dispenser fails; a failing worker does not stop the others.
// Repositories already being processed when ctx is canceled run to
// completion and are recorded. Every processed repository is recorded in
// opts.State, even if processing it failed.
func Run(ctx context.Context, d Dispenser, p Processor, opts Options) (Summary, error) {
	if opts.Jobs < 1 {
		return Summary{}, fmt.Errorf("jobs must be positive, got %d", opts.Jobs)
	}
	if opts.State == nil {
		return Summary{}, errors.New("no state sink")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := opts.Output
	if out == nil {
		out = NewOutput(io.Discard, io.Discard, false, false)
	}

	start := time.Now()
	results := make(chan result, opts.Jobs)

	// In-flight units ignore cancellation.
	workCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for id := range opts.Jobs {
		g.Go(func() error {
			log := logger.With(zap.Int("worker", id))
			for ctx.Err() == nil {
				repo, err := d.Next(ctx)
				if errors.Is(err, search.Done) {
					log.Debug("no more repositories")
					return nil
				}
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					log.Error("enumeration failed", zap.Error(err))
					out.Warningf("worker %d stopping: %v", id, err)
					return err
				}

				log.Debug("processing", zap.String("repo", repo.FullName))
				findings, err := p.Process(workCtx, repo)
				results <- result{repo: repo, findings: findings, err: err}
			}
			return nil
		})
	}

	var (
		summary Summary
		sinkErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			if err := record(r, opts, out, logger, &summary); err != nil && sinkErr == nil {
				sinkErr = err
			}
		}
	}()

	workerErr := g.Wait()
	close(results)
	<-done

	summary.Interrupted = ctx.Err() != nil
	summary.Elapsed = time.Since(start)
	return summary, errors.Join(workerErr, sinkErr)
}

// record is only called from the aggregator goroutine.
func record(r result, opts Options, out *Output, logger *zap.Logger, summary *Summary) error {
	summary.Processed++

	var errs []error
	if err := opts.State.Append(r.repo.FullName); err != nil {
		errs = append(errs, err)
	}

	if r.err != nil {
		summary.Failed++
		logger.Warn("processing failed", zap.String("repo", r.repo.FullName), zap.Error(r.err))
		out.Warningf("%s: %v", r.repo.FullName, r.err)
		return errors.Join(errs...)
	}

	summary.Findings += len(r.findings)
	logger.Info("processed",
		zap.String("repo", r.repo.FullName),
		zap.Int("findings", len(r.findings)))
	for _, f := range r.findings {
		out.Finding(r.repo, f)
	}
	if opts.Findings != nil {
		if err := opts.Findings.Write(r.repo, r.findings); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
