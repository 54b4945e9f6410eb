package crawler

import (
	"context"
	"errors"

	"github.com/jparise/gh-sift/internal/clone"
	"github.com/jparise/gh-sift/internal/github"
	"github.com/jparise/gh-sift/internal/scanner"
)

// RepoProcessor clones a repository and scans the checkout.
type RepoProcessor struct {
	Cloner  *clone.Cloner
	Scanner *scanner.Scanner
}

// Process implements Processor. Empty repositories have no findings.
func (p *RepoProcessor) Process(ctx context.Context, repo github.Repository) ([]scanner.Finding, error) {
	dir, cleanup, err := p.Cloner.Clone(ctx, repo)
	if errors.Is(err, clone.ErrEmptyRepository) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return p.Scanner.ScanDir(ctx, dir)
}
