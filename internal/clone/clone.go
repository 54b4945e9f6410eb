// Package clone checks out repositories into a scratch directory for
// scanning.
package clone

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/jparise/gh-sift/internal/github"
)

// ErrEmptyRepository is returned for repositories without any commits.
var ErrEmptyRepository = errors.New("repository is empty")

// Cloner clones repositories below BaseDir.
type Cloner struct {
	BaseDir string
	Depth   int    // 0 fetches full history
	Token   string // optional, sent as HTTP basic auth
}

// Dir returns the checkout directory for repo.
func (c *Cloner) Dir(repo github.Repository) string {
	return filepath.Join(c.BaseDir, repo.Owner, repo.Name)
}

// Clone checks out repo's default branch. The returned cleanup function
// removes the checkout and must be called once the caller is done with it.
func (c *Cloner) Clone(ctx context.Context, repo github.Repository) (string, func(), error) {
	dir := c.Dir(repo)

	// A previous run may have been interrupted mid-clone.
	if err := os.RemoveAll(dir); err != nil {
		return "", nil, fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(dir), err)
	}

	opts := &git.CloneOptions{
		URL:          repo.CloneURL,
		Depth:        c.Depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if repo.DefaultBranch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(repo.DefaultBranch)
	}
	if c.Token != "" {
		opts.Auth = &http.BasicAuth{Username: "x-access-token", Password: c.Token}
	}

	cleanup := func() {
		_ = os.RemoveAll(dir)
		// Drop the owner directory once its last checkout is gone.
		_ = os.Remove(filepath.Dir(dir))
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		cleanup()
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return "", nil, fmt.Errorf("failed to clone %s: %w", repo.FullName, ErrEmptyRepository)
		}
		return "", nil, fmt.Errorf("failed to clone %s: %w", repo.FullName, err)
	}

	return dir, cleanup, nil
}
