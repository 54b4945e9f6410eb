package search

import (
	"context"
	"fmt"

	"github.com/jparise/gh-sift/internal/github"
)

const githubPageSize = 100

// GitHubSearcher adapts a github.Client to the Searcher interface.
type GitHubSearcher struct {
	client *github.Client
}

// NewGitHubSearcher returns a Searcher backed by the GitHub REST API.
func NewGitHubSearcher(client *github.Client) *GitHubSearcher {
	return &GitHubSearcher{client: client}
}

// Search fetches the first page of results. Later pages are fetched as Get
// reaches them.
func (s *GitHubSearcher) Search(ctx context.Context, query, sort, order string) (Page, error) {
	p := &githubPage{
		client: s.client,
		query:  query,
		sort:   sort,
		order:  order,
	}
	if err := p.fetch(ctx, 1); err != nil {
		return nil, err
	}
	return p, nil
}

// RateLimit returns the search bucket of the rate limit status.
func (s *GitHubSearcher) RateLimit(ctx context.Context) (Quota, error) {
	limits, err := s.client.RateLimits(ctx)
	if err != nil {
		return Quota{}, classify(err)
	}
	search := limits.Resources.Search
	return Quota{
		Remaining: search.Remaining,
		Reset:     search.ResetTime(),
	}, nil
}

// githubPage holds the most recently fetched chunk of results.
type githubPage struct {
	client *github.Client
	query  string
	sort   string
	order  string

	total int
	chunk int // 1-based API page number of items
	items []github.Repository
}

func (p *githubPage) TotalCount() int {
	return p.total
}

func (p *githubPage) Get(ctx context.Context, i int) (github.Repository, error) {
	if i < 0 || i >= min(p.total, MaxResults) {
		return github.Repository{}, Fatal(fmt.Errorf("result index %d out of range [0, %d)", i, min(p.total, MaxResults)))
	}

	chunk := i/githubPageSize + 1
	if chunk != p.chunk {
		if err := p.fetch(ctx, chunk); err != nil {
			return github.Repository{}, err
		}
	}

	offset := i % githubPageSize
	if offset >= len(p.items) {
		p.total = (chunk-1)*githubPageSize + len(p.items)
		return github.Repository{}, ErrPageShrunk
	}
	return p.items[offset], nil
}

func (p *githubPage) fetch(ctx context.Context, chunk int) error {
	result, err := p.client.SearchRepositories(ctx, p.query, github.SearchOptions{
		Sort:    p.sort,
		Order:   p.order,
		Page:    chunk,
		PerPage: githubPageSize,
	})
	if err != nil {
		return classify(err)
	}
	p.total = result.TotalCount
	p.chunk = chunk
	p.items = result.Items
	return nil
}

func classify(err error) error {
	if github.IsRateLimited(err) {
		return Retryable(err)
	}
	return Fatal(err)
}
