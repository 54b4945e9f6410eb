// Package github provides GitHub API client functionality for gh-sift.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"
	"golang.org/x/time/rate"
)

const (
	// MaxSearchResults is the number of results the search API will return
	// for a single query, no matter how many match.
	MaxSearchResults = 1000

	pageSize = 100
)

// ClientOptions configures the GitHub API client.
type ClientOptions struct {
	AuthToken    string
	Host         string
	CacheDir     string
	CacheTTL     time.Duration
	DisableCache bool

	// SearchInterval is the minimum spacing between search requests.
	// Zero disables client-side pacing.
	SearchInterval time.Duration
}

// Client wraps the go-gh REST client.
type Client struct {
	rest    *api.RESTClient
	live    *api.RESTClient // never cached; used for rate limit status
	limiter *rate.Limiter
}

// NewClient creates a new GitHub API client with the given options.
func NewClient(opts ClientOptions) (*Client, error) {
	apiOpts := api.ClientOptions{
		AuthToken:   opts.AuthToken,
		Host:        opts.Host,
		CacheDir:    opts.CacheDir,
		CacheTTL:    opts.CacheTTL,
		EnableCache: !opts.DisableCache,
	}

	rest, err := api.NewRESTClient(apiOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	apiOpts.EnableCache = false
	live, err := api.NewRESTClient(apiOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	c := &Client{
		rest: rest,
		live: live,
	}
	if opts.SearchInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.SearchInterval), 1)
	}

	return c, nil
}

// SearchOptions controls ordering and pagination of a repository search.
type SearchOptions struct {
	Sort    string // stars, forks, help-wanted-issues, updated
	Order   string // asc, desc
	Page    int    // 1-based
	PerPage int    // at most 100
}

// SearchRepositories runs a single repository search request.
func (c *Client) SearchRepositories(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("q", query)
	if opts.Sort != "" {
		params.Set("sort", opts.Sort)
	}
	if opts.Order != "" {
		params.Set("order", opts.Order)
	}
	perPage := opts.PerPage
	if perPage <= 0 || perPage > pageSize {
		perPage = pageSize
	}
	params.Set("per_page", strconv.Itoa(perPage))
	if opts.Page > 1 {
		params.Set("page", strconv.Itoa(opts.Page))
	}

	var result SearchResult
	endpoint := "search/repositories?" + params.Encode()
	if err := c.rest.DoWithContext(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to search repositories: %w", classify(err))
	}

	return &result, nil
}

// RateLimits fetches the current rate limit status. The request itself does
// not count against the quota.
func (c *Client) RateLimits(ctx context.Context) (*RateLimits, error) {
	var result RateLimits
	if err := c.live.DoWithContext(ctx, http.MethodGet, "rate_limit", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get rate limit: %w", classify(err))
	}
	return &result, nil
}

// RateLimitError reports a request rejected by the primary or secondary
// rate limit.
type RateLimitError struct {
	Reset time.Time // zero if the response did not say
	Err   error
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return fmt.Sprintf("rate limited: %v", e.Err)
	}
	return fmt.Sprintf("rate limited until %s: %v", e.Reset.Format(time.RFC3339), e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err was caused by a rate limit.
func IsRateLimited(err error) bool {
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// classify turns rate limit rejections into a *RateLimitError. GitHub uses
// 403 for both permission problems and rate limits, so the headers and the
// message decide.
func classify(err error) error {
	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}
	if httpErr.StatusCode != http.StatusForbidden && httpErr.StatusCode != http.StatusTooManyRequests {
		return err
	}

	limited := httpErr.StatusCode == http.StatusTooManyRequests ||
		httpErr.Headers.Get("X-RateLimit-Remaining") == "0" ||
		httpErr.Headers.Get("Retry-After") != "" ||
		strings.Contains(strings.ToLower(httpErr.Message), "rate limit")
	if !limited {
		return err
	}

	rlErr := &RateLimitError{Err: err}
	if v := httpErr.Headers.Get("Retry-After"); v != "" {
		if secs, perr := strconv.Atoi(v); perr == nil {
			rlErr.Reset = time.Now().Add(time.Duration(secs) * time.Second)
		}
	} else if v := httpErr.Headers.Get("X-RateLimit-Reset"); v != "" {
		if epoch, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			rlErr.Reset = time.Unix(epoch, 0)
		}
	}
	return rlErr
}
