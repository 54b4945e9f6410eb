package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"gopkg.in/h2non/gock.v1"
)

func TestMain(m *testing.M) {
	// Disable real HTTP requests during tests
	gock.DisableNetworking()
	os.Exit(m.Run())
}

// generateSearchPage creates a search API response body with count items.
func generateSearchPage(owner string, startNum, count, total int) string {
	items := make([]string, count)
	for i := range count {
		repoNum := startNum + i
		//nolint:gocritic // JSON template requires literal quoted strings
		items[i] = fmt.Sprintf(`{"name": "repo%d", "full_name": "%s/repo%d", "owner": {"login": "%s"}, "html_url": "https://github.com/%s/repo%d", "clone_url": "https://github.com/%s/repo%d.git", "default_branch": "main", "size": 1024, "stargazers_count": 100}`,
			repoNum, owner, repoNum, owner, owner, repoNum, owner, repoNum)
	}
	return fmt.Sprintf(`{"total_count": %d, "incomplete_results": false, "items": [%s]}`, total, strings.Join(items, ","))
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(ClientOptions{
		AuthToken:    "fake-token",
		DisableCache: true,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

// TestNewClient tests client initialization with various options.
func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		opts    ClientOptions
		wantErr bool
	}{
		{
			name: "default options",
			opts: ClientOptions{
				AuthToken: "fake-token",
				CacheTTL:  24 * time.Hour,
			},
		},
		{
			name: "cache disabled",
			opts: ClientOptions{
				AuthToken:    "fake-token",
				DisableCache: true,
			},
		},
		{
			name: "custom cache directory",
			opts: ClientOptions{
				AuthToken: "fake-token",
				CacheDir:  "/tmp/test-cache",
				CacheTTL:  time.Hour,
			},
		},
		{
			name: "search pacing",
			opts: ClientOptions{
				AuthToken:      "fake-token",
				DisableCache:   true,
				SearchInterval: 2 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && client == nil {
				t.Error("NewClient() returned nil client")
			}
			if !tt.wantErr && (client.limiter != nil) != (tt.opts.SearchInterval > 0) {
				t.Errorf("NewClient() limiter = %v, want pacing %v", client.limiter, tt.opts.SearchInterval > 0)
			}
		})
	}
}

// TestSearchRepositories tests the request parameters and response decoding.
func TestSearchRepositories(t *testing.T) {
	t.Cleanup(gock.Off)

	query := "stars:75..150 language:php created:2023-02-16..2023-03-15"
	gock.New("https://api.github.com").
		Get("/search/repositories").
		MatchParam("q", regexp.QuoteMeta(query)).
		MatchParam("sort", "stars").
		MatchParam("order", "desc").
		MatchParam("per_page", "100").
		MatchParam("page", "2").
		Reply(200).
		JSON(generateSearchPage("octocat", 101, 3, 103))

	client := newTestClient(t)

	result, err := client.SearchRepositories(context.Background(), query, SearchOptions{
		Sort:  "stars",
		Order: "desc",
		Page:  2,
	})
	if err != nil {
		t.Fatalf("SearchRepositories() unexpected error: %v", err)
	}

	if result.TotalCount != 103 {
		t.Errorf("TotalCount = %d, want 103", result.TotalCount)
	}
	if len(result.Items) != 3 {
		t.Fatalf("len(Items) = %d, want 3", len(result.Items))
	}

	first := result.Items[0]
	if first.FullName != "octocat/repo101" {
		t.Errorf("FullName = %q, want %q", first.FullName, "octocat/repo101")
	}
	if first.Owner != "octocat" {
		t.Errorf("Owner = %q, want %q", first.Owner, "octocat")
	}
	if first.CloneURL != "https://github.com/octocat/repo101.git" {
		t.Errorf("CloneURL = %q", first.CloneURL)
	}
	if first.Stars != 100 {
		t.Errorf("Stars = %d, want 100", first.Stars)
	}

	if !gock.IsDone() {
		t.Errorf("not all mocks were called: %v", gock.Pending())
	}
}

// TestSearchRepositories_Errors tests error classification.
func TestSearchRepositories_Errors(t *testing.T) {
	tests := []struct {
		name        string
		mockStatus  int
		mockHeaders map[string]string
		mockBody    string
		wantLimited bool
		wantReset   time.Time
	}{
		{
			name:        "primary rate limit",
			mockStatus:  403,
			mockHeaders: map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Reset": "1700000000"},
			mockBody:    `{"message": "API rate limit exceeded for user ID 1."}`,
			wantLimited: true,
			wantReset:   time.Unix(1700000000, 0),
		},
		{
			name:        "secondary rate limit",
			mockStatus:  403,
			mockBody:    `{"message": "You have exceeded a secondary rate limit. Please wait a few minutes before you try again."}`,
			wantLimited: true,
		},
		{
			name:        "too many requests",
			mockStatus:  429,
			mockBody:    `{"message": "Too Many Requests"}`,
			wantLimited: true,
		},
		{
			name:        "forbidden",
			mockStatus:  403,
			mockBody:    `{"message": "Resource not accessible by integration"}`,
			wantLimited: false,
		},
		{
			name:        "validation failed",
			mockStatus:  422,
			mockBody:    `{"message": "Validation Failed"}`,
			wantLimited: false,
		},
		{
			name:        "server error",
			mockStatus:  500,
			mockBody:    `{"message": "Internal Server Error"}`,
			wantLimited: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(gock.Off)

			reply := gock.New("https://api.github.com").
				Get("/search/repositories").
				Reply(tt.mockStatus)
			for k, v := range tt.mockHeaders {
				reply.SetHeader(k, v)
			}
			reply.JSON(tt.mockBody)

			client := newTestClient(t)

			_, err := client.SearchRepositories(context.Background(), "language:go", SearchOptions{})
			if err == nil {
				t.Fatal("SearchRepositories() expected error, got nil")
			}

			if got := IsRateLimited(err); got != tt.wantLimited {
				t.Errorf("IsRateLimited() = %v, want %v (err: %v)", got, tt.wantLimited, err)
			}

			if !tt.wantReset.IsZero() {
				var rlErr *RateLimitError
				if !errors.As(err, &rlErr) {
					t.Fatalf("expected *RateLimitError, got %T", err)
				}
				if !rlErr.Reset.Equal(tt.wantReset) {
					t.Errorf("Reset = %v, want %v", rlErr.Reset, tt.wantReset)
				}
			}
		})
	}
}

// TestSearchRepositories_ContextCanceled tests context cancellation.
func TestSearchRepositories_ContextCanceled(t *testing.T) {
	t.Cleanup(gock.Off)

	gock.New("https://api.github.com").
		Get("/search/repositories").
		Reply(200).
		JSON(generateSearchPage("octocat", 1, 1, 1))

	client := newTestClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := client.SearchRepositories(ctx, "language:go", SearchOptions{})
	if err == nil {
		t.Error("expected context canceled error")
	}
}

// TestRateLimits tests rate limit status decoding.
func TestRateLimits(t *testing.T) {
	t.Cleanup(gock.Off)

	gock.New("https://api.github.com").
		Get("/rate_limit").
		Reply(200).
		JSON(`{"resources": {"core": {"limit": 5000, "remaining": 4999, "reset": 1700000000}, "search": {"limit": 30, "remaining": 1, "reset": 1700000060}}}`)

	client := newTestClient(t)

	limits, err := client.RateLimits(context.Background())
	if err != nil {
		t.Fatalf("RateLimits() unexpected error: %v", err)
	}

	if limits.Resources.Core.Remaining != 4999 {
		t.Errorf("Core.Remaining = %d, want 4999", limits.Resources.Core.Remaining)
	}
	if limits.Resources.Search.Remaining != 1 {
		t.Errorf("Search.Remaining = %d, want 1", limits.Resources.Search.Remaining)
	}
	if !limits.Resources.Search.ResetTime().Equal(time.Unix(1700000060, 0)) {
		t.Errorf("Search.ResetTime() = %v", limits.Resources.Search.ResetTime())
	}
}

// TestRepositoryUnmarshal tests flattening of the nested owner object.
func TestRepositoryUnmarshal(t *testing.T) {
	body := `{"name": "gh-sift", "full_name": "jparise/gh-sift", "owner": {"login": "jparise"}, "description": "sift GitHub", "language": "Go", "forks_count": 3, "fork": true, "archived": true, "created_at": "2023-03-01T10:00:00Z"}`

	var repo Repository
	if err := json.Unmarshal([]byte(body), &repo); err != nil {
		t.Fatalf("Unmarshal() unexpected error: %v", err)
	}

	want := Repository{
		Owner:       "jparise",
		Name:        "gh-sift",
		FullName:    "jparise/gh-sift",
		Description: "sift GitHub",
		Language:    "Go",
		Forks:       3,
		Fork:        true,
		Archived:    true,
		CreatedAt:   time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if repo != want {
		t.Errorf("Unmarshal() = %+v, want %+v", repo, want)
	}
}
