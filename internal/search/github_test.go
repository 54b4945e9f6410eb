package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jparise/gh-sift/internal/github"
	"gopkg.in/h2non/gock.v1"
)

func TestMain(m *testing.M) {
	// Disable real HTTP requests during tests
	gock.DisableNetworking()
	os.Exit(m.Run())
}

func searchBody(start, count, total int) string {
	items := make([]string, count)
	for i := range count {
		//nolint:gocritic // JSON template requires literal quoted strings
		items[i] = fmt.Sprintf(`{"name": "repo%d", "full_name": "octocat/repo%d", "owner": {"login": "octocat"}}`, start+i, start+i)
	}
	return fmt.Sprintf(`{"total_count": %d, "items": [%s]}`, total, strings.Join(items, ","))
}

func newTestGitHubSearcher(t *testing.T) *GitHubSearcher {
	t.Helper()
	client, err := github.NewClient(github.ClientOptions{
		AuthToken:    "fake-token",
		DisableCache: true,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return NewGitHubSearcher(client)
}

func TestGitHubSearcher_LazyPages(t *testing.T) {
	t.Cleanup(gock.Off)

	gock.New("https://api.github.com").
		Get("/search/repositories").
		MatchParam("q", "language:go").
		MatchParam("per_page", "100").
		ParamPresent("sort").
		Reply(200).
		JSON(searchBody(0, 100, 150))
	gock.New("https://api.github.com").
		Get("/search/repositories").
		MatchParam("page", "2").
		Reply(200).
		JSON(searchBody(100, 50, 150))

	s := newTestGitHubSearcher(t)

	page, err := s.Search(context.Background(), "language:go", "stars", "desc")
	if err != nil {
		t.Fatalf("Search() unexpected error: %v", err)
	}
	if page.TotalCount() != 150 {
		t.Errorf("TotalCount() = %d, want 150", page.TotalCount())
	}

	r, err := page.Get(context.Background(), 99)
	if err != nil {
		t.Fatalf("Get(99) unexpected error: %v", err)
	}
	if r.FullName != "octocat/repo99" {
		t.Errorf("Get(99) = %s, want octocat/repo99", r.FullName)
	}

	r, err = page.Get(context.Background(), 120)
	if err != nil {
		t.Fatalf("Get(120) unexpected error: %v", err)
	}
	if r.FullName != "octocat/repo120" {
		t.Errorf("Get(120) = %s, want octocat/repo120", r.FullName)
	}

	if _, err := page.Get(context.Background(), 150); KindOf(err) != KindFatal || err == nil {
		t.Errorf("Get(150) error = %v, want fatal out of range", err)
	}

	if !gock.IsDone() {
		t.Errorf("not all mocks were called: %v", gock.Pending())
	}
}

func TestGitHubSearcher_PageShrunk(t *testing.T) {
	t.Cleanup(gock.Off)

	gock.New("https://api.github.com").
		Get("/search/repositories").
		MatchParam("q", "language:go").
		Reply(200).
		JSON(searchBody(0, 100, 150))
	gock.New("https://api.github.com").
		Get("/search/repositories").
		MatchParam("page", "2").
		Reply(200).
		JSON(searchBody(100, 10, 110))

	s := newTestGitHubSearcher(t)

	page, err := s.Search(context.Background(), "language:go", "stars", "desc")
	if err != nil {
		t.Fatalf("Search() unexpected error: %v", err)
	}

	if _, err := page.Get(context.Background(), 120); !errors.Is(err, ErrPageShrunk) {
		t.Errorf("Get(120) error = %v, want ErrPageShrunk", err)
	}
	if page.TotalCount() != 110 {
		t.Errorf("TotalCount() = %d, want 110", page.TotalCount())
	}
}

func TestGitHubSearcher_ErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		mockStatus int
		mockHeader map[string]string
		mockBody   string
		wantKind   Kind
	}{
		{
			name:       "rate limited",
			mockStatus: 403,
			mockHeader: map[string]string{"X-RateLimit-Remaining": "0"},
			mockBody:   `{"message": "API rate limit exceeded"}`,
			wantKind:   KindRetryable,
		},
		{
			name:       "secondary rate limit",
			mockStatus: 429,
			mockHeader: map[string]string{"Retry-After": "60"},
			mockBody:   `{"message": "You have exceeded a secondary rate limit."}`,
			wantKind:   KindRetryable,
		},
		{
			name:       "malformed query",
			mockStatus: 422,
			mockBody:   `{"message": "Validation Failed"}`,
			wantKind:   KindFatal,
		},
		{
			name:       "bad credentials",
			mockStatus: 401,
			mockBody:   `{"message": "Bad credentials"}`,
			wantKind:   KindFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(gock.Off)

			reply := gock.New("https://api.github.com").
				Get("/search/repositories").
				Reply(tt.mockStatus)
			for k, v := range tt.mockHeader {
				reply.SetHeader(k, v)
			}
			reply.JSON(tt.mockBody)

			s := newTestGitHubSearcher(t)

			_, err := s.Search(context.Background(), "language:go", "stars", "desc")
			if err == nil {
				t.Fatal("Search() expected error, got nil")
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v (err: %v)", got, tt.wantKind, err)
			}
		})
	}
}

func TestGitHubSearcher_RateLimit(t *testing.T) {
	t.Cleanup(gock.Off)

	gock.New("https://api.github.com").
		Get("/rate_limit").
		Reply(200).
		JSON(`{"resources": {"core": {"limit": 5000, "remaining": 5000, "reset": 1700000000}, "search": {"limit": 30, "remaining": 0, "reset": 1700000042}}}`)

	s := newTestGitHubSearcher(t)

	quota, err := s.RateLimit(context.Background())
	if err != nil {
		t.Fatalf("RateLimit() unexpected error: %v", err)
	}
	if quota.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", quota.Remaining)
	}
	if !quota.Reset.Equal(time.Unix(1700000042, 0)) {
		t.Errorf("Reset = %v, want %v", quota.Reset, time.Unix(1700000042, 0))
	}
}
