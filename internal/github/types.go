package github

import (
	"encoding/json"
	"time"
)

// Repository represents a GitHub repository as returned by the search API.
type Repository struct {
	Owner         string
	Name          string
	FullName      string // owner/name
	Description   string
	HTMLURL       string
	CloneURL      string
	DefaultBranch string
	Language      string
	Stars         int
	Forks         int
	Size          int // KB
	Fork          bool
	Archived      bool
	CreatedAt     time.Time
	PushedAt      time.Time
}

// UnmarshalJSON flattens the nested owner object of the REST payload.
func (r *Repository) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
		FullName      string    `json:"full_name"`
		Description   string    `json:"description"`
		HTMLURL       string    `json:"html_url"`
		CloneURL      string    `json:"clone_url"`
		DefaultBranch string    `json:"default_branch"`
		Language      string    `json:"language"`
		Stars         int       `json:"stargazers_count"`
		Forks         int       `json:"forks_count"`
		Size          int       `json:"size"`
		Fork          bool      `json:"fork"`
		Archived      bool      `json:"archived"`
		CreatedAt     time.Time `json:"created_at"`
		PushedAt      time.Time `json:"pushed_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Repository{
		Owner:         raw.Owner.Login,
		Name:          raw.Name,
		FullName:      raw.FullName,
		Description:   raw.Description,
		HTMLURL:       raw.HTMLURL,
		CloneURL:      raw.CloneURL,
		DefaultBranch: raw.DefaultBranch,
		Language:      raw.Language,
		Stars:         raw.Stars,
		Forks:         raw.Forks,
		Size:          raw.Size,
		Fork:          raw.Fork,
		Archived:      raw.Archived,
		CreatedAt:     raw.CreatedAt,
		PushedAt:      raw.PushedAt,
	}
	return nil
}

// SearchResult represents one page of the repository search API response.
type SearchResult struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []Repository `json:"items"`
}

// Rate is the status of a single rate limit bucket.
type Rate struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"` // unix seconds
}

// ResetTime returns the moment the bucket refills.
func (r Rate) ResetTime() time.Time {
	return time.Unix(r.Reset, 0)
}

// RateLimits represents the rate_limit API response.
type RateLimits struct {
	Resources struct {
		Core   Rate `json:"core"`
		Search Rate `json:"search"`
	} `json:"resources"`
}
