package crawler

import (
	"github.com/jparise/gh-sift/internal/github"
	"github.com/jparise/gh-sift/internal/scanner"
	"go.uber.org/zap"
)

// StateSink records processed repositories.
type StateSink interface {
	Append(id string) error
}

// FindingsSink records the findings for a repository.
type FindingsSink interface {
	Write(repo github.Repository, findings []scanner.Finding) error
}

// Options configures Run.
type Options struct {
	Jobs     int // concurrent workers
	State    StateSink
	Findings FindingsSink // optional
	Output   *Output      // optional
	Logger   *zap.Logger  // optional
}
