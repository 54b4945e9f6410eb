package crawler

import (
	"fmt"
	"io"
	"sync"

	"github.com/cli/go-gh/v2/pkg/auth"
	"github.com/jparise/gh-sift/internal/github"
	"github.com/jparise/gh-sift/internal/scanner"
	"github.com/mgutz/ansi"
)

// Output handles all user-facing output with optional color and hyperlink
// support. It is safe for concurrent use.
type Output struct {
	mu         sync.Mutex
	stdout     io.Writer
	stderr     io.Writer
	hostname   string
	hyperlinks bool

	cyan    func(string) string
	green   func(string) string
	white   func(string) string
	magenta func(string) string
	yellow  func(string) string
}

// NewOutput creates a new Output with optional color and hyperlink support.
func NewOutput(stdout, stderr io.Writer, colorize, hyperlinks bool) *Output {
	hostname, _ := auth.DefaultHost()

	color := func(name string) func(string) string {
		if colorize {
			return ansi.ColorFunc(name)
		}
		return ansi.ColorFunc("")
	}

	return &Output{
		stdout:     stdout,
		stderr:     stderr,
		hostname:   hostname,
		hyperlinks: hyperlinks,
		cyan:       color("cyan"),
		green:      color("green+b"),
		white:      color("white"),
		magenta:    color("magenta"),
		yellow:     color("yellow"),
	}
}

func makeHyperlink(url, text string) string {
	return fmt.Sprintf("\033]8;;%s\033\\%s\033]8;;\033\\", url, text)
}

// Finding writes a match in the format: owner/repo:path:line: [rule] excerpt.
func (o *Output) Finding(repo github.Repository, f scanner.Finding) {
	o.mu.Lock()
	defer o.mu.Unlock()

	location := fmt.Sprintf("%s/%s:%s:%d",
		o.cyan(repo.Owner),
		o.green(repo.Name),
		o.white(f.Path),
		f.Line)

	if o.hyperlinks {
		ref := repo.DefaultBranch
		if ref == "" {
			ref = "HEAD"
		}
		url := fmt.Sprintf("https://%s/%s/%s/blob/%s/%s#L%d", o.hostname, repo.Owner, repo.Name, ref, f.Path, f.Line)
		location = makeHyperlink(url, location)
	}

	fmt.Fprintf(o.stdout, "%s: %s %s\n", location, o.magenta("["+f.Rule+"]"), f.Excerpt)
}

// Warningf writes a formatted warning message to stderr.
func (o *Output) Warningf(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.stderr, o.yellow("Warning: ")+format+"\n", args...)
}

// Infof writes a formatted informational message to stderr.
func (o *Output) Infof(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.stderr, format+"\n", args...)
}
