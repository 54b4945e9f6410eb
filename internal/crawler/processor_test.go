package crawler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/jparise/gh-sift/internal/clone"
	"github.com/jparise/gh-sift/internal/github"
	"github.com/jparise/gh-sift/internal/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalRepo(t *testing.T, name, content string) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	_, err = wt.Add(name)
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func TestRepoProcessor(t *testing.T) {
	src := newLocalRepo(t, "main.c", "int main() {\n  char buf[8];\n  gets(buf);\n}\n")

	rules, err := scanner.Select(scanner.DefaultRules(), []string{"cpp-bo"})
	require.NoError(t, err)
	s, err := scanner.New(rules, scanner.Options{})
	require.NoError(t, err)

	workDir := t.TempDir()
	p := &RepoProcessor{Cloner: &clone.Cloner{BaseDir: workDir}, Scanner: s}

	repo := github.Repository{Owner: "octo", Name: "vuln", FullName: "octo/vuln", CloneURL: src}
	findings, err := p.Process(context.Background(), repo)
	require.NoError(t, err)

	assert.Equal(t, []scanner.Finding{{Rule: "cpp-bo", Path: "main.c", Line: 3, Excerpt: "gets(buf)"}}, findings)
	assert.NoDirExists(t, filepath.Join(workDir, "octo", "vuln"), "checkout must be removed")
}

func TestRepoProcessor_EmptyRepository(t *testing.T) {
	src := t.TempDir()
	_, err := git.PlainInit(src, false)
	require.NoError(t, err)

	s, err := scanner.New(scanner.DefaultRules(), scanner.Options{})
	require.NoError(t, err)
	p := &RepoProcessor{Cloner: &clone.Cloner{BaseDir: t.TempDir()}, Scanner: s}

	findings, err := p.Process(context.Background(), github.Repository{Owner: "o", Name: "e", FullName: "o/e", CloneURL: src})
	assert.NoError(t, err)
	assert.Empty(t, findings)
}
