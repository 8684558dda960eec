package nanny

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/log"
)

var testRange = PortRange{Lo: 38470, Hi: 38489}

func testOptions(t *testing.T, opts ...Option) []Option {
	t.Helper()

	return append([]Option{
		WithStorageDir(t.TempDir()),
		WithLogger(log.Make(io.Discard)),
		WithPortRanges(testRange),
		WithStopTimeout(2 * time.Second),
		WithWatch(false),
	}, opts...)
}

func testConfig(t *testing.T, opts ...Option) Config {
	t.Helper()

	return MakeConfig(testOptions(t, opts...)...)
}

// initRepo creates a git repository in a temporary directory with one
// committed file and returns its path.
func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}

	commitFiles(t, repo, dir, files)

	return dir
}

func commitFiles(t *testing.T, repo *git.Repository, dir string, files map[string]string) {
	t.Helper()

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}

	for name, content := range files {
		path := filepath.Join(dir, name)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		if _, err := wt.Add(name); err != nil {
			t.Fatal(err)
		}
	}

	_, err = wt.Commit("update", &git.CommitOptions{
		Author: &object.Signature{Name: "nanny", Email: "nanny@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func gitOpen(dir string) (*git.Repository, error) { return git.PlainOpen(dir) }

// requireGit skips tests that clone over the local file transport, which
// shells out to git-upload-pack.
func requireGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func testStore(t *testing.T, cfg Config) *Store {
	t.Helper()

	s, err := OpenStore(t.Context(), cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}

	return s
}

// seedApp records a command app and creates its checkout directory without
// cloning anything.
func seedApp(t *testing.T, s *Store, name, command string) Metadata {
	t.Helper()

	m := Metadata{
		Name:    name,
		Kind:    KindCommand,
		Repo:    "file:///dev/null",
		Command: command,
		Env:     envtext.FromPairs("GREETING", "hello"),
	}

	if err := os.MkdirAll(s.cfg.AppDir(name), 0o700); err != nil {
		t.Fatal(err)
	}

	if err := s.Add(context.Background(), m); err != nil {
		t.Fatalf("Add(%s): %v", name, err)
	}

	return m
}

func itoa(n int) string { return strconv.Itoa(n) }
