package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/nanny"
)

// DefaultServer is the base URL client commands use unless configured.
const DefaultServer = "http://127.0.0.1:5000"

// Vars returns the kong variables referenced by the command tags.
func Vars() kong.Vars {
	kinds := make([]string, 0, len(nanny.Kinds()))
	for _, k := range nanny.Kinds() {
		kinds = append(kinds, k.String())
	}

	return kong.Vars{
		StorageIdentifier: nanny.DefaultStorageDir(),
		ServerIdentifier:  DefaultServer,
		"kindEnum":        strings.Join(kinds, ","),
	}
}

// ContextKey is used to store a [kong.Context] value in [context.Context].
type contextKey struct{}

// WithContext returns a new context.Context containing the given kong.Context.
func WithContext(ctx context.Context, ktx *kong.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ktx)
}

func kongContextFrom(ctx context.Context) *kong.Context {
	ktx, ok := ctx.Value(contextKey{}).(*kong.Context)
	if !ok || ktx == nil {
		return nil
	}

	return ktx
}

// stdout returns the writer commands print results to.
func stdout(ctx context.Context) io.Writer {
	if ktx := kongContextFrom(ctx); ktx != nil && ktx.Stdout != nil {
		return ktx.Stdout
	}

	return os.Stdout
}

type stdinKey struct{}

// WithStdin returns a new context.Context whose commands read "-" from r
// instead of os.Stdin.
func WithStdin(ctx context.Context, r io.Reader) context.Context {
	return context.WithValue(ctx, stdinKey{}, r)
}

func stdinFrom(ctx context.Context) io.Reader {
	if r, ok := ctx.Value(stdinKey{}).(io.Reader); ok && r != nil {
		return r
	}

	return os.Stdin
}

// stdinSource is the special source indicator for reading from stdin.
const stdinSource = "-"

// sourceFiles is an ordered set of distinct input files, optionally
// followed by stdin.
type sourceFiles struct {
	read     []io.ReadCloser
	names    []string
	hasStdin bool
}

// IsZero reports whether there are no sources.
func (s *sourceFiles) IsZero() bool { return s == nil || (len(s.read) == 0 && !s.hasStdin) }

// Close closes every opened file.
func (s *sourceFiles) Close() error {
	var first error

	for _, r := range s.read {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// parse reads every source in order and merges the results in update mode,
// so later sources override earlier ones.
func (s *sourceFiles) parse(ctx context.Context) (*envtext.Map, error) {
	env := envtext.New(0)

	read := func(name string, r io.Reader) error {
		m, err := envtext.ParseReader(ctx, r)
		if err != nil {
			return ErrReadInput.Wrap(err).With(slog.String("source", name))
		}

		env = envtext.Merge(env, m, envtext.ModeUpdate)

		return nil
	}

	for i, r := range s.read {
		if err := read(s.names[i], r); err != nil {
			return nil, err
		}
	}

	if s.hasStdin {
		if err := read(stdinSource, stdinFrom(ctx)); err != nil {
			return nil, err
		}
	}

	return env, nil
}

// fileKey uniquely identifies a file by its device and inode numbers.
// This handles deduplication across symlinks, absolute/relative paths, and
// special device files.
type fileKey struct {
	dev uint64
	ino uint64
}

// buildSourceFiles opens the given source paths.
//
// The function deduplicates files by resolving symlinks and comparing device/
// inode pairs. All occurrences of "-" are replaced with a single stdin reader
// placed last so it reads after all regular files.
func buildSourceFiles(sources []string) (*sourceFiles, error) {
	srcs := &sourceFiles{read: make([]io.ReadCloser, 0, len(sources))}
	seen := make(map[fileKey]struct{})

	for _, src := range sources {
		if src == stdinSource {
			srcs.hasStdin = true

			continue
		}

		file, ok, err := openUniqueFile(src, seen)
		if err != nil {
			_ = srcs.Close()

			return nil, ErrReadInput.Wrap(err).With(slog.String("source", src))
		}

		if ok {
			srcs.read = append(srcs.read, file)
			srcs.names = append(srcs.names, src)
		}
	}

	return srcs, nil
}

// openUniqueFile opens the file at path if it hasn't been seen before.
// It resolves symlinks and uses device/inode to detect duplicates. A
// duplicate returns false with a nil error.
func openUniqueFile(
	path string,
	seen map[fileKey]struct{},
) (io.ReadCloser, bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false, err
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, false, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, false, err
	}

	if key, ok := makeFileKey(info); ok {
		if _, exists := seen[key]; exists {
			return nil, false, nil
		}

		seen[key] = struct{}{}
	}

	file, err := os.Open(resolved)
	if err != nil {
		return nil, false, err
	}

	return file, true, nil
}

// makeFileKey creates a fileKey from os.FileInfo.
// Returns false if the underlying Sys() data is not of type *syscall.Stat_t.
func makeFileKey(info os.FileInfo) (key fileKey, ok bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return key, false
	}

	return fileKey{dev: uint64(stat.Dev), ino: stat.Ino}, true //nolint:unconvert
}

// readEnvFile parses a single .env source, which may be "-" for stdin.
func readEnvFile(ctx context.Context, path string) (*envtext.Map, error) {
	srcs, err := buildSourceFiles([]string{path})
	if err != nil {
		return nil, err
	}
	defer srcs.Close()

	return srcs.parse(ctx)
}

// readText returns the contents of a single source, which may be "-" for
// stdin.
func readText(ctx context.Context, path string) (string, error) {
	var r io.Reader

	if path == stdinSource {
		r = stdinFrom(ctx)
	} else {
		file, err := os.Open(path)
		if err != nil {
			return "", ErrReadInput.Wrap(err).With(slog.String("source", path))
		}
		defer file.Close()

		r = file
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", ErrReadInput.Wrap(err).With(slog.String("source", path))
	}

	return string(data), nil
}
