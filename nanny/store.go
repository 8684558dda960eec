package nanny

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/log"
	"github.com/ardnew/nanny/pkg"
)

const (
	envFileName   = ".env"
	lockRetry     = 25 * time.Millisecond
	metadataPerms = 0o600
)

// Store persists app metadata as a JSON array in the storage directory.
//
// Reads and writes are serialized within the process by a mutex and across
// processes by an advisory lock on "<metadata file>.lock". Every mutation
// re-reads the file under the lock, so a CLI and a running server may share
// one storage directory.
type Store struct {
	cfg  Config
	log  log.Logger
	lock *flock.Flock
	io   sync.Mutex // serializes use of lock within the process

	writeFile func(path string, data []byte) error

	mu   sync.RWMutex
	apps []Metadata
}

// OpenStore creates the storage directory if needed and loads the metadata.
func OpenStore(ctx context.Context, cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.StorageDir, pkg.DirMode); err != nil {
		return nil, ErrStore.Wrap(err).With(slog.String("dir", cfg.StorageDir))
	}

	s := &Store{
		cfg:  cfg,
		log:  cfg.Logger.With(slog.String("component", "store")),
		lock: flock.New(cfg.MetadataPath() + ".lock"),

		writeFile: writeFileAtomic,
	}

	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Path returns the metadata file path.
func (s *Store) Path() string { return s.cfg.MetadataPath() }

// Load replaces the in-memory metadata with the file's contents.
//
// A missing file is an empty store. A file that is not a JSON array is
// logged and treated as empty; entries that fail validation are logged and
// skipped.
func (s *Store) Load(ctx context.Context) error {
	var apps []Metadata

	err := s.withFileLock(ctx, false, func() error {
		var err error

		apps, err = s.read(ctx)

		return err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.apps = apps
	s.mu.Unlock()

	s.log.DebugContext(ctx, "metadata loaded",
		slog.String("path", s.Path()),
		slog.Int("apps", len(apps)),
	)

	return nil
}

// Reload is [Store.Load] under the name used by the watcher.
func (s *Store) Reload(ctx context.Context) error { return s.Load(ctx) }

// Get returns a copy of the named app's metadata.
func (s *Store) Get(name string) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.index(name)
	if i < 0 {
		return Metadata{}, ErrNotFound.With(slog.String("app", name))
	}

	return s.apps[i].clone(), nil
}

// All returns copies of every app's metadata sorted by name.
func (s *Store) All() []Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Metadata, 0, len(s.apps))
	for _, m := range s.apps {
		out = append(out, m.clone())
	}

	slices.SortFunc(out, func(a, b Metadata) int { return strings.Compare(a.Name, b.Name) })

	return out
}

// Add persists a new app. It fails with [ErrExists] if the name is taken.
func (s *Store) Add(ctx context.Context, m Metadata) error {
	return s.mutate(ctx, func(apps []Metadata) ([]Metadata, error) {
		if slices.ContainsFunc(apps, func(a Metadata) bool { return a.Name == m.Name }) {
			return nil, ErrExists.With(slog.String("app", m.Name))
		}

		if m.Env == nil {
			m.Env = envtext.New(0)
		}

		return append(apps, m.clone()), nil
	})
}

// Update applies fn to the named app's metadata and persists the result.
// If fn returns an error, nothing is written.
func (s *Store) Update(
	ctx context.Context,
	name string,
	fn func(*Metadata) error,
) (Metadata, error) {
	var updated Metadata

	err := s.mutate(ctx, func(apps []Metadata) ([]Metadata, error) {
		i := slices.IndexFunc(apps, func(a Metadata) bool { return a.Name == name })
		if i < 0 {
			return nil, ErrNotFound.With(slog.String("app", name))
		}

		m := apps[i].clone()
		if err := fn(&m); err != nil {
			return nil, err
		}

		m.Name = name
		apps[i] = m
		updated = m.clone()

		return apps, nil
	})

	return updated, err
}

// Remove deletes the named app's metadata. The checkout is left in place.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.mutate(ctx, func(apps []Metadata) ([]Metadata, error) {
		i := slices.IndexFunc(apps, func(a Metadata) bool { return a.Name == name })
		if i < 0 {
			return nil, ErrNotFound.With(slog.String("app", name))
		}

		return slices.Delete(apps, i, i+1), nil
	})
}

// SetEnv replaces the named app's environment, writing both the metadata and
// the app's .env file.
func (s *Store) SetEnv(ctx context.Context, name string, env *envtext.Map) error {
	_, err := s.UpdateEnv(ctx, name, func(*envtext.Map) (*envtext.Map, error) {
		return env, nil
	})

	return err
}

// UpdateEnv replaces the named app's environment with the result of fn,
// which receives a copy of the current one, and returns the new environment.
//
// fn runs under the exclusive lock, so concurrent updates never lose each
// other's entries. The metadata and the app's .env file change together: if
// either write fails, both keep their previous contents.
func (s *Store) UpdateEnv(
	ctx context.Context,
	name string,
	fn func(*envtext.Map) (*envtext.Map, error),
) (*envtext.Map, error) {
	var (
		env     *envtext.Map
		restore func()
	)

	err := s.commit(ctx, func(apps []Metadata) ([]Metadata, error) {
		i := slices.IndexFunc(apps, func(a Metadata) bool { return a.Name == name })
		if i < 0 {
			return nil, ErrNotFound.With(slog.String("app", name))
		}

		next, err := fn(apps[i].Env.Clone())
		if err != nil {
			return nil, err
		}

		env = next.Clone()

		var buf bytes.Buffer
		if _, err := env.WriteTo(&buf); err != nil {
			return nil, err
		}

		if restore, err = s.writeEnvFile(name, buf.Bytes()); err != nil {
			return nil, err
		}

		apps[i].Env = env.Clone()

		return apps, nil
	}, &restore)
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "environment saved",
		slog.String("app", name),
		slog.Int("vars", env.Len()),
	)

	return env, nil
}

// writeEnvFile replaces the named app's .env file with data and returns a
// function that puts the previous contents back.
func (s *Store) writeEnvFile(name string, data []byte) (func(), error) {
	path := s.EnvFile(name)

	if err := os.MkdirAll(filepath.Dir(path), pkg.DirMode); err != nil {
		return nil, ErrStore.Wrap(err).With(slog.String("path", path))
	}

	prev, err := os.ReadFile(path)
	existed := err == nil

	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, ErrStore.Wrap(err).With(slog.String("path", path))
	}

	if err := s.writeFile(path, data); err != nil {
		return nil, ErrStore.Wrap(err).With(slog.String("path", path))
	}

	return func() {
		var err error
		if existed {
			err = s.writeFile(path, prev)
		} else {
			err = os.Remove(path)
		}

		if err != nil {
			s.log.Warn("failed to restore .env file",
				slog.String("path", path),
				slog.Any("error", err),
			)
		}
	}, nil
}

// EnvFile returns the path of the named app's .env file.
func (s *Store) EnvFile(name string) string {
	return filepath.Join(s.cfg.AppDir(name), envFileName)
}

// ReadEnvFile parses the named app's .env file. A missing file is empty.
func (s *Store) ReadEnvFile(ctx context.Context, name string) (*envtext.Map, error) {
	f, err := os.Open(s.EnvFile(name))
	if errors.Is(err, fs.ErrNotExist) {
		return envtext.New(0), nil
	}

	if err != nil {
		return nil, ErrStore.Wrap(err).With(slog.String("app", name))
	}
	defer f.Close()

	return envtext.ParseReader(ctx, f)
}

// mutate runs fn over the current file contents under the exclusive lock
// and writes the result.
func (s *Store) mutate(
	ctx context.Context,
	fn func([]Metadata) ([]Metadata, error),
) error {
	return s.commit(ctx, fn, nil)
}

// commit is [Store.mutate] with an undo hook. If fn succeeds but the
// metadata cannot be written, the function undo points to (if any) runs
// before the lock is released.
func (s *Store) commit(
	ctx context.Context,
	fn func([]Metadata) ([]Metadata, error),
	undo *func(),
) error {
	return s.withFileLock(ctx, true, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		apps, err := s.read(ctx)
		if err != nil {
			return err
		}

		apps, err = fn(apps)
		if err != nil {
			return err
		}

		if err := s.write(apps); err != nil {
			if undo != nil && *undo != nil {
				(*undo)()
			}

			return err
		}

		s.apps = apps

		return nil
	})
}

// withFileLock runs fn holding the metadata file lock, shared or exclusive.
func (s *Store) withFileLock(ctx context.Context, exclusive bool, fn func() error) error {
	s.io.Lock()
	defer s.io.Unlock()

	try := s.lock.TryRLockContext
	if exclusive {
		try = s.lock.TryLockContext
	}

	if _, err := try(ctx, lockRetry); err != nil {
		return ErrStore.Wrap(err).With(slog.String("lock", s.lock.Path()))
	}

	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.WarnContext(ctx, "metadata unlock failed", slog.Any("error", err))
		}
	}()

	return fn()
}

// read decodes the metadata file. The caller holds the file lock.
func (s *Store) read(ctx context.Context) ([]Metadata, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return []Metadata{}, nil
	}

	if err != nil {
		return nil, ErrStore.Wrap(err).With(slog.String("path", s.Path()))
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []Metadata{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.ErrorContext(ctx, "metadata file is corrupt, ignoring it",
			slog.String("path", s.Path()),
			slog.Any("error", err),
		)

		return []Metadata{}, nil
	}

	apps := make([]Metadata, 0, len(raw))

	for i, entry := range raw {
		var m Metadata

		err := validateEntry(entry)
		if err == nil {
			err = json.Unmarshal(entry, &m)
		}

		if err == nil && slices.ContainsFunc(apps, func(a Metadata) bool { return a.Name == m.Name }) {
			err = ErrExists.With(slog.String("app", m.Name))
		}

		if err != nil {
			s.log.WarnContext(ctx, "skipping invalid metadata entry",
				slog.Int("index", i),
				slog.Any("error", err),
			)

			continue
		}

		if m.Env == nil {
			m.Env = envtext.New(0)
		}

		apps = append(apps, m)
	}

	return apps, nil
}

// write encodes apps to the metadata file. The caller holds the file lock.
func (s *Store) write(apps []Metadata) error {
	data, err := json.MarshalIndent(apps, "", "  ")
	if err != nil {
		return ErrStore.Wrap(err)
	}

	if err := s.writeFile(s.Path(), append(data, '\n')); err != nil {
		return ErrStore.Wrap(err).With(slog.String("path", s.Path()))
	}

	return nil
}

func (s *Store) index(name string) int {
	return slices.IndexFunc(s.apps, func(a Metadata) bool { return a.Name == name })
}

// writeFileAtomic replaces path with data via a temporary file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	name := tmp.Name()

	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}

	if err == nil {
		err = os.Chmod(name, metadataPerms)
	}

	if err == nil {
		err = os.Rename(name, path)
	}

	if err != nil {
		_ = os.Remove(name)
	}

	return err
}
