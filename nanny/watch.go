package nanny

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ardnew/nanny/log"
)

// DefaultDebounce is how long the watcher waits for writes to settle before
// reloading the store.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a [Store] when its metadata file changes on disk, so that
// edits made by another process become visible.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      log.Logger
	reloaded chan struct{}
}

// NewWatcher watches the storage directory of s. The directory is watched
// rather than the file because the store replaces the file by renaming.
func NewWatcher(s *Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ErrStore.Wrap(err)
	}

	dir := filepath.Dir(s.Path())

	if err := fw.Add(dir); err != nil {
		_ = fw.Close()

		return nil, ErrStore.Wrap(err).With(slog.String("dir", dir))
	}

	return &Watcher{
		store:    s,
		watcher:  fw,
		debounce: DefaultDebounce,
		log:      s.log.With(slog.String("watch", dir)),
		reloaded: make(chan struct{}, 1),
	}, nil
}

// Reloaded receives a value after each reload triggered by the watcher.
func (w *Watcher) Reloaded() <-chan struct{} { return w.reloaded }

// Run reloads the store after changes until ctx is done or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-fire:
			fire, timer = nil, nil

			if err := w.store.Reload(ctx); err != nil {
				w.log.WarnContext(ctx, "reload failed", slog.Any("error", err))

				continue
			}

			select {
			case w.reloaded <- struct{}{}:
			default:
			}

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if !w.relevant(ev) {
				continue
			}

			w.log.TraceContext(ctx, "metadata changed", slog.String("op", ev.Op.String()))

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.log.WarnContext(ctx, "watch error", slog.Any("error", err))
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error { return w.watcher.Close() }

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(w.store.Path()) {
		return false
	}

	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
