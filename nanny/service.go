package nanny

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/log"
)

// Service manages the lifecycle of apps: checkout, launch, stop, restart,
// liveness, and environment.
type Service struct {
	cfg      Config
	log      log.Logger
	store    *Store
	launcher *Launcher
	runtime  *Runtime
	watcher  *Watcher

	cancel context.CancelFunc
	wg     sync.WaitGroup

	locks sync.Map // app name → *sync.Mutex
	now   func() time.Time
}

// New opens the store described by opts, re-adopts apps left running by an
// earlier manager, and starts watching the metadata file if enabled.
func New(ctx context.Context, opts ...Option) (*Service, error) {
	cfg := MakeConfig(opts...)

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		log:      cfg.Logger.With(slog.String("component", "service")),
		store:    store,
		launcher: NewLauncher(cfg),
		runtime:  NewRuntime(cfg),
		now:      time.Now,
	}

	s.runtime.Recover(ctx, store.All())

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if cfg.Watch {
		w, err := NewWatcher(store)
		if err != nil {
			cancel()
			s.runtime.Close()

			return nil, err
		}

		s.watcher = w

		s.wg.Go(func() {
			if err := w.Run(wctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Warn("metadata watcher stopped", slog.Any("error", err))
			}
		})
	}

	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() Config { return s.cfg }

// Store returns the metadata store.
func (s *Service) Store() *Store { return s.store }

// lock serializes lifecycle operations on one app.
func (s *Service) lock(name string) func() {
	v, _ := s.locks.LoadOrStore(name, new(sync.Mutex))
	mu, _ := v.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}

// Create clones the app's repository and starts the app. It returns the
// port the app listens on.
//
// If any step fails, the checkout and the metadata are removed again, so the
// same request may be retried.
func (s *Service) Create(ctx context.Context, req CreateRequest) (port int, err error) {
	m, err := req.Validate()
	if err != nil {
		return 0, err
	}

	defer s.lock(m.Name)()

	if _, err := s.store.Get(m.Name); err == nil {
		return 0, ErrExists.With(slog.String("app", m.Name))
	}

	m.Active = false
	m.LastStartTime = 0

	if _, err := s.launcher.Clone(ctx, m.Name, m.Repo); err != nil {
		// An existing checkout belongs to someone else.
		if !errors.Is(err, ErrExists) {
			s.discard(ctx, m.Name, false)
		}

		return 0, err
	}

	recorded := false

	defer func() {
		if err != nil {
			s.discard(ctx, m.Name, recorded)
		}
	}()

	if err = s.store.Add(ctx, m); err != nil {
		return 0, err
	}

	recorded = true

	if err = s.store.SetEnv(ctx, m.Name, m.Env); err != nil {
		return 0, err
	}

	if port, err = s.start(ctx, m.Name); err != nil {
		return 0, err
	}

	s.log.InfoContext(ctx, "app created",
		slog.String("app", m.Name),
		slog.String("type", m.Kind.String()),
		slog.Int("port", port),
	)

	return port, nil
}

// discard removes what a failed Create left behind.
func (s *Service) discard(ctx context.Context, name string, recorded bool) {
	ctx = context.WithoutCancel(ctx)
	attrs := []slog.Attr{slog.String("app", name)}

	if _, ok := s.runtime.Get(name); ok {
		if err := s.stop(ctx, name); err != nil {
			s.log.WarnContext(ctx, "failed to stop app of failed create",
				append(attrs, slog.Any("error", err))...)
		}
	}

	if recorded {
		if err := s.store.Remove(ctx, name); err != nil {
			s.log.WarnContext(ctx, "failed to remove metadata of failed create",
				append(attrs, slog.Any("error", err))...)
		}
	}

	if err := os.RemoveAll(s.cfg.AppDir(name)); err != nil {
		s.log.WarnContext(ctx, "failed to remove checkout of failed create",
			append(attrs, slog.Any("error", err))...)
	}
}

// Start launches the named app and returns its port. The port it last used
// is preferred when still free. Starting an app that is already running
// returns the port it runs on.
func (s *Service) Start(ctx context.Context, name string) (int, error) {
	defer s.lock(name)()

	return s.start(ctx, name)
}

func (s *Service) start(ctx context.Context, name string) (int, error) {
	m, err := s.store.Get(name)
	if err != nil {
		return 0, err
	}

	if p, ok := s.runtime.Get(name); ok {
		s.log.DebugContext(ctx, "app already running",
			slog.String("app", name),
			slog.Int("port", p.Port),
		)

		return p.Port, nil
	}

	port, err := s.launcher.AllocatePort(m.Port, s.runtime.Reserved)
	if err != nil {
		return 0, err
	}

	dotenv, err := s.store.ReadEnvFile(ctx, name)
	if err != nil {
		return 0, err
	}

	p, err := s.launcher.Launch(ctx, m, s.launcher.Environ(dotenv, m, port), port)
	if err != nil {
		return 0, err
	}

	if err := s.runtime.Add(p); err != nil {
		_ = kill(p.PID)

		return 0, err
	}

	started := s.now()
	p.Touch(started)

	if _, err := s.store.Update(ctx, name, func(m *Metadata) error {
		m.Active = true
		m.Port = port
		m.LastStartTime = float64(started.UnixNano()) / float64(time.Second)

		return nil
	}); err != nil {
		return 0, err
	}

	s.log.InfoContext(ctx, "app started",
		slog.String("app", name),
		slog.Int("pid", p.PID),
		slog.Int("port", port),
	)

	return port, nil
}

// Stop terminates the named app, killing it if it has not exited within the
// stop timeout.
func (s *Service) Stop(ctx context.Context, name string) error {
	defer s.lock(name)()

	return s.stop(ctx, name)
}

func (s *Service) stop(ctx context.Context, name string) error {
	if _, err := s.store.Get(name); err != nil {
		return err
	}

	p, ok := s.runtime.Get(name)
	if !ok {
		return ErrNotRunning.With(slog.String("app", name))
	}

	attrs := []slog.Attr{slog.String("app", name), slog.Int("pid", p.PID)}

	if err := terminate(p.PID); err != nil && alive(p.PID) {
		return ErrStop.Wrap(err).With(attrs...)
	}

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-p.Done():
	case <-timer.C:
		s.log.WarnContext(ctx, "app did not stop in time, killing it",
			append(attrs, slog.Duration("timeout", s.cfg.StopTimeout))...)

		if err := kill(p.PID); err != nil && alive(p.PID) {
			return ErrStop.Wrap(err).With(attrs...)
		}

		select {
		case <-p.Done():
		case <-ctx.Done():
			return ErrStop.Wrap(ctx.Err()).With(attrs...)
		}
	case <-ctx.Done():
		return ErrStop.Wrap(ctx.Err()).With(attrs...)
	}

	s.runtime.Remove(name)

	if _, err := s.store.Update(ctx, name, func(m *Metadata) error {
		m.Active = false

		return nil
	}); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "app stopped", attrs...)

	return nil
}

// Restart pulls the latest code, stops the app if it is running, and starts
// it again.
func (s *Service) Restart(ctx context.Context, name string) (int, error) {
	defer s.lock(name)()

	if _, err := s.store.Get(name); err != nil {
		return 0, err
	}

	if err := s.launcher.Pull(ctx, name); err != nil {
		return 0, err
	}

	if _, ok := s.runtime.Get(name); ok {
		if err := s.stop(ctx, name); err != nil {
			return 0, err
		}
	}

	return s.start(ctx, name)
}

// Heartbeat records an access to the named app.
func (s *Service) Heartbeat(name string) error {
	if _, err := s.store.Get(name); err != nil {
		return err
	}

	p, ok := s.runtime.Get(name)
	if !ok {
		return ErrNotRunning.With(slog.String("app", name))
	}

	p.Touch(s.now())

	return nil
}

// Port returns the port of the named app if it is running.
func (s *Service) Port(name string) (int, error) {
	p, ok := s.runtime.Get(name)
	if !ok {
		if _, err := s.store.Get(name); err != nil {
			return 0, err
		}

		return 0, ErrNotRunning.With(slog.String("app", name))
	}

	return p.Port, nil
}

// List describes every app, sorted by name.
func (s *Service) List(context.Context) []Info {
	now := s.now()
	apps := s.store.All()
	out := make([]Info, 0, len(apps))

	for _, m := range apps {
		info := Info{
			Name:   m.Name,
			Kind:   m.Kind,
			Repo:   m.Repo,
			Path:   m.Path,
			Email:  m.Email,
			Active: m.Active,
			Port:   m.Port,
		}

		if p, ok := s.runtime.Get(m.Name); ok {
			info.Running = true
			info.PID = p.PID
			info.Port = p.Port
			info.Uptime = int64(p.Uptime(now) / time.Second)
			info.Idle = int64(p.Idle(now) / time.Second)
			info.LastAccess = p.LastAccess()
		}

		out = append(out, info)
	}

	return out
}

// Env returns the named app's stored environment.
func (s *Service) Env(name string) (*envtext.Map, error) {
	m, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}

	return m.Env, nil
}

// SetEnv replaces the named app's environment.
func (s *Service) SetEnv(ctx context.Context, name string, env *envtext.Map) error {
	return s.store.SetEnv(ctx, name, env)
}

// ImportEnv parses text as a .env document, merges it into the named app's
// environment with mode, and stores the result.
//
// The merge runs against the stored environment under the store's exclusive
// lock, so concurrent imports never lose each other's entries.
func (s *Service) ImportEnv(
	ctx context.Context,
	name, text string,
	mode envtext.Mode,
) (*envtext.Map, error) {
	if _, err := envtext.ParseMode(mode.String()); err != nil {
		return nil, err
	}

	incoming := envtext.Parse(text)

	return s.store.UpdateEnv(ctx, name, func(existing *envtext.Map) (*envtext.Map, error) {
		return envtext.Merge(existing, incoming, mode), nil
	})
}

// Close stops watching the metadata file. Running apps are left running and
// are re-adopted by the next [New].
func (s *Service) Close(ctx context.Context) error {
	s.cancel()
	s.runtime.Close()

	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
	}

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return err
}
