package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/log"
	"github.com/ardnew/nanny/nanny"
)

// fakeService is an in-memory Service.
type fakeService struct {
	mu         sync.Mutex
	apps       map[string]*fakeApp
	heartbeats map[string]int
	startErr   error
}

type fakeApp struct {
	info nanny.Info
	env  *envtext.Map
}

func newFakeService(names ...string) *fakeService {
	f := &fakeService{
		apps:       make(map[string]*fakeApp),
		heartbeats: make(map[string]int),
	}

	for _, name := range names {
		f.apps[name] = &fakeApp{
			info: nanny.Info{Name: name, Kind: nanny.KindCommand},
			env:  envtext.New(0),
		}
	}

	return f
}

func quietLogger() log.Logger { return log.Make(io.Discard) }

func (f *fakeService) app(name string) (*fakeApp, error) {
	a, ok := f.apps[name]
	if !ok {
		return nil, nanny.ErrNotFound.With(slog.String("app", name))
	}

	return a, nil
}

func (f *fakeService) Create(ctx context.Context, req nanny.CreateRequest) (int, error) {
	m, err := req.Validate()
	if err != nil {
		return 0, err
	}

	f.mu.Lock()

	if _, ok := f.apps[m.Name]; ok {
		f.mu.Unlock()

		return 0, nanny.ErrExists.With(slog.String("app", m.Name))
	}

	f.apps[m.Name] = &fakeApp{
		info: nanny.Info{Name: m.Name, Kind: m.Kind, Repo: m.Repo, Path: m.Path},
		env:  m.Env,
	}

	f.mu.Unlock()

	return f.Start(ctx, m.Name)
}

func (f *fakeService) Start(_ context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.startErr != nil {
		return 0, f.startErr
	}

	a, err := f.app(name)
	if err != nil {
		return 0, err
	}

	if a.info.Running {
		return a.info.Port, nil
	}

	if a.info.Port == 0 {
		a.info.Port = 8080
	}

	a.info.Running, a.info.Active = true, true

	return a.info.Port, nil
}

func (f *fakeService) Stop(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.app(name)
	if err != nil {
		return err
	}

	if !a.info.Running {
		return nanny.ErrNotRunning.With(slog.String("app", name))
	}

	a.info.Running, a.info.Active = false, false

	return nil
}

func (f *fakeService) Restart(ctx context.Context, name string) (int, error) {
	if err := f.Stop(ctx, name); err != nil && !isNotRunning(err) {
		return 0, err
	}

	return f.Start(ctx, name)
}

func (f *fakeService) Heartbeat(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.app(name)
	if err != nil {
		return err
	}

	if !a.info.Running {
		return nanny.ErrNotRunning.With(slog.String("app", name))
	}

	f.heartbeats[name]++

	return nil
}

func (f *fakeService) Port(name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.app(name)
	if err != nil {
		return 0, err
	}

	if !a.info.Running {
		return 0, nanny.ErrNotRunning.With(slog.String("app", name))
	}

	return a.info.Port, nil
}

func (f *fakeService) List(context.Context) []nanny.Info {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]nanny.Info, 0, len(f.apps))
	for _, a := range f.apps {
		out = append(out, a.info)
	}

	return out
}

func (f *fakeService) Env(name string) (*envtext.Map, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.app(name)
	if err != nil {
		return nil, err
	}

	return a.env.Clone(), nil
}

func (f *fakeService) SetEnv(_ context.Context, name string, env *envtext.Map) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.app(name)
	if err != nil {
		return err
	}

	if _, err := env.WriteTo(io.Discard); err != nil {
		return err
	}

	a.env = env.Clone()

	return nil
}

func (f *fakeService) ImportEnv(
	ctx context.Context,
	name, text string,
	mode envtext.Mode,
) (*envtext.Map, error) {
	existing, err := f.Env(name)
	if err != nil {
		return nil, err
	}

	merged := envtext.Merge(existing, envtext.Parse(text), mode)

	if err := f.SetEnv(ctx, name, merged); err != nil {
		return nil, err
	}

	return merged, nil
}

func (f *fakeService) setPort(name string, port int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.apps[name].info.Port = port
	f.apps[name].info.Running = true
}

func (f *fakeService) heartbeatCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.heartbeats[name]
}

func isNotRunning(err error) bool { return errors.Is(err, nanny.ErrNotRunning) }
