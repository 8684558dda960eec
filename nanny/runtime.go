package nanny

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/nanny/log"
)

const (
	pidFileName  = "app.pid"
	pidFilePerms = 0o644

	// recoveredPoll is how often a re-adopted process is checked for exit.
	recoveredPoll = 250 * time.Millisecond
)

// Process is a running app.
type Process struct {
	Name    string
	PID     int
	Port    int
	Started time.Time

	cmd        *exec.Cmd
	done       chan struct{}
	lastAccess atomic.Int64
	err        error
}

// startedProcess wraps a command started by the launcher. The output files
// are closed once the process exits.
func startedProcess(name string, port int, cmd *exec.Cmd, outputs ...io.Closer) *Process {
	now := time.Now()

	p := &Process{
		Name:    name,
		PID:     cmd.Process.Pid,
		Port:    port,
		Started: now,
		cmd:     cmd,
		done:    make(chan struct{}),
	}
	p.Touch(now)

	go func() {
		p.err = cmd.Wait()

		for _, c := range outputs {
			_ = c.Close()
		}

		close(p.done)
	}()

	return p
}

// adoptedProcess wraps a live process that was started by an earlier
// manager. Exit is detected by polling until ctx is done.
func adoptedProcess(ctx context.Context, name string, pid, port int, started time.Time) *Process {
	p := &Process{
		Name:    name,
		PID:     pid,
		Port:    port,
		Started: started,
		done:    make(chan struct{}),
	}
	p.Touch(time.Now())

	go func() {
		t := time.NewTicker(recoveredPoll)
		defer t.Stop()

		for alive(pid) {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}

		close(p.done)
	}()

	return p
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the process has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the wait error of a process started by this manager once it
// has exited.
func (p *Process) Err() error {
	if !p.Exited() {
		return nil
	}

	return p.err
}

// Touch records an access at t. Earlier times than the current last access
// are ignored.
func (p *Process) Touch(t time.Time) {
	n := t.UnixNano()

	for {
		cur := p.lastAccess.Load()
		if n <= cur || p.lastAccess.CompareAndSwap(cur, n) {
			return
		}
	}
}

// LastAccess returns the time of the most recent access.
func (p *Process) LastAccess() time.Time { return time.Unix(0, p.lastAccess.Load()) }

// Uptime returns how long the process has been running at now.
func (p *Process) Uptime(now time.Time) time.Duration { return now.Sub(p.Started) }

// Idle returns how long the process has gone without access at now.
func (p *Process) Idle(now time.Time) time.Duration { return now.Sub(p.LastAccess()) }

// Runtime is the table of running apps keyed by name, mirrored to PID files
// in each app directory.
type Runtime struct {
	cfg Config
	log log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	procs map[string]*Process
}

// NewRuntime returns an empty runtime table.
func NewRuntime(cfg Config) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())

	return &Runtime{
		cfg:    cfg,
		log:    cfg.Logger.With(slog.String("component", "runtime")),
		ctx:    ctx,
		cancel: cancel,
		procs:  make(map[string]*Process),
	}
}

// PIDFile returns the PID file path of the named app.
func (r *Runtime) PIDFile(name string) string {
	return filepath.Join(r.cfg.AppDir(name), pidFileName)
}

// Get returns the named app's process if it is still running.
func (r *Runtime) Get(name string) (*Process, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[name]
	if !ok || p.Exited() {
		return nil, false
	}

	return p, true
}

// Running returns every running process.
func (r *Runtime) Running() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Process, 0, len(r.procs))

	for _, p := range r.procs {
		if !p.Exited() {
			out = append(out, p)
		}
	}

	return out
}

// Reserved reports whether port belongs to a running app.
func (r *Runtime) Reserved(port int) bool {
	for _, p := range r.Running() {
		if p.Port == port {
			return true
		}
	}

	return false
}

// Add records p and writes its PID file. The entry is dropped when p exits.
func (r *Runtime) Add(p *Process) error {
	if err := os.WriteFile(r.PIDFile(p.Name), []byte(strconv.Itoa(p.PID)+"\n"), pidFilePerms); err != nil {
		return ErrLaunch.Wrap(err).With(slog.String("app", p.Name))
	}

	r.track(p)

	return nil
}

// track records p without touching its PID file.
func (r *Runtime) track(p *Process) {
	r.mu.Lock()
	r.procs[p.Name] = p
	r.mu.Unlock()

	go func() {
		select {
		case <-r.ctx.Done():
			return
		case <-p.Done():
		}

		attrs := []slog.Attr{slog.String("app", p.Name), slog.Int("pid", p.PID)}
		if err := p.Err(); err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}

		r.log.Info("app exited", attrs...)
		r.forget(p)
	}()
}

// Remove drops the named app's entry and PID file.
func (r *Runtime) Remove(name string) {
	r.mu.Lock()
	p := r.procs[name]
	r.mu.Unlock()

	if p != nil {
		r.forget(p)
	}
}

// forget removes p if it is still the current entry for its name.
func (r *Runtime) forget(p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.procs[p.Name] != p {
		return
	}

	delete(r.procs, p.Name)

	if err := os.Remove(r.PIDFile(p.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.log.Warn("failed to remove pid file",
			slog.String("app", p.Name),
			slog.Any("error", err),
		)
	}
}

// Recover re-adopts apps whose PID file names a live process. Stale PID
// files are removed. It returns the names of the adopted apps.
func (r *Runtime) Recover(ctx context.Context, apps []Metadata) []string {
	var adopted []string

	for _, m := range apps {
		path := r.PIDFile(m.Name)

		fi, err := os.Stat(path)
		if err != nil {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil || !alive(pid) {
			r.log.DebugContext(ctx, "removing stale pid file",
				slog.String("app", m.Name),
				slog.String("path", path),
			)

			_ = os.Remove(path)

			continue
		}

		if _, ok := r.Get(m.Name); ok {
			continue
		}

		r.track(adoptedProcess(r.ctx, m.Name, pid, m.Port, fi.ModTime()))

		r.log.InfoContext(ctx, "recovered running app",
			slog.String("app", m.Name),
			slog.Int("pid", pid),
			slog.Int("port", m.Port),
		)

		adopted = append(adopted, m.Name)
	}

	return adopted
}

// Close stops tracking process exits. Running processes are left alone.
func (r *Runtime) Close() { r.cancel() }
