package nanny

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ardnew/mung"
	"github.com/go-git/go-git/v5"

	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/log"
	"github.com/ardnew/nanny/pkg"
)

const (
	logDirName = "logs"
	logPerms   = 0o644
)

// Launcher checks out app repositories, picks ports, and starts app
// processes.
type Launcher struct {
	cfg Config
	log log.Logger
}

// NewLauncher returns a Launcher for cfg.
func NewLauncher(cfg Config) *Launcher {
	return &Launcher{
		cfg: cfg,
		log: cfg.Logger.With(slog.String("component", "launcher")),
	}
}

// Clone clones repo into the named app's directory. It fails if the
// directory already holds a git repository.
func (l *Launcher) Clone(ctx context.Context, name, repo string) (string, error) {
	dir := l.cfg.AppDir(name)
	attrs := []slog.Attr{slog.String("app", name), slog.String("repo", repo)}

	if _, err := os.Stat(filepath.Join(dir, git.GitDirName)); err == nil {
		return "", ErrExists.With(append(attrs, slog.String("reason", "repository already cloned"))...)
	}

	if err := os.MkdirAll(dir, pkg.DirMode); err != nil {
		return "", ErrRepository.Wrap(err).With(attrs...)
	}

	l.log.InfoContext(ctx, "cloning repository", attrs...)

	if _, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: repo}); err != nil {
		return "", ErrRepository.Wrap(err).With(attrs...)
	}

	return dir, nil
}

// Pull fast-forwards the named app's checkout from its origin remote.
// Being already up to date is not an error.
func (l *Launcher) Pull(ctx context.Context, name string) error {
	dir := l.cfg.AppDir(name)
	attrs := []slog.Attr{slog.String("app", name), slog.String("dir", dir)}

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return ErrRepository.Wrap(err).With(attrs...)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return ErrRepository.Wrap(err).With(attrs...)
	}

	l.log.InfoContext(ctx, "updating repository", attrs...)

	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: git.DefaultRemoteName})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		l.log.DebugContext(ctx, "repository already up to date", attrs...)

		return nil
	}

	if err != nil {
		return ErrRepository.Wrap(err).With(attrs...)
	}

	return nil
}

// PortFree reports whether port can be bound on the probe host.
func (l *Launcher) PortFree(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(l.cfg.ProbeHost, strconv.Itoa(port)))
	if err != nil {
		return false
	}

	_ = ln.Close()

	return true
}

// AllocatePort returns preferred if it is free, otherwise the first free port
// in the configured ranges. Ports for which reserved returns true are skipped
// even if nothing is bound to them yet.
func (l *Launcher) AllocatePort(preferred int, reserved func(int) bool) (int, error) {
	usable := func(p int) bool {
		return p > 0 && (reserved == nil || !reserved(p)) && l.PortFree(p)
	}

	if usable(preferred) {
		return preferred, nil
	}

	if preferred > 0 {
		l.log.Debug("preferred port unavailable", slog.Int("port", preferred))
	}

	for _, r := range l.cfg.PortRanges {
		for _, p := range r.Ports() {
			if usable(p) {
				return p, nil
			}
		}
	}

	return 0, ErrNoPort.With(slog.Int("preferred", preferred))
}

// Environ composes the environment of an app process: the manager's own
// environment, then the app's .env file, then the stored variables, then
// PORT. Tool directories inside the checkout are prefixed to PATH.
func (l *Launcher) Environ(dotenv *envtext.Map, m Metadata, port int) *envtext.Map {
	env := envtext.New(0)

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env.Set(k, v)
		}
	}

	env = envtext.Merge(env, dotenv, envtext.ModeUpdate)
	env = envtext.Merge(env, m.Env, envtext.ModeUpdate)
	env.Set("PORT", strconv.Itoa(port))

	appDir := l.cfg.AppDir(m.Name)

	var prefix []string

	for _, rel := range []string{filepath.Join(".venv", "bin"), filepath.Join("node_modules", ".bin")} {
		if fi, err := os.Stat(filepath.Join(appDir, rel)); err == nil && fi.IsDir() {
			prefix = append(prefix, filepath.Join(appDir, rel))
		}
	}

	if len(prefix) > 0 {
		path, _ := env.Get("PATH")
		env.Set("PATH", mung.Make(
			mung.WithSubjectItems(path),
			mung.WithDelim(string(os.PathListSeparator)),
			mung.WithPrefixItems(prefix...),
		).String())
	}

	return env
}

// Launch starts the app described by m on port with environment env.
// The process is detached from ctx and outlives the manager; its output
// is appended to files under the app's logs directory.
func (l *Launcher) Launch(ctx context.Context, m Metadata, env *envtext.Map, port int) (*Process, error) {
	appDir := l.cfg.AppDir(m.Name)
	attrs := []slog.Attr{slog.String("app", m.Name), slog.Int("port", port)}

	if fi, err := os.Stat(appDir); err != nil || !fi.IsDir() {
		return nil, ErrLaunch.Wrap(fs.ErrNotExist).With(append(attrs, slog.String("dir", appDir))...)
	}

	getenv := func(k string) string {
		v, _ := env.Get(k)

		return v
	}

	spec, err := m.Kind.command(appDir, m.Path, m.Command, port, getenv)
	if err != nil {
		return nil, err
	}

	bin, err := lookPath(spec.argv[0], getenv("PATH"))
	if err != nil {
		return nil, ErrLaunch.Wrap(err).With(append(attrs, slog.String("command", spec.argv[0]))...)
	}

	logDir := filepath.Join(appDir, logDirName)
	if err := os.MkdirAll(logDir, pkg.DirMode); err != nil {
		return nil, ErrLaunch.Wrap(err).With(attrs...)
	}

	stdout, err := openLog(filepath.Join(logDir, m.Name+"_stdout.log"))
	if err != nil {
		return nil, ErrLaunch.Wrap(err).With(attrs...)
	}

	stderr, err := openLog(filepath.Join(logDir, m.Name+"_stderr.log"))
	if err != nil {
		_ = stdout.Close()

		return nil, ErrLaunch.Wrap(err).With(attrs...)
	}

	//nolint:gosec // the command line is the app's configured launch command
	cmd := exec.Command(bin, spec.argv[1:]...)
	cmd.Dir = spec.dir
	cmd.Env = env.Environ()
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureCmd(cmd)

	l.log.InfoContext(ctx, "launching app", append(attrs,
		slog.String("command", strings.Join(spec.argv, " ")),
		slog.String("dir", spec.dir),
	)...)

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stderr.Close()

		return nil, ErrLaunch.Wrap(err).With(attrs...)
	}

	return startedProcess(m.Name, port, cmd, stdout, stderr), nil
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, logPerms)
}

// lookPath resolves name against the directories in pathList, which is
// the PATH of the app rather than of the manager.
func lookPath(name, pathList string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return exec.LookPath(name)
	}

	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			continue
		}

		if p, err := exec.LookPath(filepath.Join(dir, name)); err == nil {
			return p, nil
		}
	}

	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}
