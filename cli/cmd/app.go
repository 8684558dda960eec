package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ardnew/nanny/client"
	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/nanny"
)

// Remote holds the flags shared by commands that talk to a nanny server.
type Remote struct {
	Server  string        `default:"${server}" env:"NANNY_SERVER" help:"Base URL of the nanny server."`
	Timeout time.Duration `default:"2m"                          help:"Request timeout."`
}

func (r Remote) client() (*client.Client, error) {
	return client.New(r.Server, client.WithHTTPClient(&http.Client{Timeout: r.Timeout}))
}

// App groups the commands that manage apps on a running server.
type App struct {
	List      AppList      `cmd:"" default:"1" help:"List apps."`
	Create    AppCreate    `cmd:""             help:"Clone and start a new app."`
	Start     AppStart     `cmd:""             help:"Start an app."`
	Stop      AppStop      `cmd:""             help:"Stop an app."`
	Restart   AppRestart   `cmd:""             help:"Pull and restart an app."`
	Heartbeat AppHeartbeat `cmd:""             help:"Record activity for a running app."`
	Env       AppEnv       `cmd:""             help:"Show or import an app's environment."`
}

// AppList prints the apps known to the server.
type AppList struct {
	Remote `embed:""`

	Where  string `help:"Only list apps matching this expression, e.g. 'running && idle > 3600'." short:"w"`
	Output string `default:"table" enum:"table,json,yaml" help:"Output format (${enum})." short:"o"`
}

// filterEnv is the environment a --where expression is evaluated against.
func filterEnv(i nanny.Info) map[string]any {
	return map[string]any{
		"name":    i.Name,
		"type":    string(i.Kind),
		"repo":    i.Repo,
		"path":    i.Path,
		"email":   i.Email,
		"active":  i.Active,
		"running": i.Running,
		"port":    i.Port,
		"pid":     i.PID,
		"uptime":  i.Uptime,
		"idle":    i.Idle,
	}
}

// compileFilter compiles a --where expression. An empty expression matches
// everything.
func compileFilter(where string) (func(nanny.Info) (bool, error), error) {
	if where == "" {
		return func(nanny.Info) (bool, error) { return true, nil }, nil
	}

	program, err := expr.Compile(where, expr.Env(filterEnv(nanny.Info{})), expr.AsBool())
	if err != nil {
		return nil, ErrFilter.Wrap(err).With(slog.String("where", where))
	}

	return func(i nanny.Info) (bool, error) {
		return runFilter(program, i)
	}, nil
}

func runFilter(program *vm.Program, i nanny.Info) (bool, error) {
	out, err := expr.Run(program, filterEnv(i))
	if err != nil {
		return false, ErrFilter.Wrap(err).With(slog.String("app", i.Name))
	}

	ok, _ := out.(bool)

	return ok, nil
}

// Run executes the app list command.
func (a *AppList) Run(ctx context.Context) error {
	match, err := compileFilter(a.Where)
	if err != nil {
		return err
	}

	c, err := a.client()
	if err != nil {
		return err
	}

	apps, err := c.List(ctx)
	if err != nil {
		return err
	}

	var infos []nanny.Info

	for _, name := range slices.Sorted(maps.Keys(apps)) {
		ok, err := match(apps[name])
		if err != nil {
			return err
		}

		if ok {
			infos = append(infos, apps[name])
		}
	}

	w := stdout(ctx)

	switch a.Output {
	case formatJSON:
		err = writeJSON(w, infos)

	case formatYAML:
		err = writeYAML(w, infos)

	default:
		_, err = fmt.Fprintln(w, infoTable(infos))
	}

	if err != nil {
		return ErrWriteOutput.Wrap(err).With(slog.String("format", a.Output))
	}

	return nil
}

//nolint:gochecknoglobals
var (
	cellStyle   = lipgloss.NewStyle().PaddingRight(1)
	headerStyle = cellStyle.Bold(true)
)

// infoTable renders infos as a borderless table, one line per app.
func infoTable(infos []nanny.Info) string {
	rows := make([][]string, 0, len(infos))

	for _, i := range infos {
		state, port := "stopped", "-"
		if i.Running {
			state, port = "running", strconv.Itoa(i.Port)
		}

		rows = append(rows, []string{
			i.Name,
			string(i.Kind),
			state,
			port,
			(time.Duration(i.Uptime) * time.Second).String(),
			(time.Duration(i.Idle) * time.Second).String(),
			i.Repo,
		})
	}

	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		}).
		Headers("NAME", "TYPE", "STATE", "PORT", "UPTIME", "IDLE", "REPO").
		Rows(rows...).
		String()
}

// AppCreate clones a new app's repository and starts the app.
type AppCreate struct {
	Remote `embed:""`

	Name    string `arg:""             help:"App name."`
	Type    string `enum:"${kindEnum}" help:"App type (${enum})."                  required:"" short:"t"`
	Repo    string `                   help:"Git repository URL."                  required:"" short:"r"`
	Path    string `                   help:"Entry point relative to the checkout."`
	Email   string `                   help:"Owner contact address."                            short:"e"`
	Command string `                   help:"Command line for apps of type command."`
	EnvFile string `                   help:"Initial .env file or '-' for stdin."               type:"existingfile"`
}

// Run executes the app create command.
func (a *AppCreate) Run(ctx context.Context) error {
	req := nanny.CreateRequest{
		Name:    a.Name,
		Kind:    a.Type,
		Repo:    a.Repo,
		Path:    a.Path,
		Email:   a.Email,
		Command: a.Command,
	}

	if a.EnvFile != "" {
		env, err := readEnvFile(ctx, a.EnvFile)
		if err != nil {
			return err
		}

		req.Env = env
	}

	c, err := a.client()
	if err != nil {
		return err
	}

	port, err := c.Create(ctx, req)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(stdout(ctx), "App %s created and started on port %d\n", a.Name, port)

	return err
}

// AppStart starts an app.
type AppStart struct {
	Remote `embed:""`

	Name string `arg:"" help:"App name."`
}

// Run executes the app start command.
func (a *AppStart) Run(ctx context.Context) error {
	c, err := a.client()
	if err != nil {
		return err
	}

	port, err := c.Start(ctx, a.Name)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(stdout(ctx), "App %s started on port %d\n", a.Name, port)

	return err
}

// AppStop stops an app.
type AppStop struct {
	Remote `embed:""`

	Name string `arg:"" help:"App name."`
}

// Run executes the app stop command.
func (a *AppStop) Run(ctx context.Context) error {
	c, err := a.client()
	if err != nil {
		return err
	}

	if err := c.Stop(ctx, a.Name); err != nil {
		return err
	}

	_, err = fmt.Fprintf(stdout(ctx), "App %s stopped\n", a.Name)

	return err
}

// AppRestart pulls and restarts an app.
type AppRestart struct {
	Remote `embed:""`

	Name string `arg:"" help:"App name."`
}

// Run executes the app restart command.
func (a *AppRestart) Run(ctx context.Context) error {
	c, err := a.client()
	if err != nil {
		return err
	}

	port, err := c.Restart(ctx, a.Name)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(stdout(ctx), "App %s restarted on port %d\n", a.Name, port)

	return err
}

// AppHeartbeat records activity for a running app.
type AppHeartbeat struct {
	Remote `embed:""`

	Name string `arg:"" help:"App name."`
}

// Run executes the app heartbeat command.
func (a *AppHeartbeat) Run(ctx context.Context) error {
	c, err := a.client()
	if err != nil {
		return err
	}

	return c.Heartbeat(ctx, a.Name)
}

// AppEnv prints an app's environment, or merges .env text into it first.
type AppEnv struct {
	Remote    `embed:""`
	EnvOutput `embed:""`

	Name   string `arg:""                                   help:"App name."`
	Import string `                                         help:"Merge this .env file or '-' for stdin first." short:"i"`
	Mode   string `default:"update" enum:"update,overwrite" help:"Import merge mode (${enum})."                  short:"m"`
}

// Run executes the app env command.
func (a *AppEnv) Run(ctx context.Context) error {
	mode, err := envtext.ParseMode(a.Mode)
	if err != nil {
		return err
	}

	c, err := a.client()
	if err != nil {
		return err
	}

	var env *envtext.Map

	if a.Import != "" {
		text, err := readText(ctx, a.Import)
		if err != nil {
			return err
		}

		env, err = c.ImportEnv(ctx, a.Name, text, mode)
		if err != nil {
			return err
		}
	} else {
		env, err = c.Env(ctx, a.Name)
		if err != nil {
			return err
		}
	}

	return a.write(stdout(ctx), env)
}
