package cli

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/ardnew/nanny/cli/cmd"
	"github.com/ardnew/nanny/pkg"
)

// Base names of the configuration files in the configuration directory.
const (
	configYAML = "config.yaml"
	configTOML = "config.toml"
)

// CLI is the top-level command-line interface for nanny.
type CLI struct {
	Log   logConfig   `embed:"" group:"log"   prefix:"log-"`
	Pprof pprofConfig `embed:"" group:"pprof" prefix:"pprof-"`

	Version kong.VersionFlag `help:"Print version and exit."`

	Init      cmd.Init      `cmd:"" help:"Initialize configuration file."`
	Serve     cmd.Serve     `cmd:"" help:"Run the app manager and its HTTP API."`
	Env       cmd.Env       `cmd:"" help:"Parse and merge .env files."`
	App       cmd.App       `cmd:"" help:"Manage apps on a running server."`
	Dashboard cmd.Dashboard `cmd:"" help:"Open the terminal dashboard."`
}

// Run executes the nanny CLI with the given context and arguments.
// The exit function is called with the appropriate exit code upon completion.
func Run(
	ctx context.Context,
	exit func(code int),
	args ...string,
) error {
	return run(ctx, exit, nil, args...)
}

// run is Run with optional extra kong options, such as writers for tests.
func run(
	ctx context.Context,
	exit func(code int),
	extra []kong.Option,
	args ...string,
) error {
	var cli CLI

	err := pkg.MkdirAll()
	if err != nil {
		return err
	}

	vars := kong.Vars{
		cmd.ConfigIdentifier: pkg.ConfigPath(configYAML),
		"version":            pkg.Version,
	}.
		CloneWith(cmd.Vars()).
		CloneWith(cli.Log.vars()).
		CloneWith(cli.Pprof.vars())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Pre-scan for logger flags to ensure early configuration regardless of
	// flag position.
	cli.Log.scan(args)

	options := []kong.Option{
		kong.Name(pkg.Name),
		kong.Description(pkg.Description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.ExplicitGroups(
			[]kong.Group{cli.Log.group(), cli.Pprof.group()},
		),
		kong.BindSingletonProvider(func() context.Context {
			return ctx
		}),
		kong.ConfigureHelp(
			kong.HelpOptions{
				Compact:             true,
				Summary:             true,
				Tree:                true,
				FlagsLast:           false,
				NoAppSummary:        false,
				NoExpandSubcommands: true,
			}),
		kong.Configuration(loadTOML, pkg.ConfigPath(configTOML)),
		kong.Configuration(loadYAML, pkg.ConfigPath(configYAML)),
		vars,
	}

	parser, err := kong.New(&cli, append(options, extra...)...)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	ctx = cmd.WithContext(ctx, ktx)

	// Finalize logger configuration with all parsed values, including those
	// read from the configuration file.
	defer cli.Log.start(ctx)()

	// [pprofConfig.start] is no-op unless built with tag pprof and enabled.
	defer cli.Pprof.start(ctx)()

	return ktx.Run(ctx)
}
