package cmd

import (
	"context"

	"github.com/ardnew/nanny/envtext"
)

// Env groups the offline .env commands.
type Env struct {
	Parse EnvParse `cmd:"" help:"Parse .env text and print the resulting map."`
	Merge EnvMerge `cmd:"" help:"Merge two .env files."`
}

// EnvParse parses one or more .env sources. Later sources override earlier
// ones.
type EnvParse struct {
	EnvOutput `embed:""`

	Files []string `arg:"" help:"Input file(s) or '-' for stdin." optional:"" type:"existingfile"`
}

// Run executes the env parse command.
func (e *EnvParse) Run(ctx context.Context) error {
	files := e.Files
	if len(files) == 0 {
		files = []string{stdinSource}
	}

	srcs, err := buildSourceFiles(files)
	if err != nil {
		return err
	}
	defer srcs.Close()

	env, err := srcs.parse(ctx)
	if err != nil {
		return err
	}

	return e.write(stdout(ctx), env)
}

// EnvMerge merges an incoming .env file into a base one.
type EnvMerge struct {
	EnvOutput `embed:""`

	Mode string `default:"update" enum:"update,overwrite" help:"Merge mode (${enum})." short:"m"`

	Base     string `arg:"" help:"Base file or '-' for stdin."     type:"existingfile"`
	Incoming string `arg:"" help:"Incoming file or '-' for stdin." type:"existingfile"`
}

// Run executes the env merge command.
func (e *EnvMerge) Run(ctx context.Context) error {
	if e.Base == stdinSource && e.Incoming == stdinSource {
		return ErrStdinTwice
	}

	mode, err := envtext.ParseMode(e.Mode)
	if err != nil {
		return err
	}

	base, err := readEnvFile(ctx, e.Base)
	if err != nil {
		return err
	}

	incoming, err := readEnvFile(ctx, e.Incoming)
	if err != nil {
		return err
	}

	return e.write(stdout(ctx), envtext.Merge(base, incoming, mode))
}
