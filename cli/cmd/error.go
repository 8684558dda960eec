package cmd

import "github.com/ardnew/nanny/pkg"

// Sentinel errors.
var (
	ErrWriteConfig = pkg.NewError("write configuration file")
	ErrFileExists  = pkg.NewError("file exists (use --force to overwrite)")
	ErrReadInput   = pkg.NewError("read input")
	ErrWriteOutput = pkg.NewError("write output")
	ErrFilter      = pkg.NewError("invalid filter expression")
	ErrStdinTwice  = pkg.NewError("stdin may be read only once")
)
