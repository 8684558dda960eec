package envtext

import "github.com/ardnew/nanny/pkg"

// Sentinel errors.
var (
	ErrReadInput       = pkg.NewError("failed to read input")
	ErrInvalidMode     = pkg.NewError("invalid merge mode")
	ErrUnrepresentable = pkg.NewError("entry cannot be represented as env text")
	ErrInvalidValue    = pkg.NewError("invalid value")
)
