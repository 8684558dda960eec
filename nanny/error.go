package nanny

import "github.com/ardnew/nanny/pkg"

// Sentinel errors.
var (
	ErrNotFound       = pkg.NewError("app not found")
	ErrExists         = pkg.NewError("app already exists")
	ErrNotRunning     = pkg.NewError("app is not running")
	ErrNoPort         = pkg.NewError("no available port")
	ErrInvalidName    = pkg.NewError("invalid app name")
	ErrInvalidKind    = pkg.NewError("unsupported app type")
	ErrInvalidRequest = pkg.NewError("invalid request")
	ErrInvalidRange   = pkg.NewError("invalid port range")
	ErrRepository     = pkg.NewError("repository operation failed")
	ErrLaunch         = pkg.NewError("failed to launch app")
	ErrStop           = pkg.NewError("failed to stop app")
	ErrStore          = pkg.NewError("metadata store failure")
)
