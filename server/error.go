package server

import "github.com/ardnew/nanny/pkg"

var (
	ErrListen = pkg.NewError("failed to listen")
	ErrServe  = pkg.NewError("server failed")
	ErrProxy  = pkg.NewError("proxy failed")
)
