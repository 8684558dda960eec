//go:build !pprof

package profile

import "net/http"

// Modes returns nil when built without the pprof tag.
func Modes() []string { return nil }

// Handler returns nil when built without the pprof tag.
func Handler() http.Handler { return nil }

func start(string, string, bool) Stopper { return ignore{} }
