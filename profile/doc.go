// Package profile provides optional runtime profiling for nanny.
//
// Profiling integrates [github.com/pkg/profile] and must be enabled at build
// time with the "pprof" build tag:
//
//	go build -tags pprof .
//
// Without the tag, [Modes] is empty, [Profiler.Start] returns a no-op, and
// [Handler] returns nil, so callers never need their own build constraints.
//
// With the tag, the server also mounts the [net/http/pprof] handlers under
// /debug/pprof/ for live inspection of a running babysitter:
//
//	go tool pprof http://localhost:5000/debug/pprof/heap
//
// File-based profiles are written to the directory given by [Profiler.Path]
// using the file name of the selected mode (cpu.pprof, mem.pprof, ...).
package profile

// Tag is the build tag required to enable pprof profiling.
const Tag = `pprof`
