package profile

// Stopper stops a running profiler. It is always safe to call.
type Stopper interface{ Stop() }

// Profiler configures a file-based profiling session.
type Profiler struct {
	Mode  string
	Path  string
	Quiet bool
}

// Start begins profiling and returns a [Stopper] that flushes the profile.
//
// If the binary was built without the pprof tag, or Mode is empty or unknown,
// Start returns a no-op.
func (p Profiler) Start() Stopper {
	if p.Mode == "" {
		return ignore{}
	}

	return start(p.Mode, p.Path, p.Quiet)
}

// WithMode returns a functional option for setting a profiler's mode.
func WithMode(mode string) func(Profiler) Profiler {
	return func(p Profiler) Profiler {
		p.Mode = mode

		return p
	}
}

// WithPath returns a functional option for setting a profiler's output path.
func WithPath(path string) func(Profiler) Profiler {
	return func(p Profiler) Profiler {
		p.Path = path

		return p
	}
}

// WithQuiet returns a functional option for setting a profiler's quiet flag.
func WithQuiet(quiet bool) func(Profiler) Profiler {
	return func(p Profiler) Profiler {
		p.Quiet = quiet

		return p
	}
}

// Make returns a Profiler with the given options applied.
func Make(opts ...func(Profiler) Profiler) Profiler {
	var p Profiler

	for _, opt := range opts {
		p = opt(p)
	}

	return p
}

type ignore struct{}

func (ignore) Stop() {}
