package nanny

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ardnew/nanny/log"
	"github.com/ardnew/nanny/pkg"
)

// Defaults.
const (
	DefaultMetadataFile = "apps_metadata.json"
	DefaultStopTimeout  = 5 * time.Second
	DefaultProbeHost    = "127.0.0.1"
	DefaultExpiry       = 72 * time.Hour
	DefaultReapInterval = 5 * time.Minute
)

// DefaultStorageDir returns the directory holding app checkouts by default.
func DefaultStorageDir() string { return filepath.Join(pkg.DataDir(), "apps") }

// DefaultPortRanges returns the port ranges searched by default.
func DefaultPortRanges() []PortRange {
	return []PortRange{{8080, 8089}, {4040, 4049}} //nolint:mnd
}

// PortRange is an inclusive range of TCP ports.
type PortRange struct {
	Lo, Hi int
}

// ParsePortRange parses "LO-HI" or a single port "P".
func ParsePortRange(s string) (PortRange, error) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		hi = lo
	}

	var (
		r   PortRange
		err error
	)

	if r.Lo, err = strconv.Atoi(strings.TrimSpace(lo)); err == nil {
		r.Hi, err = strconv.Atoi(strings.TrimSpace(hi))
	}

	if err != nil {
		return PortRange{}, ErrInvalidRange.Wrap(err).With(slog.String("range", s))
	}

	if r.Lo < 1 || r.Hi > 65535 || r.Lo > r.Hi {
		return PortRange{}, ErrInvalidRange.With(slog.String("range", s))
	}

	return r, nil
}

// String returns the range as "LO-HI".
func (r PortRange) String() string { return fmt.Sprintf("%d-%d", r.Lo, r.Hi) }

// MarshalText implements [encoding.TextMarshaler].
func (r PortRange) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (r *PortRange) UnmarshalText(text []byte) error {
	pr, err := ParsePortRange(string(text))
	if err != nil {
		return err
	}

	*r = pr

	return nil
}

// Ports returns the ports in r in ascending order.
func (r PortRange) Ports() []int {
	if r.Hi < r.Lo {
		return nil
	}

	out := make([]int, 0, r.Hi-r.Lo+1)
	for p := r.Lo; p <= r.Hi; p++ {
		out = append(out, p)
	}

	return out
}

// Config holds the settings shared by the manager's components.
type Config struct {
	StorageDir   string
	MetadataFile string
	PortRanges   []PortRange
	StopTimeout  time.Duration
	ProbeHost    string
	Expiry       time.Duration
	ReapInterval time.Duration
	Watch        bool
	Logger       log.Logger
}

// Option modifies a Config.
type Option func(Config) Config

// MakeConfig returns the default Config with opts applied.
func MakeConfig(opts ...Option) Config {
	c := Config{
		StorageDir:   DefaultStorageDir(),
		MetadataFile: DefaultMetadataFile,
		PortRanges:   DefaultPortRanges(),
		StopTimeout:  DefaultStopTimeout,
		ProbeHost:    DefaultProbeHost,
		Expiry:       DefaultExpiry,
		ReapInterval: DefaultReapInterval,
		Watch:        true,
		Logger:       log.Default(),
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	return c
}

// WithStorageDir sets the directory holding app checkouts and metadata.
func WithStorageDir(dir string) Option {
	return func(c Config) Config {
		if dir != "" {
			c.StorageDir = dir
		}

		return c
	}
}

// WithMetadataFile sets the metadata file name within the storage directory.
func WithMetadataFile(name string) Option {
	return func(c Config) Config {
		if name != "" {
			c.MetadataFile = name
		}

		return c
	}
}

// WithPortRanges sets the port ranges searched for free ports.
func WithPortRanges(ranges ...PortRange) Option {
	return func(c Config) Config {
		if len(ranges) > 0 {
			c.PortRanges = ranges
		}

		return c
	}
}

// WithStopTimeout sets how long Stop waits after SIGTERM before SIGKILL.
func WithStopTimeout(d time.Duration) Option {
	return func(c Config) Config {
		if d > 0 {
			c.StopTimeout = d
		}

		return c
	}
}

// WithProbeHost sets the host used to check whether a port is free.
func WithProbeHost(host string) Option {
	return func(c Config) Config {
		if host != "" {
			c.ProbeHost = host
		}

		return c
	}
}

// WithExpiry sets how long a running app may stay idle before the reaper
// stops it.
func WithExpiry(d time.Duration) Option {
	return func(c Config) Config {
		if d > 0 {
			c.Expiry = d
		}

		return c
	}
}

// WithReapInterval sets how often the reaper runs.
func WithReapInterval(d time.Duration) Option {
	return func(c Config) Config {
		if d > 0 {
			c.ReapInterval = d
		}

		return c
	}
}

// WithWatch enables or disables reloading metadata when the file changes.
func WithWatch(enable bool) Option {
	return func(c Config) Config {
		c.Watch = enable

		return c
	}
}

// WithLogger sets the logger used by all components.
func WithLogger(l log.Logger) Option {
	return func(c Config) Config {
		c.Logger = l

		return c
	}
}

// MetadataPath returns the path of the metadata file.
func (c Config) MetadataPath() string { return filepath.Join(c.StorageDir, c.MetadataFile) }

// AppDir returns the checkout directory of the named app.
func (c Config) AppDir(name string) string { return filepath.Join(c.StorageDir, name) }
