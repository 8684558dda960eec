package server

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ardnew/nanny/log"
)

// Defaults.
const (
	DefaultListen          = ":5000"
	DefaultRate            = 2.0
	DefaultBurst           = 10
	DefaultShutdownTimeout = 10 * time.Second
	DefaultUpstreamHost    = "127.0.0.1"
)

// Config holds the server settings.
type Config struct {
	Listen          string
	Rate            rate.Limit
	Burst           int
	ShutdownTimeout time.Duration
	UpstreamHost    string
	Debug           http.Handler
	Logger          log.Logger
}

// Option modifies a Config.
type Option func(Config) Config

func makeConfig(opts ...Option) Config {
	c := Config{
		Listen:          DefaultListen,
		Rate:            rate.Limit(DefaultRate),
		Burst:           DefaultBurst,
		ShutdownTimeout: DefaultShutdownTimeout,
		UpstreamHost:    DefaultUpstreamHost,
		Logger:          log.Default(),
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	return c
}

// WithListen sets the listen address.
func WithListen(addr string) Option {
	return func(c Config) Config {
		if addr != "" {
			c.Listen = addr
		}

		return c
	}
}

// WithRate limits lifecycle requests (create, start, stop, restart) to
// perSecond with the given burst. A non-positive rate disables limiting.
func WithRate(perSecond float64, burst int) Option {
	return func(c Config) Config {
		c.Rate = rate.Limit(perSecond)
		if perSecond <= 0 {
			c.Rate = rate.Inf
		}

		if burst > 0 {
			c.Burst = burst
		}

		return c
	}
}

// WithShutdownTimeout sets how long Run waits for requests in flight when
// its context is done.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c Config) Config {
		if d > 0 {
			c.ShutdownTimeout = d
		}

		return c
	}
}

// WithUpstreamHost sets the host the proxy forwards to.
func WithUpstreamHost(host string) Option {
	return func(c Config) Config {
		if host != "" {
			c.UpstreamHost = host
		}

		return c
	}
}

// WithDebugHandler mounts h under /debug/pprof/. A nil handler mounts
// nothing.
func WithDebugHandler(h http.Handler) Option {
	return func(c Config) Config {
		c.Debug = h

		return c
	}
}

// WithLogger sets the request and error logger.
func WithLogger(l log.Logger) Option {
	return func(c Config) Config {
		c.Logger = l

		return c
	}
}
