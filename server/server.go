package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/log"
	"github.com/ardnew/nanny/nanny"
)

// Service is the app manager served over HTTP.
type Service interface {
	Create(ctx context.Context, req nanny.CreateRequest) (int, error)
	Start(ctx context.Context, name string) (int, error)
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) (int, error)
	Heartbeat(name string) error
	Port(name string) (int, error)
	List(ctx context.Context) []nanny.Info
	Env(name string) (*envtext.Map, error)
	SetEnv(ctx context.Context, name string, env *envtext.Map) error
	ImportEnv(ctx context.Context, name, text string, mode envtext.Mode) (*envtext.Map, error)
}

// Server is the HTTP front end of a [Service].
type Server struct {
	svc      Service
	cfg      Config
	log      log.Logger
	echo     *echo.Echo
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
}

// New returns a server for svc.
func New(svc Service, opts ...Option) *Server {
	cfg := makeConfig(opts...)

	s := &Server{
		svc:     svc,
		cfg:     cfg,
		log:     cfg.Logger.With(slog.String("component", "server")),
		limiter: rate.NewLimiter(cfg.Rate, cfg.Burst),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.withRequestLogging())
	s.registerRoutes(e)
	s.echo = e

	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler { return s.echo }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", s.cfg.Listen)
	if err != nil {
		return ErrListen.Wrap(err).With(slog.String("addr", s.cfg.Listen))
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second, //nolint:mnd
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	s.log.InfoContext(ctx, "server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if err != nil {
			return ErrServe.Wrap(err)
		}

		return nil

	case <-ctx.Done():
	}

	s.log.InfoContext(ctx, "shutting down server", slog.Duration("timeout", s.cfg.ShutdownTimeout))

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		return ErrServe.Wrap(err)
	}

	return nil
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/healthz", s.handleHealthz)
	e.GET("/apps", s.listApps)

	lifecycle := e.Group("", s.withRateLimit())
	lifecycle.POST("/create", s.createApp)
	lifecycle.POST("/start/:name", s.startApp)
	lifecycle.POST("/stop/:name", s.stopApp)
	lifecycle.POST("/restart/:name", s.restartApp)

	e.POST("/heartbeat/:name", s.heartbeat)
	e.GET("/env/:name", s.getEnv)
	e.POST("/env/:name", s.setEnv)
	e.POST("/env/:name/import", s.importEnv)

	e.Any("/proxy/:name", s.proxy)
	e.Any("/proxy/:name/*", s.proxy)

	if s.cfg.Debug != nil {
		e.Any("/debug/pprof/*", echo.WrapHandler(s.cfg.Debug))
	}
}

func (s *Server) withRequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()

			s.log.InfoContext(req.Context(), "request",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", c.Response().Status),
				slog.Duration("duration", time.Since(start)),
			)

			return err
		}
	}
}

func (s *Server) withRateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.limiter.Allow() {
				return writeError(c, http.StatusTooManyRequests, "rate limit exceeded")
			}

			return next(c)
		}
	}
}
