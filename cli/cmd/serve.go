package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/nanny/log"
	"github.com/ardnew/nanny/nanny"
	"github.com/ardnew/nanny/profile"
	"github.com/ardnew/nanny/server"
)

// closeTimeout bounds how long the manager may take to release its
// resources after the server stops.
const closeTimeout = 5 * time.Second

// Serve runs the app manager and its HTTP API.
type Serve struct {
	Listen       string            `default:":5000"               help:"Address the HTTP API listens on."`
	Storage      string            `default:"${storage}"          help:"Directory holding app checkouts and metadata." type:"path"`
	PortRange    []nanny.PortRange `default:"8080-8089,4040-4049" help:"Port ranges searched for free app ports."`
	StopTimeout  time.Duration     `default:"5s"                  help:"Time to wait after SIGTERM before killing an app."`
	ProbeHost    string            `default:"127.0.0.1"           help:"Host used to check whether a port is free."`
	Expiry       time.Duration     `default:"72h"                 help:"Idle time after which a running app is stopped."`
	ReapInterval time.Duration     `default:"5m"                  help:"How often idle apps are checked."`
	Rate         float64           `default:"2"                   help:"Lifecycle requests per second (0 disables the limit)."`
	Burst        int               `default:"10"                  help:"Lifecycle request burst size."`
	Watch        bool              `default:"true"                help:"Reload metadata when the file changes."        negatable:""`
}

// Run executes the serve command until interrupted.
func (s *Serve) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Default()

	svc, err := nanny.New(ctx,
		nanny.WithStorageDir(s.Storage),
		nanny.WithPortRanges(s.PortRange...),
		nanny.WithStopTimeout(s.StopTimeout),
		nanny.WithProbeHost(s.ProbeHost),
		nanny.WithExpiry(s.Expiry),
		nanny.WithReapInterval(s.ReapInterval),
		nanny.WithWatch(s.Watch),
		nanny.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()

		if err := svc.Close(cctx); err != nil {
			logger.Warn("close manager", slog.Any("error", err))
		}
	}()

	srv := server.New(svc,
		server.WithListen(s.Listen),
		server.WithRate(s.Rate, s.Burst),
		server.WithDebugHandler(profile.Handler()),
		server.WithLogger(logger),
	)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return srv.Run(gctx) })
	group.Go(func() error { return nanny.NewReaper(svc).Run(gctx) })

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
