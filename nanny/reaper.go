package nanny

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/ardnew/nanny/log"
)

// Reaper periodically stops apps that have gone without access for longer
// than the configured expiry.
type Reaper struct {
	svc      *Service
	interval time.Duration
	expiry   time.Duration
	log      log.Logger
}

// NewReaper returns a reaper for svc using its configured interval and
// expiry.
func NewReaper(svc *Service) *Reaper {
	return &Reaper{
		svc:      svc,
		interval: svc.cfg.ReapInterval,
		expiry:   svc.cfg.Expiry,
		log:      svc.cfg.Logger.With(slog.String("component", "reaper")),
	}
}

// Run sweeps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.log.DebugContext(ctx, "reaper started",
		slog.Duration("interval", r.interval),
		slog.Duration("expiry", r.expiry),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep stops every running app idle longer than the expiry and returns
// the names of those stopped, sorted.
func (r *Reaper) Sweep(ctx context.Context) []string {
	now := r.svc.now()

	var stopped []string

	for _, p := range r.svc.runtime.Running() {
		idle := p.Idle(now)
		if idle <= r.expiry {
			continue
		}

		r.log.InfoContext(ctx, "stopping idle app",
			slog.String("app", p.Name),
			slog.Duration("idle", idle),
		)

		if err := r.svc.Stop(ctx, p.Name); err != nil {
			r.log.WarnContext(ctx, "failed to stop idle app",
				slog.String("app", p.Name),
				slog.Any("error", err),
			)

			continue
		}

		stopped = append(stopped, p.Name)
	}

	slices.Sort(stopped)

	return stopped
}
