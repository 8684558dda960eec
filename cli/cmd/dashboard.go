package cmd

import (
	"context"
	"time"

	"github.com/ardnew/nanny/cli/cmd/dashboard"
	"github.com/ardnew/nanny/log"
)

// Dashboard runs the terminal dashboard.
type Dashboard struct {
	Remote `embed:""`

	Refresh time.Duration `default:"30s" help:"Interval between automatic refreshes."`
}

// Run executes the dashboard command.
func (d *Dashboard) Run(ctx context.Context) error {
	c, err := d.client()
	if err != nil {
		return err
	}

	return dashboard.Run(ctx, c, d.Refresh, log.Default())
}
