// Package reaper periodically forces records stuck in processing into the
// error state. A record can get stuck when the process dies mid-run; the
// conditional claim then blocks every retry until the sweep releases it.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Releaser is the single store operation the sweep needs.
type Releaser interface {
	ReleaseStale(ctx context.Context, lease time.Duration) (int64, error)
}

// Reaper schedules the stale-processing sweep.
type Reaper struct {
	releaser Releaser
	cron     *cron.Cron
	schedule string
	lease    time.Duration
	logger   *slog.Logger
}

// Option configures a Reaper.
type Option func(*Reaper)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) { r.logger = logger }
}

// New creates a Reaper. The schedule is a 6-field cron expression with a
// seconds field, e.g. "0 */5 * * * *" for every five minutes.
func New(releaser Releaser, schedule string, lease time.Duration, opts ...Option) *Reaper {
	r := &Reaper{
		releaser: releaser,
		cron:     cron.New(cron.WithSeconds()),
		schedule: schedule,
		lease:    lease,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start registers the sweep and starts the scheduler.
func (r *Reaper) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.sweep); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("stale-run reaper started",
		slog.String("schedule", r.schedule),
		slog.Duration("lease", r.lease),
	)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
}

// Sweep runs one sweep immediately, outside the schedule.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	return r.releaser.ReleaseStale(ctx, r.lease)
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	released, err := r.releaser.ReleaseStale(ctx, r.lease)
	if err != nil {
		r.logger.Error("stale-run sweep failed", slog.String("error", err.Error()))
		return
	}
	if released > 0 {
		r.logger.Warn("released stale runs", slog.Int64("count", released))
	}
}
