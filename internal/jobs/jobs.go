// Package jobs runs background maintenance on cron schedules: the
// nightly embedding backfill and session-archive pruning. Schedules
// come from config; an empty expression disables the job.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

type job struct {
	name string
	expr string
	fn   func(context.Context) error
}

// Runner checks registered cron expressions once a minute and fires
// the ones that are due. Jobs run sequentially on the runner's
// goroutine; maintenance work is rare enough that overlap control is
// not worth a pool.
type Runner struct {
	gron *gronx.Gronx
	jobs []job
}

func NewRunner() *Runner {
	return &Runner{gron: gronx.New()}
}

// Add registers a job. Rejects invalid cron expressions up front so a
// config typo surfaces at startup, not at 3am.
func (r *Runner) Add(name, expr string, fn func(context.Context) error) error {
	if !r.gron.IsValid(expr) {
		return fmt.Errorf("job %s: invalid cron expression %q", name, expr)
	}
	r.jobs = append(r.jobs, job{name: name, expr: expr, fn: fn})
	return nil
}

// Len returns the number of registered jobs.
func (r *Runner) Len() int { return len(r.jobs) }

// Run ticks once a minute until the context is cancelled. Returns
// immediately when no jobs are registered.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.jobs) == 0 {
		return nil
	}
	for _, j := range r.jobs {
		slog.Info("job scheduled", "job", j.name, "cron", j.expr)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			r.runDue(ctx, now)
		}
	}
}

func (r *Runner) runDue(ctx context.Context, now time.Time) {
	for _, j := range r.jobs {
		due, err := r.gron.IsDue(j.expr, now)
		if err != nil {
			slog.Warn("job schedule check failed", "job", j.name, "error", err)
			continue
		}
		if !due {
			continue
		}
		start := time.Now()
		if err := j.fn(ctx); err != nil {
			slog.Warn("job failed", "job", j.name, "error", err)
			continue
		}
		slog.Info("job done", "job", j.name, "took", time.Since(start).Round(time.Millisecond))
	}
}
