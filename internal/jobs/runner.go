// Package jobs holds the background work that keeps derived listing state in
// step with bookings: duration statistics, availability reconciliation and
// confirmation mail. Each job can run from the event stream or from cron.
package jobs

import (
	"context"
	"time"

	"github.com/diagnosis/parkspot/internal/mailer"
	"github.com/diagnosis/parkspot/internal/platform/clock"
	"github.com/diagnosis/parkspot/internal/repo"
	"github.com/diagnosis/parkspot/pkg/config"
	"github.com/diagnosis/parkspot/pkg/logger"
)

const (
	eventTimeout = 15 * time.Second
	sweepTimeout = 2 * time.Minute
)

// Deps are the collaborators a Runner needs. RateLimits may be nil when the
// rate limit store is not configured.
type Deps struct {
	Users      repo.UserRepository
	Listings   repo.ListingRepository
	Bookings   repo.BookingRepository
	RateLimits repo.RateLimitRepository
	Mailer     mailer.Mailer
	Clock      clock.Clock
}

type Runner struct {
	users      repo.UserRepository
	listings   repo.ListingRepository
	bookings   repo.BookingRepository
	rateLimits repo.RateLimitRepository
	mailer     mailer.Mailer
	clock      clock.Clock
	cfg        config.JobsConfig
}

func NewRunner(deps Deps, cfg config.JobsConfig) *Runner {
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 1
	}
	return &Runner{
		users:      deps.Users,
		listings:   deps.Listings,
		bookings:   deps.Bookings,
		rateLimits: deps.RateLimits,
		mailer:     deps.Mailer,
		clock:      deps.Clock,
		cfg:        cfg,
	}
}

func (r *Runner) Config() config.JobsConfig { return r.cfg }

// run executes a job with a timeout and recovers from panics so one bad run
// never takes the scheduler down.
func (r *Runner) run(name string, timeout time.Duration, job func(ctx context.Context) error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Job panicked", "job", name, "panic", p)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := r.clock.Now()
	if err := job(ctx); err != nil {
		logger.Error("Job failed", "job", name, "error", err)
		return
	}
	logger.Debug("Job completed", "job", name, "elapsed", r.clock.Now().Sub(start).String())
}
