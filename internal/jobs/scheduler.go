package jobs

import (
	"fmt"
	"time"

	"github.com/diagnosis/parkspot/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic sweeps. Specs use six fields (with seconds) and
// are evaluated in UTC.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
}

func NewScheduler(runner *Runner) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		runner: runner,
	}
	if err := s.register(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register() error {
	cfg := s.runner.Config()
	entries := []struct {
		name string
		spec string
		job  func()
	}{
		{"duration_sweep", cfg.DurationSweepSpec, s.runner.DurationSweep},
		{"reconcile_availability", cfg.ReconcileSpec, s.runner.Reconcile},
		{"rate_limit_cleanup", cfg.RateLimitCleanupSpec, s.runner.CleanupRateLimits},
	}
	for _, e := range entries {
		if e.spec == "" {
			logger.Info("Job disabled", "job", e.name)
			continue
		}
		if _, err := s.cron.AddFunc(e.spec, e.job); err != nil {
			return fmt.Errorf("register %s (%q): %w", e.name, e.spec, err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Cron scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("Cron scheduler stopped")
}

func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }
