package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"membership-backend/internal/jobs"
	"membership-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a scheduler with seconds precision in loc and
// registers the configured jobs.
func NewScheduler(jobRunner *jobs.JobRunner, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}
	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	_, err := s.cron.AddFunc(cfg.Reconcile, func() {
		_ = s.jobs.ReconcileRoster()
	})
	if err != nil {
		return fmt.Errorf("failed to register ReconcileRoster job with spec %q: %w", cfg.Reconcile, err)
	}

	logger.Info("All cron jobs registered successfully", "reconcile", cfg.Reconcile, "repair", cfg.Repair)
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
