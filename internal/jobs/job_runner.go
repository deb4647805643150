package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"membership-backend/internal/config"
	"membership-backend/internal/logger"
	"membership-backend/internal/service"
)

// Job names accepted by RunByName.
const (
	JobReconcile   = "reconcile"
	JobVerifyStore = "verify-store"
	JobAll         = "all"
)

// Pinger is satisfied by the realtime store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	admin   service.AdminService
	store   Pinger
	config  *config.Config
	timeout time.Duration
	log     *slog.Logger
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(admin service.AdminService, store Pinger, cfg *config.Config) *JobRunner {
	return &JobRunner{
		admin:   admin,
		store:   store,
		config:  cfg,
		timeout: 2 * time.Minute,
		log:     logger.WithService("jobs"),
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			jr.log.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jr.timeout)
	defer cancel()

	start := time.Now()
	jr.log.InfoContext(ctx, "Starting job", "job", jobName)
	if err = jobFunc(ctx); err != nil {
		jr.log.ErrorContext(ctx, "Job failed", "job", jobName, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return err
	}
	jr.log.InfoContext(ctx, "Job completed", "job", jobName, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// RunByName runs one job, or every job for JobAll.
func (jr *JobRunner) RunByName(name string) error {
	switch name {
	case JobReconcile:
		return jr.ReconcileRoster()
	case JobVerifyStore:
		return jr.VerifyStore()
	case JobAll:
		if err := jr.VerifyStore(); err != nil {
			return err
		}
		return jr.ReconcileRoster()
	}
	return fmt.Errorf("unknown job %q, available: %v", name, JobNames())
}

func JobNames() []string {
	names := []string{JobReconcile, JobVerifyStore, JobAll}
	sort.Strings(names)
	return names
}
