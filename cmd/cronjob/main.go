package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"membership-backend/internal/config"
	"membership-backend/internal/factory"
	"membership-backend/internal/jobs"
	"membership-backend/internal/logger"
	"membership-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit ("+strings.Join(jobs.JobNames(), ", ")+")")
	repair := flag.Bool("repair", false, "Repair stranded approvals and pool conflicts instead of only reporting them")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *repair {
		cfg.Scheduler.Repair = true
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Membership Cronjob Runner...", "log_level", cfg.Log.Level, "repair", cfg.Scheduler.Repair)

	f, cleanup, err := factory.New(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize components", "error", err)
		log.Fatalf("Failed to initialize components: %v", err)
	}
	defer cleanup()

	jobRunner := jobs.NewJobRunner(f.Services.Admin, f.DB, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := jobRunner.RunByName(*runOnce); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			cleanup()
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}
	cronScheduler, err := scheduler.NewScheduler(jobRunner, loc)
	if err != nil {
		logger.Error("Failed to schedule jobs", "error", err)
		log.Fatalf("Failed to schedule jobs: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.", "reconcile", cfg.Scheduler.Reconcile)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}
