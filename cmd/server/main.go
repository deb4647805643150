package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	grpcapi "membership-backend/internal/api/grpc"
	httpapi "membership-backend/internal/api/http"
	"membership-backend/internal/config"
	"membership-backend/internal/factory"
	"membership-backend/internal/jobs"
	"membership-backend/internal/logger"
	"membership-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Membership Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "realtime_backend", cfg.Realtime.Backend, "storage", cfg.Storage.Type)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, cleanup, err := factory.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize components", "error", err)
		log.Fatalf("Failed to initialize components: %v", err)
	}
	defer cleanup()

	if err := f.DB.Ping(ctx); err != nil {
		logger.Error("Failed to reach realtime store", "error", err)
		log.Fatalf("Failed to reach realtime store: %v", err)
	}
	logger.Info("Realtime store connection established")

	deps := httpapi.Deps{
		Auth:           f.Services.Auth,
		Registration:   f.Services.Registration,
		Admin:          f.Services.Admin,
		Sessions:       f.Sessions,
		Tokens:         f.Tokens,
		Health:         f.DB,
		Files:          f.MockFiles,
		Metrics:        f.Metrics,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}
	if cfg.Metrics.Enabled {
		deps.MetricsHandler = promhttp.HandlerFor(f.Registry, promhttp.HandlerOpts{Registry: f.Registry})
		deps.MetricsPath = cfg.Metrics.Path
	}
	router := httpapi.NewRouter(httpapi.NewHandlers(deps))

	// WriteTimeout stays zero for the event stream; handlers set their own deadlines.
	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// gRPC health endpoint
	var health *grpcapi.HealthService
	if cfg.GRPC.Port > 0 {
		lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
		if err != nil {
			logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
			log.Fatalf("Failed to listen: %v", err)
		}
		health = grpcapi.NewHealthService(f.DB, 10*time.Second)
		gs := grpcapi.NewServer(health)
		go health.Run(ctx)
		go func() {
			logger.Info("gRPC health server listening", "address", cfg.GetGRPCAddress())
			if err := gs.Serve(lis); err != nil {
				logger.Error("gRPC server error", "error", err)
			}
		}()
		defer gs.GracefulStop()
	}

	// Reconcile sweep
	if cfg.Scheduler.Enabled {
		loc, err := cfg.Location()
		if err != nil {
			log.Fatalf("Invalid timezone: %v", err)
		}
		sched, err := scheduler.NewScheduler(jobs.NewJobRunner(f.Services.Admin, f.DB, cfg), loc)
		if err != nil {
			logger.Error("Failed to schedule jobs", "error", err)
			log.Fatalf("Failed to schedule jobs: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("HTTP server error: %v", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	// Graceful shutdown
	if health != nil {
		health.Shutdown()
	}
	// Ends open event streams so Shutdown does not wait on them.
	f.Sessions.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server did not shut down cleanly", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}
