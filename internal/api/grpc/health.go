// Package grpc serves the standard gRPC health protocol for load balancers
// and orchestrators. Serving status follows the realtime store's reachability.
package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"membership-backend/internal/api/grpc/interceptor"
	"membership-backend/internal/logger"
)

// ServiceName is the health service name reported next to the server-wide "".
const ServiceName = "membership.v1.Membership"

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthService struct {
	health   *health.Server
	store    Pinger
	interval time.Duration
	timeout  time.Duration
}

func NewHealthService(store Pinger, interval time.Duration) *HealthService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthService{
		health:   health.NewServer(),
		store:    store,
		interval: interval,
		timeout:  3 * time.Second,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *HealthService) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(ServiceName, st)
}

// Check pings the store once and publishes the result.
func (h *HealthService) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		logger.Warn("Store health check failed", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.set(st)
	return st
}

// Run checks the store every interval until ctx is done.
func (h *HealthService) Run(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING to every watcher and ignores later updates.
func (h *HealthService) Shutdown() {
	h.health.Shutdown()
}

// NewServer builds a gRPC server exposing health and reflection.
func NewServer(h *HealthService) *grpc.Server {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.Recovery(), interceptor.Unary()),
	)
	healthpb.RegisterHealthServer(s, h.health)
	reflection.Register(s)
	return s
}
