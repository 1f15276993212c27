package handler

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "ihire.proctoring.SessionService"

// NewServer returns a grpc.health.v1 server. Refresh or Watch keep its status current.
func NewServer() *health.Server {
	return health.NewServer()
}

// Refresh runs checker once and publishes SERVING or NOT_SERVING on hs.
func Refresh(ctx context.Context, hs *health.Server, checker *Checker) Report {
	report := checker.Check(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if !report.Serving() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
	return report
}

// Watch refreshes hs every interval until ctx is done, then marks it NOT_SERVING.
func Watch(ctx context.Context, hs *health.Server, checker *Checker, interval time.Duration) {
	Refresh(ctx, hs, checker)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			Refresh(ctx, hs, checker)
		}
	}
}
