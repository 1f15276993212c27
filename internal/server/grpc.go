package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewGRPCServer returns a gRPC server with the otelgrpc stats handler and the services registered.
func NewGRPCServer(hs *health.Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, hs)
	return s
}

// RegisterServices registers the gRPC services with the given server.
//
//   - grpc.health.v1.Health → hs, kept current by health/handler.Watch
//   - grpc.reflection       → server reflection for grpcurl and similar tools
func RegisterServices(s *grpc.Server, hs *health.Server) {
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
}
