package grpcserver

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer builds a gRPC server exposing MissionControl and the standard
// health service.
func NewServer(svc MissionControlServer, logger *slog.Logger) *grpc.Server {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(NewUnaryLoggingInterceptor(logger, healthCheckMethod)),
		grpc.StreamInterceptor(NewStreamLoggingInterceptor(logger)),
	)
	srv.RegisterService(&MissionControlServiceDesc, svc)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// StartGRPC starts the gRPC server on the given address and returns a shutdown function.
func StartGRPC(addr string, svc MissionControlServer, logger *slog.Logger) (func(context.Context) error, error) {
	if addr == "" {
		addr = ":50051"
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := NewServer(svc, logger)
	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc serve", slog.Any("error", err))
		}
	}()

	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}
