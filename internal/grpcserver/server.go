// Package grpcserver exposes the standard gRPC health service so that
// orchestrators can probe the mentor backend without HTTP.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"mentorchat/backend/pkg/health"
	"mentorchat/backend/pkg/logger"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "mentorchat.Mentor"

type Server struct {
	grpc    *grpc.Server
	health  *grpchealth.Server
	checker *health.Checker
	logger  *logger.Logger
}

// New creates a gRPC server whose health status mirrors checker.
func New(checker *health.Checker, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{
		grpc:    grpc.NewServer(),
		health:  grpchealth.NewServer(),
		checker: checker,
		logger:  log.WithComponent("grpc"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.sync()
	return s
}

// sync copies the checker verdict into the gRPC health service.
func (s *Server) sync() {
	status := healthpb.HealthCheckResponse_SERVING
	if !s.checker.IsSystemHealthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve listens on port and serves until ctx is done.
func (s *Server) Serve(ctx context.Context, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is done, refreshing the health
// status every few seconds.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				close(done)
				return
			case <-ticker.C:
				s.sync()
			}
		}
	}()

	s.logger.Info("gRPC server listening", "addr", lis.Addr().String())
	err := s.grpc.Serve(lis)
	<-done
	return err
}
