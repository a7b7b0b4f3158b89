package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/quotation/internal/health"
)

// ServiceName is the name the quotation service reports under in gRPC health.
const ServiceName = "quotation.QuotationService"

// GRPCServer serves the standard gRPC health protocol.
type GRPCServer struct {
	port   int
	server *grpc.Server
	health *grpchealth.Server
}

// NewGRPCServer creates a gRPC server reporting NOT_SERVING until SetServing.
func NewGRPCServer(port int) *GRPCServer {
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &GRPCServer{port: port, server: srv, health: hs}
}

// Start listens on the configured port and serves until Stop.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port %d: %w", s.port, err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener.
func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// SetServing updates the reported status of the whole server and the service.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Watch mirrors the monitor's report into gRPC health until ctx is done.
func (s *GRPCServer) Watch(ctx context.Context, monitor *health.Monitor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report := monitor.CheckHealth(ctx)
		s.SetServing(report.SystemStatus != health.StatusCritical)
		if report.SystemStatus != health.StatusHealthy {
			slog.Warn("Health degraded", "status", report.SystemStatus)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop drains in-flight RPCs, forcing shutdown once ctx is done.
func (s *GRPCServer) Stop(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	}
}
