// Package probe exposes backend health over the standard gRPC health service.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health service name reported for the session gate.
const ServiceName = "vetcare.session"

// Pinger is a dependency whose reachability decides the serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check names a dependency.
type Check struct {
	Name   string
	Pinger Pinger
}

// Server serves grpc.health.v1.Health and keeps its status in sync with the checks.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	checks   []Check
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a probe server.
func New(checks []Check, interval time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 10 * time.Second,
		}),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		grpc:     gs,
		health:   hs,
		checks:   checks,
		interval: interval,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// Evaluate pings every check once and publishes the resulting status.
func (s *Server) Evaluate(ctx context.Context) error {
	var errs []error
	for _, c := range s.checks {
		pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.Pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}

	status := healthpb.HealthCheckResponse_SERVING
	err := errors.Join(errs...)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("Health probe failed", "error", err)
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return err
}

// Serve evaluates the checks, then serves on lis and re-evaluates every
// interval until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	_ = s.Evaluate(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = s.Evaluate(ctx)
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			}
		}
	}()

	s.logger.Info("gRPC health probe listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}
