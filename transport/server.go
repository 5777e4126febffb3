// Package transport provides the fabric's thin gRPC companion surface: a
// standard grpc_health_v1 service any component can embed to expose its
// Lifecycle Supervisor state over the network, with the same
// listen/serve/graceful-shutdown shape the teacher's serving harness uses.
// It deliberately does not attempt to re-host the teacher's richer
// agent/tool/plugin dispatch surface — SPEC_FULL places that out of scope.
package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tekton-fabric/core/lifecycle"
)

// Config configures a Server.
type Config struct {
	// Port is the TCP port to listen on. Default: 50051.
	Port int

	// GracefulTimeout bounds how long GracefulStop waits for in-flight
	// RPCs before forcing a stop. Default: 30s.
	GracefulTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = 50051
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = 30 * time.Second
	}
}

// Server wraps a grpc.Server exposing grpc_health_v1, with graceful
// shutdown on SIGINT/SIGTERM or context cancellation.
type Server struct {
	cfg          Config
	grpcServer   *grpc.Server
	listener     net.Listener
	healthServer *health.Server
}

// NewServer binds a TCP listener on cfg.Port and registers the standard
// health service. Callers needing to serve additional gRPC services can
// register them on GRPCServer() before calling Serve.
func NewServer(cfg Config) (*Server, error) {
	cfg.setDefaults()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		cfg:          cfg,
		grpcServer:   grpcServer,
		listener:     listener,
		healthServer: healthServer,
	}, nil
}

// GRPCServer returns the underlying server so callers can register
// additional services before Serve is called.
func (s *Server) GRPCServer() *grpc.Server { return s.grpcServer }

// HealthServer returns the grpc_health_v1 server so callers can set
// per-service serving status directly. WireLifecycle is the usual way to
// keep it in sync with a Supervisor instead of calling this directly.
func (s *Server) HealthServer() *health.Server { return s.healthServer }

// Port returns the port actually bound, useful when Config.Port was 0.
func (s *Server) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.cfg.Port
}

// Serve blocks until ctx is cancelled, SIGINT/SIGTERM is received, or the
// server errors, then performs a graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.GracefulStop()
		return ctx.Err()
	case <-sigCh:
		s.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// GracefulStop stops accepting new connections and waits up to
// Config.GracefulTimeout for in-flight RPCs to finish before forcing a stop.
func (s *Server) GracefulStop() {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.GracefulTimeout):
		s.grpcServer.Stop()
	}
}

// Stop immediately terminates the server, aborting in-flight RPCs.
func (s *Server) Stop() { s.grpcServer.Stop() }

// WireLifecycle keeps the health service's overall serving status in sync
// with componentID's Lifecycle Supervisor state: READY maps to SERVING,
// FAILED to NOT_SERVING, and every other state (INITIALIZING, DEGRADED,
// STOPPING, RESTARTING) to NOT_SERVING until the component reaches READY
// again.
func (s *Server) WireLifecycle(sup *lifecycle.Supervisor, componentID string) {
	sup.ObserveComponent(componentID, func(event lifecycle.TransitionEvent) {
		s.healthServer.SetServingStatus("", servingStatus(event.To))
	})
}

func servingStatus(state lifecycle.State) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if state == lifecycle.StateReady {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}
