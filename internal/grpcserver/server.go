// Package grpcserver exposes the standard gRPC health service for the piggy
// bank, so orchestrators can probe storage readiness without HTTP.
package grpcserver

import (
	"context"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	applog "piggybank/internal/log"
)

// ServiceName is the health service name reported next to the overall ("")
// status.
const ServiceName = "piggybank.Ledger"

// Checker reports whether the ledger's storage is reachable.
type Checker interface {
	Ready(ctx context.Context) error
}

type Server struct {
	addr     string
	lis      net.Listener
	Server   *grpc.Server
	health   *health.Server
	checker  Checker
	interval time.Duration
	logger   *applog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New builds a gRPC server with health and reflection registered. The
// health status follows checker, polled every interval.
func New(addr string, checker Checker, interval time.Duration, logger *applog.Logger) *Server {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	return &Server{
		addr:     addr,
		Server:   s,
		health:   hs,
		checker:  checker,
		interval: interval,
		logger:   logger.WithComponent(applog.ComponentGRPC),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start listens on addr and serves until Stop. It blocks.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.lis = lis
	go s.watch()
	s.logger.Info("gRPC health server listening", applog.FieldAddr, lis.Addr().String())
	return s.Server.Serve(lis)
}

func (s *Server) watch() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Probe(context.Background())
	for {
		select {
		case <-ticker.C:
			s.Probe(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Probe runs one readiness check and publishes the result.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := s.checker.Ready(ctx); err != nil {
			s.logger.Warn("Ledger not ready", applog.FieldError, err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.health.Shutdown()
		s.Server.GracefulStop()
		if s.lis != nil {
			_ = s.lis.Close()
			<-s.done
		}
	})
}
