package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	ServiceName = "portfolio"

	probeTimeout = 3 * time.Second
)

// Probe reports whether one dependency is reachable.
type Probe func(ctx context.Context) error

// Server publishes the service status through the standard gRPC health
// protocol. The status follows the probes: one failing probe is enough for
// NOT_SERVING.
type Server struct {
	health *grpchealth.Server
	probes map[string]Probe
	log    *slog.Logger
}

func NewServer(probes map[string]Probe, log *slog.Logger) *Server {
	return &Server{
		health: grpchealth.NewServer(),
		probes: probes,
		log:    log,
	}
}

func (s *Server) Register(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, s.health)
}

// Check runs every probe once and updates the published status.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING

	for name, probe := range s.probes {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := probe(probeCtx)
		cancel()

		if err != nil {
			s.log.Warn("health probe failed", "dependency", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}
