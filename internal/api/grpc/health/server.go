package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	domain "github.com/oshokin/alarm-silencer/internal/domain/alarm"
	"github.com/oshokin/alarm-silencer/internal/logger"
)

// Health service names.
const (
	ServiceLoop   = ""
	ServiceCamera = "camera"
	ServiceAlarm  = "alarm"
)

// Services lists every reported service.
var Services = []string{ServiceLoop, ServiceCamera, ServiceAlarm}

// Server maps loop events onto health statuses.
type Server struct {
	// health holds the statuses served to clients.
	health *grpchealth.Server
}

// NewServer creates a server reporting every service as not serving until
// the loop says otherwise.
func NewServer() *Server {
	s := &Server{health: grpchealth.NewServer()}

	for _, service := range Services {
		s.health.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return s
}

// Register installs the health service on registrar.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// SetLoopServing reports whether the synchronization loop is running.
func (s *Server) SetLoopServing(serving bool) {
	s.health.SetServingStatus(ServiceLoop, toStatus(serving))
}

// Observe implements alarm.Observer.
func (s *Server) Observe(_ context.Context, event domain.Event) {
	switch event.Kind {
	case domain.EventCamera:
		s.health.SetServingStatus(ServiceCamera, toStatus(event.Active))
	case domain.EventAlarm:
		s.health.SetServingStatus(ServiceAlarm, toStatus(event.Active))
	case domain.EventFace, domain.EventAudio:
		// Not exposed.
	}
}

// Check returns the current status of service.
func (s *Server) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}

	return resp.GetStatus(), nil
}

// Serve runs a gRPC server on lis until ctx is canceled. All statuses
// switch to NOT_SERVING before the server stops.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	s.Register(grpcServer)

	logger.InfoKV(ctx, "Status server listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes so Serve returns
	// only once the server fully stopped.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down status server")
		s.health.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Status server stopped")

	return nil
}

// toStatus converts a boolean into a serving status.
func toStatus(serving bool) healthpb.HealthCheckResponse_ServingStatus {
	if serving {
		return healthpb.HealthCheckResponse_SERVING
	}

	return healthpb.HealthCheckResponse_NOT_SERVING
}
