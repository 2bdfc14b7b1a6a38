package rpc

import (
	"github.com/signalsfoundry/plant-trainer/internal/logging"
	"github.com/signalsfoundry/plant-trainer/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server bundles the gRPC server with its health service.
type Server struct {
	*grpc.Server
	health *health.Server
}

// NewServer registers svc and the standard health service on a new
// grpc.Server. Health reports NOT_SERVING until MarkServing is called.
func NewServer(svc TrainerServer, log logging.Logger, collector *observability.RPCCollector, opts ...grpc.ServerOption) *Server {
	if log == nil {
		log = logging.Noop()
	}
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			OperationIDUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			OperationIDStreamServerInterceptor(log),
			collector.StreamServerInterceptor(),
		),
	}
	gs := grpc.NewServer(append(base, opts...)...)
	RegisterTrainerServer(gs, svc)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{Server: gs, health: hs}
}

// MarkServing flips health to SERVING once the scheduler is running.
func (s *Server) MarkServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Shutdown marks the server NOT_SERVING and drains in-flight calls.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.GracefulStop()
}
