package api

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the dispatcher
const ServiceName = "alertd.Dispatcher"

// NewHealthServer returns a health service reflecting whether the
// dispatcher accepts alerts. Both the overall ("") and the named service
// carry the same status.
func NewHealthServer(d Dispatcher) *health.Server {
	hs := health.NewServer()
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if d.Enabled() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
	return hs
}

// GRPCServer serves the standard grpc.health.v1 service
type GRPCServer struct {
	addr   string
	server *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// NewGRPCServer creates a gRPC server exposing dispatcher health
func NewGRPCServer(addr string, d Dispatcher, logger zerolog.Logger) *GRPCServer {
	hs := NewHealthServer(d)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCServer{
		addr:   addr,
		server: srv,
		health: hs,
		logger: logger.With().Str("component", "grpc").Logger(),
	}
}

// Start listens on the configured address and serves until Stop
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return err
	}
	return g.Serve(lis)
}

// Serve serves on an existing listener
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.logger.Info().
		Str("address", lis.Addr().String()).
		Msg("Starting gRPC health server")
	return g.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains open RPCs
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
