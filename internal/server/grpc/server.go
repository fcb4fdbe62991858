// Package grpc exposes the job coordinator over gRPC: Submit, GetStatus and
// the standard health service.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/zipbuilder/internal/logging"
	pb "github.com/dmitrijs2005/zipbuilder/internal/proto"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// JobService is the part of the coordinator the transport needs.
type JobService interface {
	Submit(ctx context.Context, manifestURL string) (*models.Job, error)
	GetStatus(ctx context.Context, taskKey string) (*models.Job, error)
}

type GRPCServer struct {
	pb.UnimplementedJobServiceServer
	address string
	jobs    JobService
	health  *health.Server
	logger  logging.Logger
}

func NewGRPCServer(address string, l logging.Logger, jobs JobService) *GRPCServer {
	return &GRPCServer{
		address: address,
		jobs:    jobs,
		health:  health.NewServer(),
		logger:  l.With("module", "grpc_server"),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.recoveryInterceptor))

	pb.RegisterJobServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(pb.JobServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
