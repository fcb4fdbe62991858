package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	pb "github.com/dmitrijs2005/zipbuilder/internal/proto"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	manifestURL := pb.StringField(req, pb.FieldManifestURL)
	if manifestURL == "" {
		return nil, status.Error(codes.InvalidArgument, pb.FieldManifestURL+" is required")
	}

	job, err := s.jobs.Submit(ctx, manifestURL)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}

	return s.encode(ctx, job)
}

func (s *GRPCServer) GetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	taskKey := pb.StringField(req, pb.FieldTaskKey)
	if taskKey == "" {
		return nil, status.Error(codes.InvalidArgument, pb.FieldTaskKey+" is required")
	}

	job, err := s.jobs.GetStatus(ctx, taskKey)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}

	return s.encode(ctx, job)
}

func (s *GRPCServer) encode(ctx context.Context, job *models.Job) (*structpb.Struct, error) {
	res, err := pb.JobToStruct(job)
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, status.Error(codes.Internal, "internal error")
	}
	return res, nil
}

func (s *GRPCServer) mapError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrConfiguration):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, "job not found")
	case errors.Is(err, common.ErrQueueStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	s.logger.Error(ctx, err.Error())
	return status.Error(codes.Internal, "internal error")
}
