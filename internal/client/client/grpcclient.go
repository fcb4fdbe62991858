package client

import (
	"context"
	"fmt"
	"time"

	pb "github.com/dmitrijs2005/zipbuilder/internal/proto"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.JobServiceClient
}

func NewJobClient(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = pb.NewJobServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Submit asks the server to build manifestURL and returns the job record.
func (s *GRPCClient) Submit(ctx context.Context, manifestURL string) (*models.Job, error) {
	resp, err := s.client.Submit(ctx, pb.NewSubmitRequest(manifestURL))
	if err != nil {
		return nil, s.mapError(err)
	}
	return decode(resp)
}

// GetStatus returns the current record of the job with taskKey.
func (s *GRPCClient) GetStatus(ctx context.Context, taskKey string) (*models.Job, error) {
	resp, err := s.client.GetStatus(ctx, pb.NewGetStatusRequest(taskKey))
	if err != nil {
		return nil, s.mapError(err)
	}
	return decode(resp)
}

// Wait polls the job every interval until it is finished or failed. A failed
// job is returned together with ErrJobFailed. onUpdate, when set, sees every
// polled record whose status or progress changed.
func (s *GRPCClient) Wait(ctx context.Context, taskKey string, interval time.Duration, onUpdate func(*models.Job)) (*models.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *models.Job
	for {
		job, err := s.GetStatus(ctx, taskKey)
		if err != nil {
			return nil, err
		}

		if onUpdate != nil && changed(last, job) {
			onUpdate(job)
		}
		last = job

		switch job.Status {
		case models.StatusFinished:
			return job, nil
		case models.StatusFailed:
			return job, fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return job, ctx.Err()
		}
	}
}

func changed(prev, cur *models.Job) bool {
	if prev == nil || prev.Status != cur.Status || prev.Retries != cur.Retries {
		return true
	}
	if (prev.Progress == nil) != (cur.Progress == nil) {
		return true
	}
	return prev.Progress != nil && *prev.Progress != *cur.Progress
}

func decode(resp *structpb.Struct) (*models.Job, error) {
	job, err := pb.JobFromStruct(resp)
	if err != nil {
		return nil, fmt.Errorf("bad server response: %w", err)
	}
	return job, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.NotFound:
		return ErrNotFound
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
