package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/common"
	"github.com/dmitrijs2005/zipbuilder/internal/logging"
	pb "github.com/dmitrijs2005/zipbuilder/internal/proto"
	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeJobs struct {
	mu        sync.Mutex
	submitted []string
	job       *models.Job
	err       error
}

func (f *fakeJobs) Submit(ctx context.Context, manifestURL string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, manifestURL)
	return f.job, f.err
}

func (f *fakeJobs) GetStatus(ctx context.Context, taskKey string) (*models.Job, error) {
	return f.job, f.err
}

func startBufServer(t *testing.T, jobs JobService) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer("bufnet", logging.Nop(), jobs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return conn
}

func TestSubmit_ReturnsJob(t *testing.T) {
	jobs := &fakeJobs{job: &models.Job{TaskKey: "k", TaskID: "id", ManifestURL: "https://example.com/m.json", Status: models.StatusQueued}}
	client := pb.NewJobServiceClient(startBufServer(t, jobs))

	res, err := client.Submit(context.Background(), pb.NewSubmitRequest("https://example.com/m.json"))
	require.NoError(t, err)

	job, err := pb.JobFromStruct(res)
	require.NoError(t, err)
	assert.Equal(t, "k", job.TaskKey)
	assert.Equal(t, models.StatusQueued, job.Status)
	assert.Equal(t, []string{"https://example.com/m.json"}, jobs.submitted)
}

func TestGetStatus_ReturnsJob(t *testing.T) {
	jobs := &fakeJobs{job: &models.Job{TaskKey: "k", Status: models.StatusFinished, Result: "https://b.s3.amazonaws.com/d.zip"}}
	client := pb.NewJobServiceClient(startBufServer(t, jobs))

	res, err := client.GetStatus(context.Background(), pb.NewGetStatusRequest("k"))
	require.NoError(t, err)
	assert.Equal(t, "https://b.s3.amazonaws.com/d.zip", pb.StringField(res, "result"))
}

func TestHandlers_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"configuration", fmt.Errorf("%w: bad url", common.ErrConfiguration), codes.InvalidArgument},
		{"not found", common.ErrNotFound, codes.NotFound},
		{"stopped", common.ErrQueueStopped, codes.Unavailable},
		{"other", errors.New("db down"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := pb.NewJobServiceClient(startBufServer(t, &fakeJobs{err: tt.err}))

			_, err := client.GetStatus(context.Background(), pb.NewGetStatusRequest("k"))
			assert.Equal(t, tt.code, status.Code(err))

			_, err = client.Submit(context.Background(), pb.NewSubmitRequest("https://example.com/m.json"))
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestHandlers_MissingFields(t *testing.T) {
	jobs := &fakeJobs{}
	client := pb.NewJobServiceClient(startBufServer(t, jobs))

	_, err := client.Submit(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.GetStatus(context.Background(), &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	assert.Empty(t, jobs.submitted)
}

func TestHealth_Serving(t *testing.T) {
	conn := startBufServer(t, &fakeJobs{})

	res, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: pb.JobServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, res.GetStatus())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.Nop(), &fakeJobs{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.Nop(), &fakeJobs{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.Error(t, srv.Run(ctx))
}
