package grpc

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/zipbuilder/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type entry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries *[]entry
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: &[]entry{}}
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, entry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(_ context.Context, msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(_ context.Context, msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(_ context.Context, msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(_ context.Context, msg string, args ...any) { l.add("error", msg, args) }
func (l *recordingLogger) With(...any) logging.Logger                       { return l }

func TestLoggingInterceptor_LevelByCode(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{"ok", nil, "info"},
		{"client error", status.Error(codes.NotFound, "nope"), "warn"},
		{"server error", status.Error(codes.Internal, "boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := newRecordingLogger()
			s := NewGRPCServer("", log, nil)
			info := &grpc.UnaryServerInfo{FullMethod: "/zipbuilder.JobService/GetStatus"}

			_, err := s.loggingInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
				return "ok", tt.err
			})
			assert.Equal(t, tt.err, err)

			require.Len(t, *log.entries, 1)
			got := (*log.entries)[0]
			assert.Equal(t, tt.level, got.level)
			assert.Contains(t, got.args, status.Code(tt.err).String())
		})
	}
}

func TestRecoveryInterceptor_ConvertsPanic(t *testing.T) {
	log := newRecordingLogger()
	s := NewGRPCServer("", log, nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/zipbuilder.JobService/Submit"}

	resp, err := s.recoveryInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})

	assert.Nil(t, resp)
	assert.Equal(t, codes.Internal, status.Code(err))
	require.Len(t, *log.entries, 1)
	assert.Equal(t, "error", (*log.entries)[0].level)
}

func TestRecoveryInterceptor_PassesThrough(t *testing.T) {
	s := NewGRPCServer("", logging.Nop(), nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/x"}

	resp, err := s.recoveryInterceptor(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return req, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req", resp)
}

func TestLoggingInterceptor_TagsContextWithMethod(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	s := NewGRPCServer("", log, nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/zipbuilder.JobService/Submit"}

	_, err := s.loggingInterceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		log.Info(ctx, "inside handler")
		return nil, nil
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		assert.Contains(t, l, "method=/zipbuilder.JobService/Submit")
	}
}
