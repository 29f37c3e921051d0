package grpcserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	applog "piggybank/internal/log"
)

type fakeChecker struct{ err error }

func (f *fakeChecker) Ready(context.Context) error { return f.err }

func TestProbeFollowsChecker(t *testing.T) {
	checker := &fakeChecker{}
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	s := New("127.0.0.1:0", checker, 0, logger)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, s.Probe(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceName))

	checker.err = errors.New("database is locked")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.Probe(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceName))

	s.Stop()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))
}
