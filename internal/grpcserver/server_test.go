package grpcserver

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"mentorchat/backend/pkg/health"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHealthMirrorsChecker(t *testing.T) {
	checker := health.NewChecker(nil, 0, "test")
	down := true
	checker.RegisterPingCheck("database", true, health.PingerFunc(func(context.Context) error {
		if down {
			return errors.New("refused")
		}
		return nil
	}))
	checker.RunChecks(context.Background())

	srv := New(checker, nil)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.ServeListener(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client := healthpb.NewHealthClient(conn)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	down = false
	checker.RunChecks(context.Background())
	srv.sync()

	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	require.NoError(t, conn.Close())
	cancel()
	assert.NoError(t, <-errc)
}
