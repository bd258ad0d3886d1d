package server_test

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	server "github.com/sparks1372/octopus-consumption-exporter/internal/grpc"
	"github.com/sparks1372/octopus-consumption-exporter/internal/metrics"
	"github.com/sparks1372/octopus-consumption-exporter/internal/models"
)

func startServer(t *testing.T, health *server.HealthChecker, m *metrics.Metrics, config server.ServerConfig) grpc_health_v1.HealthClient {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	lis := bufconn.Listen(1024 * 1024)
	srv := server.SetupServer(health, logger, m, config)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return grpc_health_v1.NewHealthClient(conn)
}

func TestHealthOverGRPC(t *testing.T) {
	health := server.NewHealthChecker()
	m := metrics.New(prometheus.NewRegistry())
	client := startServer(t, health, m, server.DefaultServerConfig())
	ctx := context.Background()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	health.SetSeriesHealth(models.Gas, false)

	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "gas"})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)

	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)

	_, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "water"})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))

	assert.Equal(t, float64(4), testutil.ToFloat64(m.RPCRequests.WithLabelValues("Check")))
}

func TestRateLimiting(t *testing.T) {
	health := server.NewHealthChecker()
	m := metrics.New(prometheus.NewRegistry())
	client := startServer(t, health, m, server.ServerConfig{RateLimit: 0.001, RateLimitBurst: 1})
	ctx := context.Background()

	_, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)

	_, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}
