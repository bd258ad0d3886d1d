package middleware

import (
	"context"
	"path"
	"time"

	"google.golang.org/grpc"

	"github.com/sparks1372/octopus-consumption-exporter/internal/metrics"
)

func NewMetricsInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		method := path.Base(info.FullMethod)
		m.RPCRequests.WithLabelValues(method).Inc()
		m.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}
