// Package server exposes the exporter's per-series sync health over the gRPC
// health checking protocol.
package server

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	middleware "github.com/sparks1372/octopus-consumption-exporter/internal/grpc/middlewares"
	"github.com/sparks1372/octopus-consumption-exporter/internal/metrics"
)

// ServerConfig holds configuration options for the gRPC server
type ServerConfig struct {
	RateLimit      float64 // Requests per second
	RateLimitBurst int     // Maximum burst size for rate limiting
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RateLimit:      5.0,
		RateLimitBurst: 10,
	}
}

// SetupServer creates a gRPC server serving health with all middleware.
func SetupServer(health *HealthChecker, logger *logrus.Logger, m *metrics.Metrics, config ServerConfig) *grpc.Server {
	limiter := rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimitBurst)

	server := grpc.NewServer(
		grpc.UnaryInterceptor(
			chainUnaryInterceptors(
				middleware.ContextMiddleware,                   // Add request ID first
				middleware.NewRateLimitingInterceptor(limiter), // Rate limit early
				middleware.NewLoggingInterceptor(logger),
				middleware.NewMetricsInterceptor(m),
			),
		),
	)

	grpc_health_v1.RegisterHealthServer(server, health)
	return server
}

// chainUnaryInterceptors creates a single interceptor from multiple interceptors
func chainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor := interceptors[i]
			chainedInterceptor := chain
			chain = func(currentCtx context.Context, currentReq interface{}) (interface{}, error) {
				return interceptor(currentCtx, currentReq, info, chainedInterceptor)
			}
		}
		return chain(ctx, req)
	}
}
