package server

import (
	"context"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/sparks1372/octopus-consumption-exporter/internal/models"
)

// HealthChecker implements the gRPC health checking protocol. Each series is
// exposed as its own service; the empty service name reports the exporter as a
// whole and is SERVING only while every reported series is healthy.
type HealthChecker struct {
	grpc_health_v1.UnimplementedHealthServer
	mu        sync.RWMutex
	status    map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
	validator *ServiceValidator
}

func NewHealthChecker() *HealthChecker {
	h := &HealthChecker{
		status:    make(map[string]grpc_health_v1.HealthCheckResponse_ServingStatus),
		validator: NewServiceValidator(),
	}
	// nothing has synced yet, but the process is up
	h.status[""] = grpc_health_v1.HealthCheckResponse_SERVING
	return h
}

func (h *HealthChecker) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if err := h.validator.Validate(req.Service); err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if st, ok := h.status[req.Service]; ok {
		return &grpc_health_v1.HealthCheckResponse{
			Status: st,
		}, nil
	}

	// a known series that has not been synced yet
	return &grpc_health_v1.HealthCheckResponse{
		Status: grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN,
	}, nil
}

func (h *HealthChecker) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	return status.Error(codes.Unimplemented, "watching is not supported")
}

// SetServingStatus sets the serving status of a service
func (h *HealthChecker) SetServingStatus(service string, st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[service] = st
	h.updateOverall()
}

// SetSeriesHealth records the outcome of the last sync of series.
func (h *HealthChecker) SetSeriesHealth(series models.Series, healthy bool) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if !healthy {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.SetServingStatus(series.String(), st)
}

// updateOverall must be called with mu held.
func (h *HealthChecker) updateOverall() {
	overall := grpc_health_v1.HealthCheckResponse_SERVING
	for service, st := range h.status {
		if service != "" && st != grpc_health_v1.HealthCheckResponse_SERVING {
			overall = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	h.status[""] = overall
}
