package server

import (
	"fmt"

	"github.com/sparks1372/octopus-consumption-exporter/internal/models"
)

const maxServiceNameLength = 64

// ServiceValidator checks health check service names against the known series.
type ServiceValidator struct {
	validServices map[string]bool
}

func NewServiceValidator() *ServiceValidator {
	valid := map[string]bool{"": true}
	for _, series := range models.AllSeries {
		valid[series.String()] = true
	}
	return &ServiceValidator{validServices: valid}
}

// Validate checks if the service name is one the health checker reports on
func (v *ServiceValidator) Validate(service string) error {
	if len(service) > maxServiceNameLength {
		return fmt.Errorf("service name too long")
	}
	if !v.validServices[service] {
		return fmt.Errorf("unknown service: %s", service)
	}
	return nil
}
