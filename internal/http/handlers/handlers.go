// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leadgrid/leadgrid-api/internal/service"
	"github.com/leadgrid/leadgrid-api/internal/version"
)

// HealthCheckOutput represents the health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Version
	return out, nil
}

// mapServiceError translates service sentinel errors into huma status
// errors. Unknown errors surface as 500 with a generic message so
// internals never leak to clients.
func mapServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidProduct),
		errors.Is(err, service.ErrPriceMismatch):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrAccountNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return huma.Error401Unauthorized(err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrQuotaExceeded):
		return huma.Error429TooManyRequests(err.Error())
	case errors.Is(err, service.ErrGatewayDisabled):
		return huma.Error503ServiceUnavailable("payment method not available")
	case errors.Is(err, service.ErrGatewayUnavailable),
		errors.Is(err, service.ErrNoLicenseAvailable):
		return huma.Error500InternalServerError("temporary failure, please retry")
	default:
		return huma.Error500InternalServerError("internal error")
	}
}
