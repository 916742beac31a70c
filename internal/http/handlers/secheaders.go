package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leadgrid/leadgrid-api/internal/service"
)

// SecHeadersHandler exposes the website's security-headers checker
// tool.
type SecHeadersHandler struct {
	secheaders *service.SecHeadersService
	logger     *slog.Logger
}

func NewSecHeadersHandler(secheaders *service.SecHeadersService, logger *slog.Logger) *SecHeadersHandler {
	return &SecHeadersHandler{secheaders: secheaders, logger: logger}
}

// CheckHeadersInput names the site to inspect.
type CheckHeadersInput struct {
	Body struct {
		URL string `json:"url" minLength:"1" doc:"Site to check, scheme optional (https assumed)"`
	}
}

// CheckHeadersOutput is the per-header presence report.
type CheckHeadersOutput struct {
	Body service.SecHeadersReport
}

// CheckHeaders fetches the target and reports which of the common
// security response headers it sets.
func (h *SecHeadersHandler) CheckHeaders(ctx context.Context, input *CheckHeadersInput) (*CheckHeadersOutput, error) {
	report, err := h.secheaders.Check(ctx, input.Body.URL)
	if err != nil {
		h.logger.Info("header check failed", "url", input.Body.URL, "error", err)
		return nil, huma.Error400BadRequest("could not check that URL")
	}
	return &CheckHeadersOutput{Body: *report}, nil
}
