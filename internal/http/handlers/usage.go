package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/service"
)

// UsageHandler serves the desktop clients' quota endpoints. The
// clients identify themselves by account email in the request body, so
// these routes carry no bearer session.
type UsageHandler struct {
	usage  *service.UsageService
	logger *slog.Logger
}

func NewUsageHandler(usage *service.UsageService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{usage: usage, logger: logger}
}

// UsageInput identifies the account to check or charge.
type UsageInput struct {
	Body struct {
		Email string `json:"email" format:"email"`
	}
}

// UsageOutput is the account's quota position after the operation.
type UsageOutput struct {
	Body struct {
		AccountType   string    `json:"accountType"`
		ExpiresAt     time.Time `json:"expiresAt"`
		DailySearches int       `json:"dailySearches"`
		DailyExports  int       `json:"dailyExports"`
		SearchesUsed  int       `json:"searchesUsed"`
		ExportsUsed   int       `json:"exportsUsed"`
		SearchesLeft  int       `json:"searchesLeft"`
		ExportsLeft   int       `json:"exportsLeft"`
	}
}

func usageOutput(status *service.UsageStatus) *UsageOutput {
	out := &UsageOutput{}
	out.Body.AccountType = status.AccountType
	out.Body.ExpiresAt = status.ExpiresAt
	out.Body.DailySearches = status.DailySearches
	out.Body.DailyExports = status.DailyExports
	out.Body.SearchesUsed = status.SearchesUsed
	out.Body.ExportsUsed = status.ExportsUsed
	out.Body.SearchesLeft = status.SearchesLeft
	out.Body.ExportsLeft = status.ExportsLeft
	return out
}

// CheckUsage reports today's quota without consuming any of it.
func (h *UsageHandler) CheckUsage(ctx context.Context, input *UsageInput) (*UsageOutput, error) {
	status, err := h.usage.CheckUsage(ctx, input.Body.Email)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return usageOutput(status), nil
}

// RecordSearch consumes one search from today's quota.
func (h *UsageHandler) RecordSearch(ctx context.Context, input *UsageInput) (*UsageOutput, error) {
	status, err := h.usage.RecordSearch(ctx, input.Body.Email)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return usageOutput(status), nil
}

// RecordExport consumes one export from today's quota.
func (h *UsageHandler) RecordExport(ctx context.Context, input *UsageInput) (*UsageOutput, error) {
	status, err := h.usage.RecordExport(ctx, input.Body.Email)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return usageOutput(status), nil
}
