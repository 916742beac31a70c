package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/leadgrid/leadgrid-api/internal/config"
	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/models"
	"github.com/leadgrid/leadgrid-api/internal/repository"
	"github.com/leadgrid/leadgrid-api/internal/service"
)

// AdminHandler is the operator surface: license restocking, the
// unfulfilled-order queue, pool levels, and email delivery lookups.
// Every operation requires the X-Admin-Key header.
type AdminHandler struct {
	cfg      *config.Config
	orders   *service.OrderService
	licenses repository.LicenseRepository
	events   repository.EmailEventRepository
	logger   *slog.Logger
}

func NewAdminHandler(cfg *config.Config, orders *service.OrderService, licenses repository.LicenseRepository, events repository.EmailEventRepository, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{cfg: cfg, orders: orders, licenses: licenses, events: events, logger: logger}
}

func (h *AdminHandler) authorize(key string) error {
	if !h.cfg.VerifyAdminKey(key) {
		return huma.Error401Unauthorized("invalid admin key")
	}
	return nil
}

// RestockInput adds license keys to a family's pool.
type RestockInput struct {
	AdminKey string `header:"X-Admin-Key" required:"true"`
	Body     struct {
		Family    string   `json:"family" enum:"scraper,validator,finder"`
		ProductID string   `json:"product_id"`
		Keys      []string `json:"keys" minItems:"1"`
	}
}

// RestockOutput reports how many keys were added.
type RestockOutput struct {
	Body struct {
		Added int `json:"added"`
	}
}

// RestockLicenses loads new keys into the pool.
func (h *AdminHandler) RestockLicenses(ctx context.Context, input *RestockInput) (*RestockOutput, error) {
	if err := h.authorize(input.AdminKey); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	keys := make([]*models.LicenseKey, 0, len(input.Body.Keys))
	for _, k := range input.Body.Keys {
		if k == "" {
			continue
		}
		keys = append(keys, &models.LicenseKey{
			ID:        ulid.Make().String(),
			Key:       k,
			Family:    constants.ProductFamily(input.Body.Family),
			ProductID: input.Body.ProductID,
			Status:    models.LicenseAvailable,
			CreatedAt: now,
		})
	}
	if len(keys) == 0 {
		return nil, huma.Error400BadRequest("no keys supplied")
	}
	if err := h.licenses.Restock(ctx, keys); err != nil {
		h.logger.Error("license restock failed", "family", input.Body.Family, "error", err)
		return nil, huma.Error500InternalServerError("restock failed")
	}
	h.logger.Info("licenses restocked", "family", input.Body.Family, "count", len(keys))

	out := &RestockOutput{}
	out.Body.Added = len(keys)
	return out, nil
}

// UnfulfilledOrdersInput pages the reconciliation queue.
type UnfulfilledOrdersInput struct {
	AdminKey string `header:"X-Admin-Key" required:"true"`
	Limit    int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
}

// UnfulfilledOrdersOutput lists paid orders whose provisioning failed.
type UnfulfilledOrdersOutput struct {
	Body struct {
		Orders []orderSummary `json:"orders"`
	}
}

// UnfulfilledOrders returns paid orders that still need manual
// provisioning.
func (h *AdminHandler) UnfulfilledOrders(ctx context.Context, input *UnfulfilledOrdersInput) (*UnfulfilledOrdersOutput, error) {
	if err := h.authorize(input.AdminKey); err != nil {
		return nil, err
	}

	orders, err := h.orders.ListUnfulfilled(ctx, input.Limit)
	if err != nil {
		h.logger.Error("unfulfilled order list failed", "error", err)
		return nil, huma.Error500InternalServerError("lookup failed")
	}

	out := &UnfulfilledOrdersOutput{}
	out.Body.Orders = make([]orderSummary, 0, len(orders))
	for _, o := range orders {
		out.Body.Orders = append(out.Body.Orders, orderSummary{
			ID:          o.ID,
			ProductID:   o.ProductID,
			Amount:      o.Amount.String(),
			Currency:    o.Currency,
			Status:      string(o.Status),
			Provider:    o.Provider,
			CompletedAt: o.CompletedAt,
			CreatedAt:   o.CreatedAt,
		})
	}
	return out, nil
}

// LicensePoolInput requests pool levels.
type LicensePoolInput struct {
	AdminKey string `header:"X-Admin-Key" required:"true"`
}

// LicensePoolOutput reports available keys per product.
type LicensePoolOutput struct {
	Body struct {
		Available map[string]int `json:"available"`
	}
}

// LicensePool reports how many unclaimed keys each key-fulfilled
// product has left. Pools are per product, so each validator shows up
// as its own line.
func (h *AdminHandler) LicensePool(ctx context.Context, input *LicensePoolInput) (*LicensePoolOutput, error) {
	if err := h.authorize(input.AdminKey); err != nil {
		return nil, err
	}

	out := &LicensePoolOutput{}
	out.Body.Available = make(map[string]int)
	for _, p := range constants.AllProducts() {
		if p.Family != constants.FamilyValidator {
			continue
		}
		n, err := h.licenses.CountAvailable(ctx, p.ID)
		if err != nil {
			h.logger.Error("license count failed", "product_id", p.ID, "error", err)
			return nil, huma.Error500InternalServerError("lookup failed")
		}
		out.Body.Available[p.ID] = n
	}
	return out, nil
}

// EmailEventsInput looks up delivery events for one recipient.
type EmailEventsInput struct {
	AdminKey  string `header:"X-Admin-Key" required:"true"`
	Recipient string `query:"recipient" required:"true" format:"email"`
	Limit     int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
}

// EmailEventsOutput lists what the email provider reported for the
// recipient, newest first.
type EmailEventsOutput struct {
	Body struct {
		Events []emailEventSummary `json:"events"`
	}
}

type emailEventSummary struct {
	EmailID   string    `json:"email_id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// EmailEvents answers "did the customer's email actually arrive" when
// investigating a delivery complaint or an unfulfilled order.
func (h *AdminHandler) EmailEvents(ctx context.Context, input *EmailEventsInput) (*EmailEventsOutput, error) {
	if err := h.authorize(input.AdminKey); err != nil {
		return nil, err
	}

	events, err := h.events.GetByRecipient(ctx, input.Recipient, input.Limit)
	if err != nil {
		h.logger.Error("email event lookup failed", "recipient", input.Recipient, "error", err)
		return nil, huma.Error500InternalServerError("lookup failed")
	}

	out := &EmailEventsOutput{}
	out.Body.Events = make([]emailEventSummary, 0, len(events))
	for _, ev := range events {
		out.Body.Events = append(out.Body.Events, emailEventSummary{
			EmailID:   ev.EmailID,
			Type:      ev.Type,
			CreatedAt: ev.CreatedAt,
		})
	}
	return out, nil
}
