package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/leadgrid/leadgrid-api/internal/config"
	"github.com/leadgrid/leadgrid-api/internal/models"
	"github.com/leadgrid/leadgrid-api/internal/repository"
)

// ResendWebhookHandler records email delivery events posted by Resend.
type ResendWebhookHandler struct {
	cfg    *config.Config
	events repository.EmailEventRepository
	logger *slog.Logger
}

func NewResendWebhookHandler(cfg *config.Config, events repository.EmailEventRepository, logger *slog.Logger) *ResendWebhookHandler {
	return &ResendWebhookHandler{cfg: cfg, events: events, logger: logger}
}

// ResendWebhookEvent is the envelope Resend posts for every email
// lifecycle event.
type ResendWebhookEvent struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		EmailID string   `json:"email_id"`
		To      []string `json:"to"`
	} `json:"data"`
}

func (h *ResendWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodySize = 65536 // 64KB

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	headers := http.Header{}
	headers.Set("svix-id", r.Header.Get("svix-id"))
	headers.Set("svix-timestamp", r.Header.Get("svix-timestamp"))
	headers.Set("svix-signature", r.Header.Get("svix-signature"))

	wh, err := svix.NewWebhook(h.cfg.ResendWebhookSecret)
	if err != nil {
		h.logger.Error("failed to create webhook verifier", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := wh.Verify(payload, headers); err != nil {
		h.logger.Error("failed to verify webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var event ResendWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("failed to parse webhook event", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if err := h.handleEvent(r.Context(), event); err != nil {
		h.logger.Error("failed to record email event", "type", event.Type, "error", err)
		// Return 200 to prevent retries for business logic errors
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *ResendWebhookHandler) handleEvent(ctx context.Context, event ResendWebhookEvent) error {
	h.logger.Info("received email event", "type", event.Type, "email_id", event.Data.EmailID)

	recipient := ""
	if len(event.Data.To) > 0 {
		recipient = event.Data.To[0]
	}
	return h.events.Create(ctx, &models.EmailEvent{
		ID:        ulid.Make().String(),
		EmailID:   event.Data.EmailID,
		Type:      event.Type,
		Recipient: recipient,
		CreatedAt: time.Now().UTC(),
	})
}
