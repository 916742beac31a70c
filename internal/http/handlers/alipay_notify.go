package handlers

import (
	"log/slog"
	"net/http"

	"github.com/leadgrid/leadgrid-api/internal/service"
)

// AlipayNotifyHandler receives Alipay's asynchronous settlement
// notifications. Alipay posts form-encoded bodies and retries until it
// reads a literal "success" back, so this stays a raw handler outside
// the typed API.
type AlipayNotifyHandler struct {
	orders *service.OrderService
	logger *slog.Logger
}

func NewAlipayNotifyHandler(orders *service.OrderService, logger *slog.Logger) *AlipayNotifyHandler {
	return &AlipayNotifyHandler{orders: orders, logger: logger}
}

func (h *AlipayNotifyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("unparseable alipay notification", "error", err)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("failure"))
		return
	}

	ack := h.orders.HandleAlipayNotification(r.Context(), r.PostForm)

	// Alipay only inspects the body, never the status code.
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ack))
}
