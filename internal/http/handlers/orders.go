package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/service"
)

// OrderHandler exposes the payment and order-status endpoints.
type OrderHandler struct {
	orders *service.OrderService
	logger *slog.Logger
}

func NewOrderHandler(orders *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

// CreatePaymentInput is the Alipay QR checkout request.
type CreatePaymentInput struct {
	Body struct {
		ProductID    string `json:"productId" minLength:"1" doc:"Catalog product identifier"`
		Price        string `json:"price" minLength:"1" doc:"Displayed price; must match the server price table"`
		Email        string `json:"email" format:"email" doc:"Customer email for delivery"`
		ReferralCode string `json:"referralCode,omitempty" doc:"Optional promotion code"`
	}
}

// CreatePaymentOutput carries what the QR checkout page renders.
type CreatePaymentOutput struct {
	Body struct {
		OutTradeNo string `json:"outTradeNo" doc:"Order identifier, used for status polling"`
		QRCodeURL  string `json:"qrCodeUrl" doc:"Alipay QR payload to render"`
	}
}

// CreatePayment opens an Alipay QR payment session.
func (h *OrderHandler) CreatePayment(ctx context.Context, input *CreatePaymentInput) (*CreatePaymentOutput, error) {
	session, err := h.orders.CreateAlipayOrder(ctx, input.Body.ProductID, input.Body.Price, input.Body.Email, input.Body.ReferralCode)
	if err != nil {
		return nil, mapServiceError(err)
	}

	out := &CreatePaymentOutput{}
	out.Body.OutTradeNo = session.Order.ID
	out.Body.QRCodeURL = session.QRCode
	return out, nil
}

// CreateRenewalInput mirrors CreatePaymentInput for renewal products.
type CreateRenewalInput struct {
	Body struct {
		ProductID    string `json:"productId" minLength:"1" doc:"Renewal product identifier"`
		Price        string `json:"price" minLength:"1"`
		Email        string `json:"email" format:"email" doc:"Email of the account being renewed"`
		ReferralCode string `json:"referralCode,omitempty"`
	}
}

// CreateRenewalOrder opens an Alipay session for a renewal product; the
// account must already exist.
func (h *OrderHandler) CreateRenewalOrder(ctx context.Context, input *CreateRenewalInput) (*CreatePaymentOutput, error) {
	session, err := h.orders.CreateRenewalOrder(ctx, input.Body.ProductID, input.Body.Price, input.Body.Email, input.Body.ReferralCode)
	if err != nil {
		return nil, mapServiceError(err)
	}

	out := &CreatePaymentOutput{}
	out.Body.OutTradeNo = session.Order.ID
	out.Body.QRCodeURL = session.QRCode
	return out, nil
}

// CheckStatusInput is the polling request.
type CheckStatusInput struct {
	OutTradeNo string `query:"outTradeNo" required:"true" doc:"Order identifier returned at creation"`
}

// CheckStatusOutput is the polling response.
type CheckStatusOutput struct {
	Body struct {
		Status string `json:"status" enum:"completed,pending,expired,not_found"`
	}
}

// CheckStatus reports an order's settlement state, reconciling against
// the gateway when the webhook has not arrived yet.
func (h *OrderHandler) CheckStatus(ctx context.Context, input *CheckStatusInput) (*CheckStatusOutput, error) {
	status, err := h.orders.CheckStatus(ctx, input.OutTradeNo)
	if err != nil {
		return nil, mapServiceError(err)
	}
	out := &CheckStatusOutput{}
	out.Body.Status = status
	return out, nil
}

// CheckPaymentStatusInput is the POST-body variant used by the renewal
// flow on the website.
type CheckPaymentStatusInput struct {
	Body struct {
		OutTradeNo string `json:"outTradeNo" minLength:"1"`
	}
}

// CheckPaymentStatus is CheckStatus for clients that POST the order ID.
func (h *OrderHandler) CheckPaymentStatus(ctx context.Context, input *CheckPaymentStatusInput) (*CheckStatusOutput, error) {
	status, err := h.orders.CheckStatus(ctx, input.Body.OutTradeNo)
	if err != nil {
		return nil, mapServiceError(err)
	}
	out := &CheckStatusOutput{}
	out.Body.Status = status
	return out, nil
}

// PayPalCreateInput is the PayPal checkout request.
type PayPalCreateInput struct {
	Body struct {
		ProductID    string `json:"productId" minLength:"1"`
		Price        string `json:"price" minLength:"1" doc:"USD price; must match the server price table"`
		Email        string `json:"email" format:"email"`
		ReferralCode string `json:"referralCode,omitempty"`
	}
}

// PayPalCreateOutput returns the approval redirect.
type PayPalCreateOutput struct {
	Body struct {
		OrderID    string `json:"orderId" doc:"PayPal order identifier"`
		OutTradeNo string `json:"outTradeNo" doc:"Internal order identifier"`
		ApproveURL string `json:"approveUrl" doc:"Redirect target for buyer approval"`
	}
}

// CreatePayPalOrder opens a PayPal order in USD.
func (h *OrderHandler) CreatePayPalOrder(ctx context.Context, input *PayPalCreateInput) (*PayPalCreateOutput, error) {
	session, err := h.orders.CreatePayPalOrder(ctx, input.Body.ProductID, input.Body.Price, input.Body.Email, input.Body.ReferralCode)
	if err != nil {
		return nil, mapServiceError(err)
	}

	out := &PayPalCreateOutput{}
	out.Body.OrderID = session.PayPalOrderID
	out.Body.OutTradeNo = session.Order.ID
	out.Body.ApproveURL = session.ApproveURL
	return out, nil
}

// PayPalCaptureInput identifies the approved PayPal order.
type PayPalCaptureInput struct {
	Body struct {
		OrderID string `json:"orderId" minLength:"1" doc:"PayPal order identifier from creation"`
	}
}

// CapturePayPalOrder captures an approved order and fulfills on
// completion.
func (h *OrderHandler) CapturePayPalOrder(ctx context.Context, input *PayPalCaptureInput) (*CheckStatusOutput, error) {
	status, err := h.orders.CapturePayPalOrder(ctx, input.Body.OrderID)
	if err != nil {
		return nil, mapServiceError(err)
	}
	out := &CheckStatusOutput{}
	out.Body.Status = status
	return out, nil
}

// orderSummary is the client-safe order projection.
type orderSummary struct {
	ID          string     `json:"id"`
	ProductID   string     `json:"product_id"`
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	Provider    string     `json:"provider"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
