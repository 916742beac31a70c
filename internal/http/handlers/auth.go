package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/http/mw"
	"github.com/leadgrid/leadgrid-api/internal/service"
)

// AuthHandler exposes website registration, login, and the password
// reset flow.
type AuthHandler struct {
	accounts *service.AccountService
	orders   *service.OrderService
	logger   *slog.Logger
}

func NewAuthHandler(accounts *service.AccountService, orders *service.OrderService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, orders: orders, logger: logger}
}

// CredentialsInput carries email and password.
type CredentialsInput struct {
	Body struct {
		Email    string `json:"email" format:"email"`
		Password string `json:"password" minLength:"8"`
	}
}

// SessionOutput is the issued bearer token.
type SessionOutput struct {
	Body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
		Email     string    `json:"email"`
	}
}

func sessionOutput(s *service.Session) *SessionOutput {
	out := &SessionOutput{}
	out.Body.Token = s.Token
	out.Body.ExpiresAt = s.ExpiresAt
	out.Body.Email = s.Email
	return out
}

// Register creates a website account.
func (h *AuthHandler) Register(ctx context.Context, input *CredentialsInput) (*SessionOutput, error) {
	session, err := h.accounts.Register(ctx, input.Body.Email, input.Body.Password)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return sessionOutput(session), nil
}

// Login verifies credentials and issues a session.
func (h *AuthHandler) Login(ctx context.Context, input *CredentialsInput) (*SessionOutput, error) {
	session, err := h.accounts.Login(ctx, input.Body.Email, input.Body.Password)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return sessionOutput(session), nil
}

// VerifyTokenInput carries the token to check.
type VerifyTokenInput struct {
	Body struct {
		Token string `json:"token" minLength:"1"`
	}
}

// VerifyTokenOutput reports token validity.
type VerifyTokenOutput struct {
	Body struct {
		Valid bool   `json:"valid"`
		Email string `json:"email,omitempty"`
	}
}

// VerifyToken checks a session token without requiring the bearer
// header. Invalid tokens report valid=false rather than erroring: the
// website uses this to decide whether to show the login form.
func (h *AuthHandler) VerifyToken(ctx context.Context, input *VerifyTokenInput) (*VerifyTokenOutput, error) {
	out := &VerifyTokenOutput{}
	claims, err := h.accounts.VerifyToken(input.Body.Token)
	if err != nil {
		return out, nil
	}
	out.Body.Valid = true
	out.Body.Email = claims.Email
	return out, nil
}

// ForgotPasswordInput identifies the account.
type ForgotPasswordInput struct {
	Body struct {
		Email string `json:"email" format:"email"`
	}
}

// MessageOutput is a generic acknowledgment body.
type MessageOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// ForgotPassword opens a reset token and emails the link. Always
// acknowledges, so the endpoint cannot reveal which emails exist.
func (h *AuthHandler) ForgotPassword(ctx context.Context, input *ForgotPasswordInput) (*MessageOutput, error) {
	if err := h.accounts.RequestPasswordReset(ctx, input.Body.Email); err != nil {
		h.logger.Error("password reset request failed", "error", err)
	}
	out := &MessageOutput{}
	out.Body.Message = "if the address is registered, a reset link is on its way"
	return out, nil
}

// ResetPasswordInput carries the emailed token and the new password.
type ResetPasswordInput struct {
	Body struct {
		Token    string `json:"token" minLength:"1"`
		Password string `json:"password" minLength:"8"`
	}
}

// ResetPassword consumes a reset token.
func (h *AuthHandler) ResetPassword(ctx context.Context, input *ResetPasswordInput) (*MessageOutput, error) {
	if err := h.accounts.ResetPassword(ctx, input.Body.Token, input.Body.Password); err != nil {
		return nil, mapServiceError(err)
	}
	out := &MessageOutput{}
	out.Body.Message = "password updated"
	return out, nil
}

// ListOrdersInput pages through the caller's own orders.
type ListOrdersInput struct {
	Limit  int `query:"limit" default:"20" minimum:"1" maximum:"100"`
	Offset int `query:"offset" default:"0" minimum:"0"`
}

// ListOrdersOutput is the caller's purchase history.
type ListOrdersOutput struct {
	Body struct {
		Orders []orderSummary `json:"orders"`
	}
}

// ListOrders returns the authenticated user's purchase history.
func (h *AuthHandler) ListOrders(ctx context.Context, input *ListOrdersInput) (*ListOrdersOutput, error) {
	claims := mw.GetSession(ctx)
	if claims == nil {
		return nil, mapServiceError(service.ErrInvalidToken)
	}

	orders, err := h.orders.ListByEmail(ctx, claims.Email, input.Limit, input.Offset)
	if err != nil {
		h.logger.Error("order history lookup failed", "error", err)
		return nil, mapServiceError(err)
	}

	out := &ListOrdersOutput{}
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
