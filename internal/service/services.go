// Package service implements the business workflows on top of the
// repository and gateway layers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/leadgrid/leadgrid-api/internal/config"
	"github.com/leadgrid/leadgrid-api/internal/gateway/alipay"
	"github.com/leadgrid/leadgrid-api/internal/gateway/paypal"
	"github.com/leadgrid/leadgrid-api/internal/mailer"
	"github.com/leadgrid/leadgrid-api/internal/repository"
)

// Sentinel errors mapped to HTTP statuses at the handler layer.
var (
	ErrInvalidProduct     = errors.New("invalid product")
	ErrPriceMismatch      = errors.New("price does not match product price")
	ErrOrderNotFound      = errors.New("order not found")
	ErrGatewayDisabled    = errors.New("payment gateway not configured")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrNoLicenseAvailable = errors.New("no license key available")
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrQuotaExceeded      = errors.New("daily quota exceeded")
)

// AlipayGateway is the slice of the Alipay client the order workflows
// use; the concrete client lives in internal/gateway/alipay.
type AlipayGateway interface {
	Precreate(ctx context.Context, outTradeNo, amount, subject string) (*alipay.PrecreateResult, error)
	QueryTrade(ctx context.Context, outTradeNo string) (*alipay.QueryResult, error)
	VerifyNotification(values url.Values) error
}

// PayPalGateway is the slice of the PayPal client the order workflows
// use.
type PayPalGateway interface {
	CreateOrder(ctx context.Context, internalID, amount, currency, description string) (*paypal.CreateResult, error)
	CaptureOrder(ctx context.Context, paypalOrderID string) (*paypal.CaptureResult, error)
	GetOrder(ctx context.Context, paypalOrderID string) (*paypal.CaptureResult, error)
}

// Services aggregates all service instances for handler wiring.
type Services struct {
	Order       *OrderService
	Fulfillment *FulfillmentService
	Referral    *ReferralService
	Account     *AccountService
	Usage       *UsageService
	Download    *DownloadService
	SecHeaders  *SecHeadersService
	Cleanup     *CleanupService
}

// NewServices wires the full service graph. Gateways may be nil when
// the corresponding provider is not configured; the order service then
// rejects requests for that provider with ErrGatewayDisabled.
func NewServices(cfg *config.Config, repos *repository.Repositories, mail mailer.Mailer, alipayGW AlipayGateway, paypalGW PayPalGateway, logger *slog.Logger) *Services {
	referral := NewReferralService(repos, logger)
	fulfillment := NewFulfillmentService(repos, mail, referral, logger)
	order := NewOrderService(repos, fulfillment, alipayGW, paypalGW, logger)

	return &Services{
		Order:       order,
		Fulfillment: fulfillment,
		Referral:    referral,
		Account:     NewAccountService(cfg, repos, mail, logger),
		Usage:       NewUsageService(repos, logger),
		Download:    NewDownloadService(cfg, logger),
		SecHeaders:  NewSecHeadersService(logger),
		Cleanup:     NewCleanupService(cfg, repos, logger),
	}
}
