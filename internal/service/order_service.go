package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/gateway/alipay"
	"github.com/leadgrid/leadgrid-api/internal/gateway/paypal"
	"github.com/leadgrid/leadgrid-api/internal/models"
	"github.com/leadgrid/leadgrid-api/internal/repository"
)

// Order status words returned to polling clients.
const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusExpired   = "expired"
	StatusNotFound  = "not_found"
)

// OrderService owns the order lifecycle: creation against the price
// table, the asynchronous notification path, the polling path, and the
// PayPal create/capture pair. The two completion paths race freely; the
// conditional status update in the order repository decides the winner.
type OrderService struct {
	repos       *repository.Repositories
	fulfillment *FulfillmentService
	alipay      AlipayGateway
	paypal      PayPalGateway
	logger      *slog.Logger
}

func NewOrderService(repos *repository.Repositories, fulfillment *FulfillmentService, alipayGW AlipayGateway, paypalGW PayPalGateway, logger *slog.Logger) *OrderService {
	return &OrderService{
		repos:       repos,
		fulfillment: fulfillment,
		alipay:      alipayGW,
		paypal:      paypalGW,
		logger:      logger,
	}
}

// AlipaySession is what the QR checkout page needs.
type AlipaySession struct {
	Order  *models.Order
	QRCode string
}

// CreateAlipayOrder validates the client-submitted price against the
// catalog, persists a pending order, and opens a QR payment session.
// The client-supplied price is never trusted: a mismatch is rejected
// and logged as potential tampering.
func (s *OrderService) CreateAlipayOrder(ctx context.Context, productID, price, email, referralCode string) (*AlipaySession, error) {
	if s.alipay == nil {
		return nil, fmt.Errorf("%w: alipay", ErrGatewayDisabled)
	}

	product, amount, err := s.validatePrice(productID, price, "CNY")
	if err != nil {
		return nil, err
	}

	order, err := s.createOrder(ctx, product, amount, "CNY", email, referralCode, "alipay")
	if err != nil {
		return nil, err
	}

	result, err := s.alipay.Precreate(ctx, order.ID, amount.StringFixed(2), product.Name)
	if err != nil {
		// The pending order stays; the cleanup sweep expires it if the
		// customer never retries.
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	return &AlipaySession{Order: order, QRCode: result.QRCode}, nil
}

// CreateRenewalOrder is the renewal-specific variant: the product must
// be a renewal and an account must already exist for the email.
func (s *OrderService) CreateRenewalOrder(ctx context.Context, productID, price, email, referralCode string) (*AlipaySession, error) {
	product, ok := constants.GetProduct(productID)
	if !ok || product.Kind != constants.KindRenewal {
		return nil, fmt.Errorf("%w: %s is not a renewal product", ErrInvalidProduct, productID)
	}

	account, err := s.repos.Account.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, email)
	}

	return s.CreateAlipayOrder(ctx, productID, price, email, referralCode)
}

// PayPalSession is what the PayPal checkout flow needs.
type PayPalSession struct {
	Order         *models.Order
	PayPalOrderID string
	ApproveURL    string
}

// CreatePayPalOrder opens a PayPal order in USD and records the
// provider reference so the capture and webhook paths can find it.
func (s *OrderService) CreatePayPalOrder(ctx context.Context, productID, price, email, referralCode string) (*PayPalSession, error) {
	if s.paypal == nil {
		return nil, fmt.Errorf("%w: paypal", ErrGatewayDisabled)
	}

	product, amount, err := s.validatePrice(productID, price, "USD")
	if err != nil {
		return nil, err
	}

	order, err := s.createOrder(ctx, product, amount, "USD", email, referralCode, "paypal")
	if err != nil {
		return nil, err
	}

	result, err := s.paypal.CreateOrder(ctx, order.ID, amount.StringFixed(2), "USD", product.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if err := s.repos.Order.SetGatewayRef(ctx, order.ID, result.OrderID); err != nil {
		return nil, fmt.Errorf("record gateway ref: %w", err)
	}

	return &PayPalSession{
		Order:         order,
		PayPalOrderID: result.OrderID,
		ApproveURL:    result.ApproveURL,
	}, nil
}

// CapturePayPalOrder captures an approved PayPal order and, on
// completion, runs the same claim-then-fulfill sequence as the other
// completion paths.
func (s *OrderService) CapturePayPalOrder(ctx context.Context, paypalOrderID string) (string, error) {
	if s.paypal == nil {
		return "", fmt.Errorf("%w: paypal", ErrGatewayDisabled)
	}

	order, err := s.repos.Order.GetByGatewayRef(ctx, "paypal", paypalOrderID)
	if err != nil {
		return "", fmt.Errorf("look up order: %w", err)
	}
	if order == nil {
		return "", fmt.Errorf("%w: paypal ref %s", ErrOrderNotFound, paypalOrderID)
	}
	if order.Status == models.OrderStatusCompleted || order.Status == models.OrderStatusUnfulfilled {
		return StatusCompleted, nil
	}

	result, err := s.paypal.CaptureOrder(ctx, paypalOrderID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if result.Status != paypal.StatusCompleted {
		return StatusPending, nil
	}

	// Settlement amount comes from the capture, never from the client.
	if result.Amount != "" {
		if captured, err := decimal.NewFromString(result.Amount); err == nil && !captured.Equal(order.Amount) {
			s.logger.Error("captured amount differs from order amount",
				"order_id", order.ID, "captured", result.Amount, "expected", order.Amount.String())
			return "", fmt.Errorf("%w: amount mismatch", ErrPriceMismatch)
		}
	}

	s.completeAndFulfill(ctx, order)
	return StatusCompleted, nil
}

// HandleAlipayNotification processes one async settlement notification
// and returns the literal acknowledgment token the gateway expects.
// The returned token is the whole contract: "failure" makes the gateway
// retry later, "success" stops redundant retries.
func (s *OrderService) HandleAlipayNotification(ctx context.Context, values url.Values) string {
	if s.alipay == nil {
		return alipay.AckFailure
	}

	if err := s.alipay.VerifyNotification(values); err != nil {
		s.logger.Warn("alipay notification failed signature check", "error", err)
		return alipay.AckFailure
	}

	tradeStatus := values.Get("trade_status")
	outTradeNo := values.Get("out_trade_no")

	if tradeStatus != alipay.TradeSuccess && tradeStatus != alipay.TradeFinished {
		// Not a settlement; acknowledge so the gateway stops resending.
		return alipay.AckSuccess
	}

	order, err := s.repos.Order.GetByID(ctx, outTradeNo)
	if err != nil {
		s.logger.Error("order lookup failed during notification", "out_trade_no", outTradeNo, "error", err)
		return alipay.AckFailure
	}
	if order == nil {
		// A signed notification for an order this system never created.
		s.logger.Error("alipay notification for unknown order", "out_trade_no", outTradeNo)
		return alipay.AckFailure
	}

	if order.Status == models.OrderStatusCompleted || order.Status == models.OrderStatusUnfulfilled {
		// The poller won the race; nothing left to do.
		return alipay.AckSuccess
	}

	if paid := values.Get("total_amount"); paid != "" {
		amount, err := decimal.NewFromString(paid)
		if err != nil || !amount.Equal(order.Amount) {
			// Money mismatch cannot be fixed by a gateway retry. Stop
			// the retries and leave the order for the operator.
			s.logger.Error("alipay notification amount mismatch",
				"order_id", order.ID, "paid", paid, "expected", order.Amount.String())
			return alipay.AckSuccess
		}
	}

	s.completeAndFulfill(ctx, order)
	return alipay.AckSuccess
}

// CheckStatus answers "is my order done yet". When the gateway already
// settled but the notification has not arrived, this path performs the
// completion itself; product metadata is re-derived from the stored
// order, never from anything the gateway echoes back.
func (s *OrderService) CheckStatus(ctx context.Context, orderID string) (string, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("look up order: %w", err)
	}
	if order == nil {
		return StatusNotFound, nil
	}

	switch order.Status {
	case models.OrderStatusCompleted, models.OrderStatusUnfulfilled:
		return StatusCompleted, nil
	case models.OrderStatusExpired:
		return StatusExpired, nil
	}

	settled, err := s.querySettled(ctx, order)
	if err != nil {
		return "", err
	}
	if !settled {
		return StatusPending, nil
	}

	s.completeAndFulfill(ctx, order)
	return StatusCompleted, nil
}

// querySettled asks the order's own gateway whether the payment went
// through. Gateway trouble surfaces as ErrGatewayUnavailable without
// touching order state, so the next poll can retry.
func (s *OrderService) querySettled(ctx context.Context, order *models.Order) (bool, error) {
	switch order.Provider {
	case "alipay":
		if s.alipay == nil {
			return false, fmt.Errorf("%w: alipay", ErrGatewayDisabled)
		}
		result, err := s.alipay.QueryTrade(ctx, order.ID)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return result.TradeStatus == alipay.TradeSuccess || result.TradeStatus == alipay.TradeFinished, nil
	case "paypal":
		if s.paypal == nil {
			return false, fmt.Errorf("%w: paypal", ErrGatewayDisabled)
		}
		if order.GatewayRef == "" {
			return false, nil
		}
		result, err := s.paypal.GetOrder(ctx, order.GatewayRef)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return result.Status == paypal.StatusCompleted, nil
	}
	return false, fmt.Errorf("unknown provider %q on order %s", order.Provider, order.ID)
}

// completeAndFulfill is the single completion sequence shared by every
// path (webhook, poller, capture). The conditional pending->completed
// update is the claim: exactly one caller wins it, and only the winner
// fulfills. Fulfillment failure downgrades the order to the
// operator-reconciliation state instead of pretending it was delivered.
func (s *OrderService) completeAndFulfill(ctx context.Context, order *models.Order) {
	claimed, err := s.repos.Order.MarkCompleted(ctx, order.ID, time.Now().UTC())
	if err != nil {
		s.logger.Error("completion claim failed", "order_id", order.ID, "error", err)
		return
	}
	if !claimed {
		// Lost the race: the other path fulfills.
		return
	}

	order.Status = models.OrderStatusCompleted

	if err := s.fulfillment.Fulfill(ctx, order); err != nil {
		s.logger.Error("fulfillment failed, order needs operator attention",
			"order_id", order.ID,
			"product_id", order.ProductID,
			"error", err,
		)
		if markErr := s.repos.Order.MarkUnfulfilled(ctx, order.ID); markErr != nil {
			s.logger.Error("failed to flag unfulfilled order", "order_id", order.ID, "error", markErr)
		}
		return
	}

	s.logger.Info("order fulfilled",
		"order_id", order.ID,
		"product_id", order.ProductID,
		"provider", order.Provider,
	)
}

// ListUnfulfilled exposes the operator-reconciliation queue.
func (s *OrderService) ListUnfulfilled(ctx context.Context, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repos.Order.ListUnfulfilled(ctx, limit)
}

// ListByEmail returns a customer's order history, newest first.
func (s *OrderService) ListByEmail(ctx context.Context, email string, limit, offset int) ([]*models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repos.Order.GetByEmail(ctx, email, limit, offset)
}

// validatePrice resolves the product and checks the client-supplied
// price against the catalog.
func (s *OrderService) validatePrice(productID, price, currency string) (constants.Product, decimal.Decimal, error) {
	product, ok := constants.GetProduct(productID)
	if !ok {
		return constants.Product{}, decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidProduct, productID)
	}
	authoritative, ok := constants.PriceFor(productID, currency)
	if !ok {
		return constants.Product{}, decimal.Zero, fmt.Errorf("%w: %s has no %s price", ErrInvalidProduct, productID, currency)
	}
	submitted, err := decimal.NewFromString(price)
	if err != nil || !submitted.Equal(authoritative) {
		s.logger.Warn("price mismatch on order creation",
			"product_id", productID, "submitted", price, "expected", authoritative.String())
		return constants.Product{}, decimal.Zero, ErrPriceMismatch
	}
	return product, authoritative, nil
}

func (s *OrderService) createOrder(ctx context.Context, product constants.Product, amount decimal.Decimal, currency, email, referralCode, provider string) (*models.Order, error) {
	now := time.Now().UTC()
	order := &models.Order{
		ID:            models.NewOrderID(product.OrderCode, now, email),
		ProductID:     product.ID,
		Email:         email,
		Amount:        amount,
		Currency:      currency,
		Status:        models.OrderStatusPending,
		Provider:      provider,
		ReferralCode:  referralCode,
		RenewalPeriod: product.Renewal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if referralCode != "" {
		if parsed, err := models.ParseReferralCode(referralCode); err == nil {
			order.AgentCode = parsed.AgentCode
		}
	}

	if err := s.repos.Order.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

// GetOrder fetches one order.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}
