package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/gateway/alipay"
	"github.com/leadgrid/leadgrid-api/internal/models"
)

func settlementValues(orderID, amount string) url.Values {
	return url.Values{
		"out_trade_no": {orderID},
		"trade_status": {alipay.TradeSuccess},
		"total_amount": {amount},
		"trade_no":     {"2026083022001425461024"},
	}
}

func TestCreateAlipayOrder(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	session, err := env.services.Order.CreateAlipayOrder(ctx, "gmaps_standard", "34.30", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreateAlipayOrder() error = %v", err)
	}
	if session.QRCode == "" {
		t.Error("expected a QR code")
	}
	if session.Order.Status != models.OrderStatusPending {
		t.Errorf("order status = %s, want pending", session.Order.Status)
	}
	if !session.Order.Amount.Equal(decimal.RequireFromString("34.30")) {
		t.Errorf("order amount = %s, want 34.30", session.Order.Amount)
	}

	stored, err := env.repos.Order.GetByID(ctx, session.Order.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored == nil {
		t.Fatal("order was not persisted")
	}
	if stored.Provider != "alipay" {
		t.Errorf("provider = %s, want alipay", stored.Provider)
	}
}

func TestCreateAlipayOrder_PriceMismatch(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	_, err := env.services.Order.CreateAlipayOrder(ctx, "gmaps_standard", "0.01", "cheat@example.com", "")
	if !errors.Is(err, ErrPriceMismatch) {
		t.Fatalf("CreateAlipayOrder() error = %v, want ErrPriceMismatch", err)
	}

	orders, err := env.repos.Order.GetByEmail(ctx, "cheat@example.com", 10, 0)
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("tampered request created %d orders, want 0", len(orders))
	}
}

func TestCreateAlipayOrder_UnknownProduct(t *testing.T) {
	env := setupServices(t)

	_, err := env.services.Order.CreateAlipayOrder(context.Background(), "nope", "1.00", "a@example.com", "")
	if !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("CreateAlipayOrder() error = %v, want ErrInvalidProduct", err)
	}
}

func TestCreateAlipayOrder_GatewayDown(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	env.alipay.precreErr = errors.New("connection refused")

	_, err := env.services.Order.CreateAlipayOrder(ctx, "gmaps_standard", "34.30", "buyer@example.com", "")
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("CreateAlipayOrder() error = %v, want ErrGatewayUnavailable", err)
	}

	// The pending order stays for the cleanup sweep to expire.
	orders, err := env.repos.Order.GetByEmail(ctx, "buyer@example.com", 10, 0)
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if len(orders) != 1 || orders[0].Status != models.OrderStatusPending {
		t.Errorf("expected one pending order, got %d", len(orders))
	}
}

func TestCreateAlipayOrder_GatewayDisabled(t *testing.T) {
	env := setupServices(t)
	svc := NewOrderService(env.repos, env.services.Fulfillment, nil, nil, testLogger())

	_, err := svc.CreateAlipayOrder(context.Background(), "gmaps_standard", "34.30", "a@example.com", "")
	if !errors.Is(err, ErrGatewayDisabled) {
		t.Fatalf("CreateAlipayOrder() error = %v, want ErrGatewayDisabled", err)
	}
}

func TestHandleAlipayNotification_CompletesAndFulfills(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	session, err := env.services.Order.CreateAlipayOrder(ctx, "gmaps_standard", "34.30", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreateAlipayOrder() error = %v", err)
	}

	ack := env.services.Order.HandleAlipayNotification(ctx, settlementValues(session.Order.ID, "34.30"))
	if ack != alipay.AckSuccess {
		t.Fatalf("ack = %q, want %q", ack, alipay.AckSuccess)
	}

	order, _ := env.repos.Order.GetByID(ctx, session.Order.ID)
	if order.Status != models.OrderStatusCompleted {
		t.Errorf("order status = %s, want completed", order.Status)
	}
	if order.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	account, err := env.repos.Account.GetByEmail(ctx, "buyer@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if account == nil {
		t.Fatal("no account was provisioned")
	}
	if account.Type != constants.AccountTypeStandard {
		t.Errorf("account type = %s, want standard", account.Type)
	}
	if len(env.mailer.credentials) != 1 {
		t.Errorf("credential emails = %d, want 1", len(env.mailer.credentials))
	}
}

func TestHandleAlipayNotification_ReplayFulfillsOnce(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	session, err := env.services.Order.CreateAlipayOrder(ctx, "gmaps_standard", "34.30", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreateAlipayOrder() error = %v", err)
	}

	values := settlementValues(session.Order.ID, "34.30")
	for i := 0; i < 3; i++ {
		if ack := env.services.Order.HandleAlipayNotification(ctx, values); ack != alipay.AckSuccess {
			t.Fatalf("notification %d: ack = %q, want success", i, ack)
		}
	}

	if n := env.mailer.totalSent(); n != 1 {
		t.Errorf("emails sent = %d, want 1", n)
	}
}

func TestHandleAlipayNotification_BadSignature(t *testing.T) {
	env := setupServices(t)
	env.alipay.verifyErr = alipay.ErrSignatureInvalid

	ack := env.services.Order.HandleAlipayNotification(context.Background(), settlementValues("gs-1-x", "34.30"))
	if ack != alipay.AckFailure {
		t.Errorf("ack = %q, want %q", ack, alipay.AckFailure)
	}
}

func TestHandleAlipayNotification_UnknownOrder(t *testing.T) {
	env := setupServices(t)

	ack := env.services.Order.HandleAlipayNotification(context.Background(), settlementValues("gs-0-bm9ib2R5", "34.30"))
	if ack != alipay.AckFailure {
		t.Errorf("ack = %q, want %q", ack, alipay.AckFailure)
	}
}

func TestHandleAlipayNotification_NonSettlementStatus(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	session, err := env.services.Order.CreateAlipayOrder(ctx, "gmaps_standard", "34.30", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreateAlipayOrder() error = %v", err)
	}

	values := settlementValues(session.Order.ID, "34.30")
	values.Set("trade_status", alipay.TradeWaitPay)

	if ack := env.services.Order.HandleAlipayNotification(ctx, values); ack != alipay.AckSuccess {
		t.Errorf("ack = %q, want success", ack)
	}

	order, _ := env.repos.Order.GetByID(ctx, session.Order.ID)
	if order.Status != models.OrderStatusPending {
		t.Errorf("order status = %s, want pending", order.Status)
	}
}

func TestHandleAlipayNotification_AmountMismatch(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	session, err := env.services.Order.CreateAlipayOrder(ctx, "gmaps_standard", "34.30", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreateAlipayOrder() error = %v", err)
	}

	// Acknowledged so the gateway stops retrying, but never fulfilled.
	ack := env.services.Order.HandleAlipayNotification(ctx, settlementValues(session.Order.ID, "0.01"))
	if ack != alipay.AckSuccess {
		t.Errorf("ack = %q, want success", ack)
	}

	order, _ := env.repos.Order.GetByID(ctx, session.Order.ID)
	if order.Status != models.OrderStatusPending {
		t.Errorf("order status = %s, want pending", order.Status)
	}
	if n := env.mailer.totalSent(); n != 0 {
		t.Errorf("emails sent = %d, want 0", n)
	}
}

func TestCheckStatus_PendingUntilSettled(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	session, err := env.services.Order.CreateAlipayOrder(ctx, "gmaps_standard", "34.30", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreateAlipayOrder() error = %v", err)
	}

	status, err := env.services.Order.CheckStatus(ctx, session.Order.ID)
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if status != StatusPending {
		t.Errorf("status = %s, want pending", status)
	}

	env.alipay.queryStatus = alipay.TradeSuccess

	status, err = env.services.Order.CheckStatus(ctx, session.Order.ID)
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if status != StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}

	// The poller path fulfilled:
	account, _ := env.repos.Account.GetByEmail(ctx, "buyer@example.com")
	if account == nil {
		t.Fatal("poller settlement did not provision the account")
	}
}

func TestCheckStatus_NotFound(t *testing.T) {
	env := setupServices(t)

	status, err := env.services.Order.CheckStatus(context.Background(), "gs-0-bm9ib2R5")
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if status != StatusNotFound {
		t.Errorf("status = %s, want not_found", status)
	}
}

func TestCheckStatus_GatewayErrorLeavesOrderAlone(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	session, err := env.services.Order.CreateAlipayOrder(ctx, "gmaps_standard", "34.30", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreateAlipayOrder() error = %v", err)
	}

	env.alipay.queryErr = errors.New("gateway timeout")
	if _, err := env.services.Order.CheckStatus(ctx, session.Order.ID); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("CheckStatus() error = %v, want ErrGatewayUnavailable", err)
	}

	order, _ := env.repos.Order.GetByID(ctx, session.Order.ID)
	if order.Status != models.OrderStatusPending {
		t.Errorf("order status = %s, want pending", order.Status)
	}
}

func TestWebhookAndPollerRace_SingleFulfillment(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	session, err := env.services.Order.CreateAlipayOrder(ctx, "gmaps_standard", "34.30", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreateAlipayOrder() error = %v", err)
	}

	// Both paths hold the same pre-completion snapshot, as they would
	// mid-race; the conditional update decides the winner.
	stale, _ := env.repos.Order.GetByID(ctx, session.Order.ID)
	env.services.Order.completeAndFulfill(ctx, session.Order)
	env.services.Order.completeAndFulfill(ctx, stale)

	if n := env.mailer.totalSent(); n != 1 {
		t.Errorf("emails sent = %d, want exactly 1", n)
	}
}

func TestCreatePayPalOrder(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	session, err := env.services.Order.CreatePayPalOrder(ctx, "email_validator", "6.99", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreatePayPalOrder() error = %v", err)
	}
	if session.ApproveURL == "" {
		t.Error("expected an approval URL")
	}
	if session.Order.Currency != "USD" {
		t.Errorf("currency = %s, want USD", session.Order.Currency)
	}

	// The provider ref is on record for the capture path.
	order, err := env.repos.Order.GetByGatewayRef(ctx, "paypal", session.PayPalOrderID)
	if err != nil {
		t.Fatalf("GetByGatewayRef() error = %v", err)
	}
	if order == nil || order.ID != session.Order.ID {
		t.Error("gateway ref was not recorded")
	}
}

func TestCapturePayPalOrder(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	seedLicense(t, env, "KEY-CAPTURE-1")

	session, err := env.services.Order.CreatePayPalOrder(ctx, "email_validator", "6.99", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreatePayPalOrder() error = %v", err)
	}
	env.paypal.captureAmount = "6.99"

	status, err := env.services.Order.CapturePayPalOrder(ctx, session.PayPalOrderID)
	if err != nil {
		t.Fatalf("CapturePayPalOrder() error = %v", err)
	}
	if status != StatusCompleted {
		t.Errorf("status = %s, want completed", status)
	}

	if len(env.mailer.licenseKeys) != 1 || env.mailer.licenseKeys[0] != "KEY-CAPTURE-1" {
		t.Errorf("license keys delivered = %v, want [KEY-CAPTURE-1]", env.mailer.licenseKeys)
	}

	// Idempotent: a second capture reports completed without refulfilling.
	status, err = env.services.Order.CapturePayPalOrder(ctx, session.PayPalOrderID)
	if err != nil {
		t.Fatalf("second CapturePayPalOrder() error = %v", err)
	}
	if status != StatusCompleted {
		t.Errorf("second capture status = %s, want completed", status)
	}
	if n := env.mailer.totalSent(); n != 1 {
		t.Errorf("emails sent = %d, want 1", n)
	}
}

func TestCapturePayPalOrder_AmountMismatch(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	session, err := env.services.Order.CreatePayPalOrder(ctx, "email_validator", "6.99", "buyer@example.com", "")
	if err != nil {
		t.Fatalf("CreatePayPalOrder() error = %v", err)
	}
	env.paypal.captureAmount = "0.99"

	_, err = env.services.Order.CapturePayPalOrder(ctx, session.PayPalOrderID)
	if !errors.Is(err, ErrPriceMismatch) {
		t.Fatalf("CapturePayPalOrder() error = %v, want ErrPriceMismatch", err)
	}

	order, _ := env.repos.Order.GetByID(ctx, session.Order.ID)
	if order.Status != models.OrderStatusPending {
		t.Errorf("order status = %s, want pending", order.Status)
	}
}

func TestCreateRenewalOrder(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	seedAccount(t, env, "renew@example.com", constants.AccountTypeStandard, time.Now().UTC().AddDate(0, 0, 10))

	session, err := env.services.Order.CreateRenewalOrder(ctx, "gmaps_renewal_3m", "88.20", "renew@example.com", "")
	if err != nil {
		t.Fatalf("CreateRenewalOrder() error = %v", err)
	}
	if session.Order.RenewalPeriod != constants.RenewalQuarterly {
		t.Errorf("renewal period = %q, want quarterly", session.Order.RenewalPeriod)
	}
}

func TestCreateRenewalOrder_NoAccount(t *testing.T) {
	env := setupServices(t)

	_, err := env.services.Order.CreateRenewalOrder(context.Background(), "gmaps_renewal_1m", "34.30", "nobody@example.com", "")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("CreateRenewalOrder() error = %v, want ErrAccountNotFound", err)
	}
}

func TestCreateRenewalOrder_NotARenewalProduct(t *testing.T) {
	env := setupServices(t)

	_, err := env.services.Order.CreateRenewalOrder(context.Background(), "gmaps_standard", "34.30", "a@example.com", "")
	if !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("CreateRenewalOrder() error = %v, want ErrInvalidProduct", err)
	}
}

func seedLicense(t *testing.T, env *testEnv, key string) {
	t.Helper()
	err := env.repos.License.Restock(context.Background(), []*models.LicenseKey{{
		ID:        ulid.Make().String(),
		Key:       key,
		Family:    constants.FamilyValidator,
		ProductID: "email_validator",
		Status:    models.LicenseAvailable,
		CreatedAt: time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("failed to seed license key: %v", err)
	}
}

func seedAccount(t *testing.T, env *testEnv, email, accountType string, expiresAt time.Time) *models.Account {
	t.Helper()
	now := time.Now().UTC()
	account := &models.Account{
		ID:            ulid.Make().String(),
		Email:         email,
		Type:          accountType,
		Status:        models.AccountStatusActive,
		PasswordHash:  "$2a$10$seedseedseedseedseedse",
		ExpiresAt:     expiresAt,
		LastResetDate: now.Format("2006-01-02"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := env.repos.Account.Create(context.Background(), account); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return account
}
