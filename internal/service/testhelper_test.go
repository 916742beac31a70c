package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/config"
	"github.com/leadgrid/leadgrid-api/internal/database/migrations"
	"github.com/leadgrid/leadgrid-api/internal/gateway/alipay"
	"github.com/leadgrid/leadgrid-api/internal/gateway/paypal"
	"github.com/leadgrid/leadgrid-api/internal/repository"
	_ "github.com/tursodatabase/go-libsql"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// testEnv bundles a full service graph over an in-memory database with
// fake gateways and a recording mailer.
type testEnv struct {
	services *Services
	repos    *repository.Repositories
	db       *sql.DB
	mailer   *fakeMailer
	alipay   *fakeAlipay
	paypal   *fakePayPal
}

func setupServices(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Every pooled connection to ":memory:" opens its own empty
	// database, so keep the pool at a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	cfg := &config.Config{
		BaseURL:         "https://shop.test",
		JWTSecret:       "test-secret-key",
		JWTExpiry:       time.Hour,
		PendingOrderTTL: 2 * time.Hour,
		CleanupInterval: time.Hour,
	}

	repos := repository.NewRepositories(db)
	mail := &fakeMailer{}
	ali := &fakeAlipay{qrCode: "https://qr.alipay.test/abc"}
	pp := &fakePayPal{}
	return &testEnv{
		services: NewServices(cfg, repos, mail, ali, pp, testLogger()),
		repos:    repos,
		db:       db,
		mailer:   mail,
		alipay:   ali,
		paypal:   pp,
	}
}

// fakeMailer records every delivery. Safe for concurrent use.
type fakeMailer struct {
	mu          sync.Mutex
	credentials []string // recipient emails for credential mails
	renewals    []string
	licenseKeys []string // the keys delivered
	resetURLs   []string
	failNext    error
}

func (m *fakeMailer) take() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *fakeMailer) SendAccountCredentials(_ context.Context, to, _, _ string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.take(); err != nil {
		return err
	}
	m.credentials = append(m.credentials, to)
	return nil
}

func (m *fakeMailer) SendRenewalConfirmation(_ context.Context, to, _ string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.take(); err != nil {
		return err
	}
	m.renewals = append(m.renewals, to)
	return nil
}

func (m *fakeMailer) SendLicenseKey(_ context.Context, _, _, licenseKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.take(); err != nil {
		return err
	}
	m.licenseKeys = append(m.licenseKeys, licenseKey)
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, _, resetURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.take(); err != nil {
		return err
	}
	m.resetURLs = append(m.resetURLs, resetURL)
	return nil
}

func (m *fakeMailer) totalSent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.credentials) + len(m.renewals) + len(m.licenseKeys) + len(m.resetURLs)
}

// fakeAlipay stands in for the Alipay gateway client.
type fakeAlipay struct {
	mu          sync.Mutex
	qrCode      string
	precreated  []string // out_trade_nos
	precreErr   error
	queryStatus string
	queryErr    error
	verifyErr   error
}

func (g *fakeAlipay) Precreate(_ context.Context, outTradeNo, _, _ string) (*alipay.PrecreateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.precreErr != nil {
		return nil, g.precreErr
	}
	g.precreated = append(g.precreated, outTradeNo)
	return &alipay.PrecreateResult{OutTradeNo: outTradeNo, QRCode: g.qrCode}, nil
}

func (g *fakeAlipay) QueryTrade(_ context.Context, outTradeNo string) (*alipay.QueryResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.queryErr != nil {
		return nil, g.queryErr
	}
	status := g.queryStatus
	if status == "" {
		status = alipay.TradeWaitPay
	}
	return &alipay.QueryResult{TradeStatus: status, TradeNo: "2026083022001" + outTradeNo}, nil
}

func (g *fakeAlipay) VerifyNotification(url.Values) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyErr
}

// fakePayPal stands in for the PayPal gateway client.
type fakePayPal struct {
	mu            sync.Mutex
	nextOrderID   string
	createErr     error
	captureStatus string
	captureAmount string
	captureErr    error
	getStatus     string
}

func (g *fakePayPal) CreateOrder(_ context.Context, internalID, amount, currency, _ string) (*paypal.CreateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	id := g.nextOrderID
	if id == "" {
		id = "5O190127TN364715T"
	}
	return &paypal.CreateResult{
		OrderID:    id,
		ApproveURL: "https://www.paypal.test/checkoutnow?token=" + id,
	}, nil
}

func (g *fakePayPal) CaptureOrder(_ context.Context, paypalOrderID string) (*paypal.CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	status := g.captureStatus
	if status == "" {
		status = paypal.StatusCompleted
	}
	return &paypal.CaptureResult{
		OrderID:  paypalOrderID,
		Status:   status,
		Amount:   g.captureAmount,
		Currency: "USD",
	}, nil
}

func (g *fakePayPal) GetOrder(_ context.Context, paypalOrderID string) (*paypal.CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status := g.getStatus
	if status == "" {
		status = paypal.StatusCreated
	}
	return &paypal.CaptureResult{OrderID: paypalOrderID, Status: status}, nil
}
