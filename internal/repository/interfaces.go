// Package repository defines repository interfaces for data access.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/models"
)

// OrderRepository defines methods for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByEmail(ctx context.Context, email string, limit, offset int) ([]*models.Order, error)
	GetByGatewayRef(ctx context.Context, provider, ref string) (*models.Order, error)
	// SetGatewayRef records the provider session reference after session creation.
	SetGatewayRef(ctx context.Context, id, ref string) error
	// MarkCompleted performs the conditional pending->completed
	// transition. The returned bool reports whether THIS call claimed
	// the transition; false means the order was already completed (or
	// in another terminal state) and the caller must not fulfill.
	MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error)
	// MarkUnfulfilled downgrades a completed order whose provisioning
	// side effect failed, flagging it for operator reconciliation.
	MarkUnfulfilled(ctx context.Context, id string) error
	// ListUnfulfilled returns orders awaiting manual reconciliation.
	ListUnfulfilled(ctx context.Context, limit int) ([]*models.Order, error)
	// ExpireStale marks pending orders created before the cutoff as
	// expired, returning how many rows changed.
	ExpireStale(ctx context.Context, before time.Time) (int64, error)
}

// AccountRepository defines methods for product account data access.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	// ExtendExpiry sets expires_at to max(now, current expiry) plus the
	// renewal period, preserving unexpired time. Returns the new expiry.
	ExtendExpiry(ctx context.Context, email string, period constants.RenewalPeriod, now time.Time) (time.Time, error)
	// ExtendForPurchase handles a repeat purchase: moves the account to
	// the purchased tier and adds a full subscription term on top of
	// max(now, current expiry). Returns the new expiry.
	ExtendForPurchase(ctx context.Context, email, accountType string, days int, now time.Time) (time.Time, error)
	// ResetDailyCountersIfStale zeroes the usage counters when the
	// stored last reset date differs from today.
	ResetDailyCountersIfStale(ctx context.Context, email string, today string) error
	IncrementSearchCount(ctx context.Context, email string) error
	IncrementExportCount(ctx context.Context, email string) error
	// DowngradeExpired flips active accounts whose expiry has passed to
	// the expired type, returning how many rows changed.
	DowngradeExpired(ctx context.Context, now time.Time) (int64, error)
}

// LicenseRepository defines methods for the license key pool.
type LicenseRepository interface {
	// Claim atomically binds the oldest available key for the product
	// to the customer. Keys are pooled per product, never across the
	// family: an email-validator key must not settle a WhatsApp order.
	// Returns nil when the product's pool is empty.
	Claim(ctx context.Context, productID, email, orderID string, at time.Time) (*models.LicenseKey, error)
	Restock(ctx context.Context, keys []*models.LicenseKey) error
	CountAvailable(ctx context.Context, productID string) (int, error)
	GetByKey(ctx context.Context, key string) (*models.LicenseKey, error)
}

// AffiliateRepository defines methods for referral bookkeeping.
type AffiliateRepository interface {
	GetAgent(ctx context.Context, code string) (*models.Agent, error)
	GetPromotion(ctx context.Context, code string) (*models.Promotion, error)
	// CreditCommission writes the product-order audit row, bumps the
	// promotion's conversion count and commission (when a promotion was
	// matched) and the agent's totals, all in one transaction.
	CreditCommission(ctx context.Context, po *models.ProductOrder) error
	// HasCommission reports whether an order already has an audit row.
	HasCommission(ctx context.Context, orderID string) (bool, error)
	CreateAgent(ctx context.Context, agent *models.Agent) error
	CreatePromotion(ctx context.Context, promo *models.Promotion) error
}

// UserRepository defines methods for first-party website accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error

	CreatePasswordReset(ctx context.Context, reset *models.PasswordReset) error
	GetPasswordResetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordReset, error)
	// MarkPasswordResetUsed consumes a token exactly once; false means
	// it was already consumed.
	MarkPasswordResetUsed(ctx context.Context, id string, at time.Time) (bool, error)
	DeleteExpiredPasswordResets(ctx context.Context, before time.Time) (int64, error)
}

// EmailEventRepository records inbound email delivery events.
type EmailEventRepository interface {
	Create(ctx context.Context, ev *models.EmailEvent) error
	GetByRecipient(ctx context.Context, recipient string, limit int) ([]*models.EmailEvent, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Order      OrderRepository
	Account    AccountRepository
	License    LicenseRepository
	Affiliate  AffiliateRepository
	User       UserRepository
	EmailEvent EmailEventRepository
}

// NewRepositories creates all repositories backed by the given database.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Order:      NewSQLiteOrderRepository(db),
		Account:    NewSQLiteAccountRepository(db),
		License:    NewSQLiteLicenseRepository(db),
		Affiliate:  NewSQLiteAffiliateRepository(db),
		User:       NewSQLiteUserRepository(db),
		EmailEvent: NewSQLiteEmailEventRepository(db),
	}
}
