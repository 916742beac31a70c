// Package models defines the domain models for the application.
// Money fields use shopspring/decimal; database timestamps are RFC3339.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/leadgrid/leadgrid-api/internal/constants"
)

// OrderStatus tracks the payment lifecycle of an order. Transitions are
// forward-only: pending -> completed (or completed_unfulfilled when the
// provisioning side effect failed after payment), pending -> expired
// when the order is never paid.
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusCompleted   OrderStatus = "completed"
	OrderStatusUnfulfilled OrderStatus = "completed_unfulfilled"
	OrderStatusExpired     OrderStatus = "expired"
)

// Order is one purchase or renewal attempt. Never deleted.
type Order struct {
	ID            string                  `json:"id"` // <code>-<unixms>-<b64(email)>
	ProductID     string                  `json:"product_id"`
	Email         string                  `json:"email"`
	Amount        decimal.Decimal         `json:"amount"`
	Currency      string                  `json:"currency"`
	Status        OrderStatus             `json:"status"`
	Provider      string                  `json:"provider"` // alipay, paypal
	GatewayRef    string                  `json:"gateway_ref,omitempty"`
	ReferralCode  string                  `json:"referral_code,omitempty"`
	AgentCode     string                  `json:"agent_code,omitempty"`
	RenewalPeriod constants.RenewalPeriod `json:"renewal_period,omitempty"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// Account is a provisioned product account, keyed by customer email.
type Account struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Type          string     `json:"type"`   // constants.AccountType*
	Status        string     `json:"status"` // active, disabled
	PasswordHash  string     `json:"-"`
	ExpiresAt     time.Time  `json:"expires_at"`
	SearchCount   int        `json:"search_count"`
	ExportCount   int        `json:"export_count"`
	LastResetDate string     `json:"last_reset_date"` // YYYY-MM-DD
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DisabledAt    *time.Time `json:"disabled_at,omitempty"`
}

const (
	AccountStatusActive   = "active"
	AccountStatusDisabled = "disabled"
)

// LicenseKeyStatus is the pool state of a pre-generated activation key.
type LicenseKeyStatus string

const (
	LicenseAvailable LicenseKeyStatus = "available"
	LicenseActivated LicenseKeyStatus = "activated"
)

// LicenseKey is drawn from a finite pool; once activated it is bound to
// one customer forever.
type LicenseKey struct {
	ID          string                  `json:"id"`
	Key         string                  `json:"key"`
	Family      constants.ProductFamily `json:"family"`
	ProductID   string                  `json:"product_id"`
	Status      LicenseKeyStatus        `json:"status"`
	ActivatedBy string                  `json:"activated_by,omitempty"` // customer email
	ActivatedAt *time.Time              `json:"activated_at,omitempty"`
	OrderID     string                  `json:"order_id,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// User is a first-party website account (login/registration flows).
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PasswordReset is a single-use reset token. Only the hash is stored.
type PasswordReset struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Agent is a promoting affiliate.
type Agent struct {
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	DefaultRate     decimal.Decimal `json:"default_rate"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	Balance         decimal.Decimal `json:"balance"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Promotion is an agent's campaign code with its own commission rate.
type Promotion struct {
	Code            string          `json:"code"`
	AgentCode       string          `json:"agent_code"`
	ProductType     string          `json:"product_type"`
	Rate            decimal.Decimal `json:"rate"`
	Conversions     int             `json:"conversions"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ProductOrder is the audit row written when commission is credited.
type ProductOrder struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	AgentCode     string          `json:"agent_code"`
	PromotionCode string          `json:"promotion_code,omitempty"`
	ProductID     string          `json:"product_id"`
	Price         decimal.Decimal `json:"price"`
	Rate          decimal.Decimal `json:"rate"`
	Commission    decimal.Decimal `json:"commission"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ReferralCode is the decoded form of AGENT_PRODUCT_TIMESTAMP_RANDOM.
type ReferralCode struct {
	AgentCode   string `json:"agent_code"`
	ProductType string `json:"product_type"`
	Timestamp   string `json:"timestamp"`
	Random      string `json:"random"`
}

// EmailEvent records a Resend delivery event for operator remediation.
type EmailEvent struct {
	ID        string    `json:"id"`
	EmailID   string    `json:"email_id"`
	Type      string    `json:"type"` // email.sent, email.bounced, ...
	Recipient string    `json:"recipient"`
	CreatedAt time.Time `json:"created_at"`
}
