package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/mailer"
	"github.com/leadgrid/leadgrid-api/internal/models"
	"github.com/leadgrid/leadgrid-api/internal/repository"
)

// FulfillmentService provisions whatever a just-paid order bought:
// a product account, a subscription extension, or a license key.
type FulfillmentService struct {
	repos    *repository.Repositories
	mailer   mailer.Mailer
	referral *ReferralService
	logger   *slog.Logger
}

func NewFulfillmentService(repos *repository.Repositories, mail mailer.Mailer, referral *ReferralService, logger *slog.Logger) *FulfillmentService {
	return &FulfillmentService{
		repos:    repos,
		mailer:   mail,
		referral: referral,
		logger:   logger,
	}
}

// Fulfill performs the provisioning action for one completed order.
// The caller must hold the completion claim for the order: Fulfill is
// invoked at most once per order by construction, not by re-checking.
//
// A returned error means provisioning did NOT happen (the caller
// downgrades the order for operator follow-up). Email delivery and
// referral bookkeeping are best-effort and never fail the fulfillment.
func (s *FulfillmentService) Fulfill(ctx context.Context, order *models.Order) error {
	product, ok := constants.GetProduct(order.ProductID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidProduct, order.ProductID)
	}

	switch {
	case product.Kind == constants.KindRenewal:
		if err := s.fulfillRenewal(ctx, order, product); err != nil {
			return err
		}
	case product.Family == constants.FamilyScraper, product.Family == constants.FamilyFinder:
		if err := s.fulfillAccount(ctx, order, product); err != nil {
			return err
		}
	case product.Family == constants.FamilyValidator:
		if err := s.fulfillLicense(ctx, order, product); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: no fulfillment for %s", ErrInvalidProduct, order.ProductID)
	}

	s.referral.Attribute(ctx, order)
	return nil
}

// fulfillAccount creates the product account, or extends it when the
// customer buys the same product again.
func (s *FulfillmentService) fulfillAccount(ctx context.Context, order *models.Order, product constants.Product) error {
	existing, err := s.repos.Account.GetByEmail(ctx, order.Email)
	if err != nil {
		return fmt.Errorf("look up account: %w", err)
	}

	now := time.Now().UTC()

	if existing != nil {
		// Repeat purchase: the account takes the purchased tier (a pro
		// order upgrades a standard account) plus a full term on top of
		// the remaining time.
		newExpiry, err := s.repos.Account.ExtendForPurchase(ctx, order.Email, product.AccountType, constants.InitialExpiryDays, now)
		if err != nil {
			return fmt.Errorf("extend account: %w", err)
		}
		s.sendMail(order, func(ctx context.Context) error {
			return s.mailer.SendRenewalConfirmation(ctx, order.Email, product.Name, newExpiry)
		})
		return nil
	}

	password, err := generatePassword()
	if err != nil {
		return fmt.Errorf("generate credential: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash credential: %w", err)
	}

	expiresAt := now.AddDate(0, 0, constants.InitialExpiryDays)
	account := &models.Account{
		ID:            ulid.Make().String(),
		Email:         order.Email,
		Type:          product.AccountType,
		Status:        models.AccountStatusActive,
		PasswordHash:  string(hash),
		ExpiresAt:     expiresAt,
		LastResetDate: now.Format("2006-01-02"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repos.Account.Create(ctx, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	s.sendMail(order, func(ctx context.Context) error {
		return s.mailer.SendAccountCredentials(ctx, order.Email, product.Name, password, expiresAt)
	})
	return nil
}

func (s *FulfillmentService) fulfillRenewal(ctx context.Context, order *models.Order, product constants.Product) error {
	period := order.RenewalPeriod
	if period == constants.RenewalNone {
		// Orders created before the period was recorded fall back to
		// the product's own period.
		period = product.Renewal
	}
	if period == constants.RenewalNone {
		return fmt.Errorf("%w: renewal order %s has no period", ErrInvalidProduct, order.ID)
	}

	newExpiry, err := s.repos.Account.ExtendExpiry(ctx, order.Email, period, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("extend account: %w", err)
	}

	s.sendMail(order, func(ctx context.Context) error {
		return s.mailer.SendRenewalConfirmation(ctx, order.Email, product.Name, newExpiry)
	})
	return nil
}

func (s *FulfillmentService) fulfillLicense(ctx context.Context, order *models.Order, product constants.Product) error {
	key, err := s.repos.License.Claim(ctx, order.ProductID, order.Email, order.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("claim license: %w", err)
	}
	if key == nil {
		return fmt.Errorf("%w: %s", ErrNoLicenseAvailable, order.ProductID)
	}

	s.sendMail(order, func(ctx context.Context) error {
		return s.mailer.SendLicenseKey(ctx, order.Email, product.Name, key.Key)
	})
	return nil
}

// sendMail delivers the fulfillment email with its own timeout,
// detached from the (possibly webhook-scoped) request context. Delivery
// failure is logged, never propagated: the customer has paid and the
// provisioning already happened.
func (s *FulfillmentService) sendMail(order *models.Order, send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := send(ctx); err != nil {
		s.logger.Error("fulfillment email failed",
			"order_id", order.ID,
			"email", order.Email,
			"error", err,
		)
	}
}

const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generatePassword returns a 12-character random credential from an
// alphabet without lookalike characters.
func generatePassword() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = passwordAlphabet[int(b)%len(passwordAlphabet)]
	}
	return string(buf), nil
}
