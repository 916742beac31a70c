package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/config"
	"github.com/leadgrid/leadgrid-api/internal/repository"
)

// CleanupService handles periodic housekeeping of stale rows.
type CleanupService struct {
	cfg    *config.Config
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) *CleanupService {
	return &CleanupService{
		cfg:    cfg,
		repos:  repos,
		logger: logger.With("component", "cleanup"),
	}
}

// CleanupResult contains the results of one sweep.
type CleanupResult struct {
	OrdersExpired        int64
	AccountsDowngraded   int64
	PasswordResetsPruned int64
	Errors               []error
}

// Sweep runs one housekeeping pass:
// - pending orders older than the TTL become expired
// - active accounts past their expiry are downgraded
// - used or expired password reset tokens are pruned
//
// Completed orders and commission rows are never touched; they are the
// sales record.
func (s *CleanupService) Sweep(ctx context.Context) (*CleanupResult, error) {
	result := &CleanupResult{}
	now := time.Now().UTC()
	orderCutoff := now.Add(-s.cfg.PendingOrderTTL)

	expired, err := s.repos.Order.ExpireStale(ctx, orderCutoff)
	if err != nil {
		s.logger.Error("failed to expire stale orders", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.OrdersExpired = expired
		if expired > 0 {
			s.logger.Info("expired stale pending orders", "count", expired)
		}
	}

	downgraded, err := s.repos.Account.DowngradeExpired(ctx, now)
	if err != nil {
		s.logger.Error("failed to downgrade expired accounts", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.AccountsDowngraded = downgraded
		if downgraded > 0 {
			s.logger.Info("downgraded expired accounts", "count", downgraded)
		}
	}

	pruned, err := s.repos.User.DeleteExpiredPasswordResets(ctx, now)
	if err != nil {
		s.logger.Error("failed to prune password resets", "error", err)
		result.Errors = append(result.Errors, err)
	} else {
		result.PasswordResetsPruned = pruned
	}

	s.logger.Info("cleanup sweep completed",
		"orders_expired", result.OrdersExpired,
		"accounts_downgraded", result.AccountsDowngraded,
		"password_resets_pruned", result.PasswordResetsPruned,
		"errors", len(result.Errors),
	)
	return result, nil
}

// RunScheduled runs the sweep as a background goroutine. It runs
// immediately on start and then at the configured interval, until the
// context is cancelled.
func (s *CleanupService) RunScheduled(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	s.logger.Info("starting scheduled cleanup",
		"interval", interval.String(),
		"pending_order_ttl", s.cfg.PendingOrderTTL.String(),
	)

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("initial cleanup failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled cleanup stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("scheduled cleanup failed", "error", err)
			}
		}
	}
}
