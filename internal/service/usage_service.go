package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/models"
	"github.com/leadgrid/leadgrid-api/internal/repository"
)

// UsageService enforces the per-day search and export quotas the
// desktop clients check before running a job.
type UsageService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

func NewUsageService(repos *repository.Repositories, logger *slog.Logger) *UsageService {
	return &UsageService{repos: repos, logger: logger}
}

// UsageStatus reports an account's quota and what remains of it today.
type UsageStatus struct {
	AccountType      string    `json:"account_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	DailySearches    int       `json:"daily_searches"`
	DailyExports     int       `json:"daily_exports"`
	SearchesUsed     int       `json:"searches_used"`
	ExportsUsed      int       `json:"exports_used"`
	SearchesLeft     int       `json:"searches_left"`
	ExportsLeft      int       `json:"exports_left"`
}

// CheckUsage returns the account's current quota position, rolling the
// daily counters over first when the stored reset date is stale.
func (s *UsageService) CheckUsage(ctx context.Context, email string) (*UsageStatus, error) {
	account, err := s.freshAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.status(account), nil
}

// RecordSearch consumes one search from today's quota, failing with
// ErrQuotaExceeded when none remain.
func (s *UsageService) RecordSearch(ctx context.Context, email string) (*UsageStatus, error) {
	account, err := s.freshAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	limits := constants.GetAccountLimits(account.Type)
	if account.SearchCount >= limits.DailySearches {
		return nil, ErrQuotaExceeded
	}
	if err := s.repos.Account.IncrementSearchCount(ctx, account.Email); err != nil {
		return nil, fmt.Errorf("record search: %w", err)
	}
	account.SearchCount++
	return s.status(account), nil
}

// RecordExport consumes one export from today's quota.
func (s *UsageService) RecordExport(ctx context.Context, email string) (*UsageStatus, error) {
	account, err := s.freshAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	limits := constants.GetAccountLimits(account.Type)
	if account.ExportCount >= limits.DailyExports {
		return nil, ErrQuotaExceeded
	}
	if err := s.repos.Account.IncrementExportCount(ctx, account.Email); err != nil {
		return nil, fmt.Errorf("record export: %w", err)
	}
	account.ExportCount++
	return s.status(account), nil
}

// freshAccount loads the account with today's counters. The reset is
// date-based in UTC so every client sees the same quota day regardless
// of timezone.
func (s *UsageService) freshAccount(ctx context.Context, email string) (*models.Account, error) {
	today := time.Now().UTC().Format("2006-01-02")
	if err := s.repos.Account.ResetDailyCountersIfStale(ctx, email, today); err != nil {
		return nil, fmt.Errorf("reset counters: %w", err)
	}
	account, err := s.repos.Account.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *UsageService) status(account *models.Account) *UsageStatus {
	limits := constants.GetAccountLimits(account.Type)
	return &UsageStatus{
		AccountType:   account.Type,
		ExpiresAt:     account.ExpiresAt,
		DailySearches: limits.DailySearches,
		DailyExports:  limits.DailyExports,
		SearchesUsed:  account.SearchCount,
		ExportsUsed:   account.ExportCount,
		SearchesLeft:  max(0, limits.DailySearches-account.SearchCount),
		ExportsLeft:   max(0, limits.DailyExports-account.ExportCount),
	}
}
