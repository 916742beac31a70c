package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/models"
)

func testAccount(email string, expiresAt time.Time) *models.Account {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Account{
		ID:            ulid.Make().String(),
		Email:         email,
		Type:          constants.AccountTypeStandard,
		Status:        models.AccountStatusActive,
		PasswordHash:  "$2a$10$abcdefghijklmnopqrstuv",
		ExpiresAt:     expiresAt,
		LastResetDate: now.Format("2006-01-02"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestAccountRepository_CreateAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	expires := time.Now().UTC().Truncate(time.Second).AddDate(0, 0, 30)
	account := testAccount("user@example.com", expires)
	if err := repos.Account.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repos.Account.GetByEmail(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetByEmail() returned nil")
	}
	if got.Type != constants.AccountTypeStandard {
		t.Errorf("Type = %s, want standard", got.Type)
	}
	if !got.ExpiresAt.Equal(expires) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, expires)
	}
	if got.SearchCount != 0 || got.ExportCount != 0 {
		t.Errorf("counters = %d/%d, want 0/0", got.SearchCount, got.ExportCount)
	}
}

func TestAccountRepository_ExtendExpiry_PreservesRemainingTime(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	// 10 days of subscription left.
	current := now.AddDate(0, 0, 10)
	account := testAccount("active@example.com", current)
	if err := repos.Account.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	newExpiry, err := repos.Account.ExtendExpiry(ctx, "active@example.com", constants.RenewalMonthly, now)
	if err != nil {
		t.Fatalf("ExtendExpiry() error = %v", err)
	}

	want := current.AddDate(0, 1, 0)
	if !newExpiry.Equal(want) {
		t.Errorf("new expiry = %v, want %v (current expiry + 1 month)", newExpiry, want)
	}
}

func TestAccountRepository_ExtendExpiry_LapsedAccount(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	// Expired 40 days ago and already downgraded.
	account := testAccount("lapsed@example.com", now.AddDate(0, 0, -40))
	account.Type = constants.AccountTypeExpired
	if err := repos.Account.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	newExpiry, err := repos.Account.ExtendExpiry(ctx, "lapsed@example.com", constants.RenewalQuarterly, now)
	if err != nil {
		t.Fatalf("ExtendExpiry() error = %v", err)
	}

	// Extension counts from now, not from the stale expiry.
	want := now.AddDate(0, 3, 0)
	if !newExpiry.Equal(want) {
		t.Errorf("new expiry = %v, want %v (now + 3 months)", newExpiry, want)
	}

	got, err := repos.Account.GetByEmail(ctx, "lapsed@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.Type != constants.AccountTypeStandard {
		t.Errorf("Type after renewal = %s, want standard", got.Type)
	}
}

func TestAccountRepository_DailyCounters(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	account := testAccount("counter@example.com", time.Now().AddDate(0, 1, 0))
	account.LastResetDate = "2025-01-01"
	if err := repos.Account.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := repos.Account.IncrementSearchCount(ctx, "counter@example.com"); err != nil {
			t.Fatalf("IncrementSearchCount() error = %v", err)
		}
	}
	if err := repos.Account.IncrementExportCount(ctx, "counter@example.com"); err != nil {
		t.Fatalf("IncrementExportCount() error = %v", err)
	}

	got, _ := repos.Account.GetByEmail(ctx, "counter@example.com")
	if got.SearchCount != 3 || got.ExportCount != 1 {
		t.Errorf("counters = %d/%d, want 3/1", got.SearchCount, got.ExportCount)
	}

	// A new calendar day resets both counters.
	today := time.Now().UTC().Format("2006-01-02")
	if err := repos.Account.ResetDailyCountersIfStale(ctx, "counter@example.com", today); err != nil {
		t.Fatalf("ResetDailyCountersIfStale() error = %v", err)
	}
	got, _ = repos.Account.GetByEmail(ctx, "counter@example.com")
	if got.SearchCount != 0 || got.ExportCount != 0 {
		t.Errorf("counters after reset = %d/%d, want 0/0", got.SearchCount, got.ExportCount)
	}
	if got.LastResetDate != today {
		t.Errorf("LastResetDate = %s, want %s", got.LastResetDate, today)
	}

	// Same day again is a no-op: increments since the reset survive.
	if err := repos.Account.IncrementSearchCount(ctx, "counter@example.com"); err != nil {
		t.Fatalf("IncrementSearchCount() error = %v", err)
	}
	if err := repos.Account.ResetDailyCountersIfStale(ctx, "counter@example.com", today); err != nil {
		t.Fatalf("ResetDailyCountersIfStale() error = %v", err)
	}
	got, _ = repos.Account.GetByEmail(ctx, "counter@example.com")
	if got.SearchCount != 1 {
		t.Errorf("SearchCount = %d, want 1 (same-day reset must not zero)", got.SearchCount)
	}
}

func TestAccountRepository_DowngradeExpired(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC()
	lapsed := testAccount("gone@example.com", now.AddDate(0, 0, -1))
	active := testAccount("here@example.com", now.AddDate(0, 0, 10))
	for _, a := range []*models.Account{lapsed, active} {
		if err := repos.Account.Create(ctx, a); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	n, err := repos.Account.DowngradeExpired(ctx, now)
	if err != nil {
		t.Fatalf("DowngradeExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DowngradeExpired() = %d, want 1", n)
	}

	got, _ := repos.Account.GetByEmail(ctx, "gone@example.com")
	if got.Type != constants.AccountTypeExpired {
		t.Errorf("lapsed Type = %s, want expired", got.Type)
	}
	got, _ = repos.Account.GetByEmail(ctx, "here@example.com")
	if got.Type != constants.AccountTypeStandard {
		t.Errorf("active Type = %s, want standard", got.Type)
	}
}
