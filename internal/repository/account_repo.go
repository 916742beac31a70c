package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/models"
)

// SQLiteAccountRepository implements AccountRepository for SQLite.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// NewSQLiteAccountRepository creates a new SQLite account repository.
func NewSQLiteAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

const accountColumns = `id, email, type, status, password_hash, expires_at, search_count, export_count, last_reset_date, created_at, updated_at, disabled_at`

func (r *SQLiteAccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO user_accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.Email, account.Type, account.Status, account.PasswordHash,
		fmtTime(account.ExpiresAt), account.SearchCount, account.ExportCount,
		account.LastResetDate,
		fmtTime(account.CreatedAt), fmtTime(account.UpdatedAt),
		nullTime(account.DisabledAt))
	return err
}

func (r *SQLiteAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM user_accounts WHERE email = ?`
	var account models.Account
	var expiresAt, createdAt, updatedAt string
	var disabledAt sql.NullString

	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&account.ID, &account.Email, &account.Type, &account.Status, &account.PasswordHash,
		&expiresAt, &account.SearchCount, &account.ExportCount, &account.LastResetDate,
		&createdAt, &updatedAt, &disabledAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	account.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	account.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	account.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if disabledAt.Valid {
		t, _ := time.Parse(time.RFC3339, disabledAt.String)
		account.DisabledAt = &t
	}
	return &account, nil
}

// ExtendExpiry preserves remaining subscription time: the base for the
// extension is the current expiry when it is still in the future,
// otherwise the current moment.
func (r *SQLiteAccountRepository) ExtendExpiry(ctx context.Context, email string, period constants.RenewalPeriod, now time.Time) (time.Time, error) {
	account, err := r.GetByEmail(ctx, email)
	if err != nil {
		return time.Time{}, err
	}
	if account == nil {
		return time.Time{}, fmt.Errorf("account %s not found", email)
	}

	base := account.ExpiresAt
	if base.Before(now) {
		base = now
	}
	newExpiry := period.AddTo(base)

	// A downgraded account comes back as standard; the renewal product
	// does not say which paid tier it originally had.
	query := `UPDATE user_accounts SET expires_at = ?, status = ?,
		type = CASE WHEN type = ? THEN ? ELSE type END, updated_at = ?
		WHERE email = ?`
	_, err = r.db.ExecContext(ctx, query,
		fmtTime(newExpiry), models.AccountStatusActive,
		constants.AccountTypeExpired, constants.AccountTypeStandard,
		fmtTime(now), email)
	if err != nil {
		return time.Time{}, err
	}
	return newExpiry, nil
}

// ExtendForPurchase applies a repeat purchase of a tiered product: the
// account takes the purchased tier outright (a pro purchase upgrades a
// standard account) and a full subscription term is added on top of
// any remaining time.
func (r *SQLiteAccountRepository) ExtendForPurchase(ctx context.Context, email, accountType string, days int, now time.Time) (time.Time, error) {
	account, err := r.GetByEmail(ctx, email)
	if err != nil {
		return time.Time{}, err
	}
	if account == nil {
		return time.Time{}, fmt.Errorf("account %s not found", email)
	}

	base := account.ExpiresAt
	if base.Before(now) {
		base = now
	}
	newExpiry := base.AddDate(0, 0, days)

	query := `UPDATE user_accounts SET expires_at = ?, status = ?, type = ?, updated_at = ?
		WHERE email = ?`
	_, err = r.db.ExecContext(ctx, query,
		fmtTime(newExpiry), models.AccountStatusActive, accountType,
		fmtTime(now), email)
	if err != nil {
		return time.Time{}, err
	}
	return newExpiry, nil
}

func (r *SQLiteAccountRepository) ResetDailyCountersIfStale(ctx context.Context, email string, today string) error {
	query := `UPDATE user_accounts SET search_count = 0, export_count = 0, last_reset_date = ?, updated_at = ?
		WHERE email = ? AND last_reset_date != ?`
	_, err := r.db.ExecContext(ctx, query, today, fmtTime(time.Now()), email, today)
	return err
}

func (r *SQLiteAccountRepository) IncrementSearchCount(ctx context.Context, email string) error {
	query := `UPDATE user_accounts SET search_count = search_count + 1, updated_at = ? WHERE email = ?`
	_, err := r.db.ExecContext(ctx, query, fmtTime(time.Now()), email)
	return err
}

func (r *SQLiteAccountRepository) IncrementExportCount(ctx context.Context, email string) error {
	query := `UPDATE user_accounts SET export_count = export_count + 1, updated_at = ? WHERE email = ?`
	_, err := r.db.ExecContext(ctx, query, fmtTime(time.Now()), email)
	return err
}

func (r *SQLiteAccountRepository) DowngradeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE user_accounts SET type = ?, updated_at = ?
		WHERE status = ? AND type != ? AND expires_at < ?`
	result, err := r.db.ExecContext(ctx, query,
		constants.AccountTypeExpired, fmtTime(now),
		models.AccountStatusActive, constants.AccountTypeExpired, fmtTime(now))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
