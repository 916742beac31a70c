package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/models"
)

// SQLiteUserRepository persists auth users and password reset tokens.
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = `id, email, password_hash, created_at, updated_at`

func (r *SQLiteUserRepository) Create(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash,
		fmtTime(u.CreatedAt), fmtTime(u.UpdatedAt))
	return err
}

func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, fmtTime(now), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *SQLiteUserRepository) CreatePasswordReset(ctx context.Context, pr *models.PasswordReset) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_resets (id, user_id, token_hash, expires_at, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		pr.ID, pr.UserID, pr.TokenHash,
		fmtTime(pr.ExpiresAt), nullTime(pr.UsedAt), fmtTime(pr.CreatedAt))
	return err
}

func (r *SQLiteUserRepository) GetPasswordResetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordReset, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_resets WHERE token_hash = ?`, tokenHash)

	var pr models.PasswordReset
	var expiresAt, createdAt string
	var usedAt sql.NullString
	if err := row.Scan(&pr.ID, &pr.UserID, &pr.TokenHash, &expiresAt, &usedAt, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var err error
	if pr.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return nil, err
	}
	if pr.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if usedAt.Valid {
		t, err := time.Parse(time.RFC3339, usedAt.String)
		if err != nil {
			return nil, err
		}
		pr.UsedAt = &t
	}
	return &pr, nil
}

// MarkPasswordResetUsed consumes a token. It reports false if the token
// was already used, so a replayed reset link cannot change the password twice.
func (r *SQLiteUserRepository) MarkPasswordResetUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE password_resets SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		fmtTime(at), id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *SQLiteUserRepository) DeleteExpiredPasswordResets(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM password_resets WHERE expires_at < ? OR used_at IS NOT NULL`,
		fmtTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var createdAt, updatedAt string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var err error
	if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
