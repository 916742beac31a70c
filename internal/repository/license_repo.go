package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/models"
)

// SQLiteLicenseRepository implements LicenseRepository for SQLite.
type SQLiteLicenseRepository struct {
	db *sql.DB
}

// NewSQLiteLicenseRepository creates a new SQLite license repository.
func NewSQLiteLicenseRepository(db *sql.DB) *SQLiteLicenseRepository {
	return &SQLiteLicenseRepository{db: db}
}

// Claim allocates one key with a single conditional update so two
// concurrent fulfillments can never bind the same key. The inner
// SELECT picks the oldest available key for the product; the outer
// WHERE re-checks availability so a raced row updates zero rows
// instead of rebinding. Keys are pooled per product: email-validator
// and WhatsApp-validator stock never mix.
func (r *SQLiteLicenseRepository) Claim(ctx context.Context, productID, email, orderID string, at time.Time) (*models.LicenseKey, error) {
	query := `UPDATE license_keys
		SET status = ?, activated_by = ?, activated_at = ?, order_id = ?
		WHERE id = (
			SELECT id FROM license_keys
			WHERE product_id = ? AND status = ?
			ORDER BY created_at ASC LIMIT 1
		) AND status = ?
		RETURNING id, key, family, product_id, status, activated_by, activated_at, order_id, created_at`

	row := r.db.QueryRowContext(ctx, query,
		string(models.LicenseActivated), email, fmtTime(at), orderID,
		productID, string(models.LicenseAvailable),
		string(models.LicenseAvailable))

	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lic, nil
}

func (r *SQLiteLicenseRepository) Restock(ctx context.Context, keys []*models.LicenseKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO license_keys (id, key, family, product_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, query,
			k.ID, k.Key, string(k.Family), k.ProductID,
			string(models.LicenseAvailable), fmtTime(k.CreatedAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteLicenseRepository) CountAvailable(ctx context.Context, productID string) (int, error) {
	query := `SELECT COUNT(*) FROM license_keys WHERE product_id = ? AND status = ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, productID, string(models.LicenseAvailable)).Scan(&count)
	return count, err
}

func (r *SQLiteLicenseRepository) GetByKey(ctx context.Context, key string) (*models.LicenseKey, error) {
	query := `SELECT id, key, family, product_id, status, activated_by, activated_at, order_id, created_at
		FROM license_keys WHERE key = ?`
	lic, err := scanLicense(r.db.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lic, nil
}

func scanLicense(row rowScanner) (*models.LicenseKey, error) {
	var lic models.LicenseKey
	var family, status, createdAt string
	var activatedBy, activatedAt, orderID sql.NullString

	if err := row.Scan(&lic.ID, &lic.Key, &family, &lic.ProductID, &status,
		&activatedBy, &activatedAt, &orderID, &createdAt); err != nil {
		return nil, err
	}

	lic.Family = constants.ProductFamily(family)
	lic.Status = models.LicenseKeyStatus(status)
	lic.ActivatedBy = activatedBy.String
	lic.OrderID = orderID.String
	if activatedAt.Valid {
		t, _ := time.Parse(time.RFC3339, activatedAt.String)
		lic.ActivatedAt = &t
	}
	lic.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &lic, nil
}
