package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leadgrid/leadgrid-api/internal/constants"
	"github.com/leadgrid/leadgrid-api/internal/models"
)

// SQLiteOrderRepository implements OrderRepository for SQLite.
type SQLiteOrderRepository struct {
	db *sql.DB
}

// NewSQLiteOrderRepository creates a new SQLite order repository.
func NewSQLiteOrderRepository(db *sql.DB) *SQLiteOrderRepository {
	return &SQLiteOrderRepository{db: db}
}

const orderColumns = `id, product_id, email, amount, currency, status, provider, gateway_ref, referral_code, agent_code, renewal_period, completed_at, created_at, updated_at`

func (r *SQLiteOrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		order.ID, order.ProductID, order.Email, order.Amount.String(), order.Currency,
		string(order.Status), order.Provider,
		nullString(order.GatewayRef), nullString(order.ReferralCode), nullString(order.AgentCode),
		string(order.RenewalPeriod), nullTime(order.CompletedAt),
		fmtTime(order.CreatedAt), fmtTime(order.UpdatedAt))
	return err
}

func (r *SQLiteOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteOrderRepository) GetByGatewayRef(ctx context.Context, provider, ref string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE provider = ? AND gateway_ref = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, provider, ref))
}

func (r *SQLiteOrderRepository) GetByEmail(ctx context.Context, email string, limit, offset int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE email = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, email, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return r.scanMany(rows)
}

func (r *SQLiteOrderRepository) SetGatewayRef(ctx context.Context, id, ref string) error {
	query := `UPDATE orders SET gateway_ref = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, ref, fmtTime(time.Now()), id)
	return err
}

// MarkCompleted is the single concurrency guard for fulfillment: the
// conditional WHERE clause lets exactly one of the racing completion
// paths (webhook, status poll) observe rowsAffected == 1.
func (r *SQLiteOrderRepository) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE orders SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`
	result, err := r.db.ExecContext(ctx, query,
		string(models.OrderStatusCompleted), fmtTime(at), fmtTime(at),
		id, string(models.OrderStatusPending))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *SQLiteOrderRepository) MarkUnfulfilled(ctx context.Context, id string) error {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	_, err := r.db.ExecContext(ctx, query,
		string(models.OrderStatusUnfulfilled), fmtTime(time.Now()),
		id, string(models.OrderStatusCompleted))
	return err
}

func (r *SQLiteOrderRepository) ListUnfulfilled(ctx context.Context, limit int) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = ? ORDER BY updated_at ASC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, string(models.OrderStatusUnfulfilled), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return r.scanMany(rows)
}

func (r *SQLiteOrderRepository) ExpireStale(ctx context.Context, before time.Time) (int64, error) {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE status = ? AND created_at < ?`
	result, err := r.db.ExecContext(ctx, query,
		string(models.OrderStatusExpired), fmtTime(time.Now()),
		string(models.OrderStatusPending), fmtTime(before))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteOrderRepository) scanOne(row rowScanner) (*models.Order, error) {
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *SQLiteOrderRepository) scanMany(rows *sql.Rows) ([]*models.Order, error) {
	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var amount, status, renewalPeriod, createdAt, updatedAt string
	var gatewayRef, referralCode, agentCode, completedAt sql.NullString

	if err := row.Scan(&order.ID, &order.ProductID, &order.Email, &amount, &order.Currency,
		&status, &order.Provider, &gatewayRef, &referralCode, &agentCode,
		&renewalPeriod, &completedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	order.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	order.Status = models.OrderStatus(status)
	order.RenewalPeriod = constants.RenewalPeriod(renewalPeriod)
	order.GatewayRef = gatewayRef.String
	order.ReferralCode = referralCode.String
	order.AgentCode = agentCode.String
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		order.CompletedAt = &t
	}
	order.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	order.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &order, nil
}
