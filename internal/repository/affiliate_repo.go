package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/leadgrid/leadgrid-api/internal/models"
)

// SQLiteAffiliateRepository implements AffiliateRepository for SQLite.
type SQLiteAffiliateRepository struct {
	db *sql.DB
}

// NewSQLiteAffiliateRepository creates a new SQLite affiliate repository.
func NewSQLiteAffiliateRepository(db *sql.DB) *SQLiteAffiliateRepository {
	return &SQLiteAffiliateRepository{db: db}
}

func (r *SQLiteAffiliateRepository) GetAgent(ctx context.Context, code string) (*models.Agent, error) {
	query := `SELECT code, name, default_rate, total_commission, balance, created_at, updated_at
		FROM agents WHERE code = ?`
	var agent models.Agent
	var defaultRate, totalCommission, balance, createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&agent.Code, &agent.Name, &defaultRate, &totalCommission, &balance, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	agent.DefaultRate, _ = decimal.NewFromString(defaultRate)
	agent.TotalCommission, _ = decimal.NewFromString(totalCommission)
	agent.Balance, _ = decimal.NewFromString(balance)
	agent.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	agent.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &agent, nil
}

func (r *SQLiteAffiliateRepository) GetPromotion(ctx context.Context, code string) (*models.Promotion, error) {
	query := `SELECT code, agent_code, product_type, rate, conversions, total_commission, created_at, updated_at
		FROM promotions WHERE code = ?`
	var promo models.Promotion
	var rate, totalCommission, createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&promo.Code, &promo.AgentCode, &promo.ProductType, &rate, &promo.Conversions,
		&totalCommission, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	promo.Rate, _ = decimal.NewFromString(rate)
	promo.TotalCommission, _ = decimal.NewFromString(totalCommission)
	promo.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	promo.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &promo, nil
}

// CreditCommission performs all commission bookkeeping in a single
// transaction: the audit row, the promotion counters (when a promotion
// code was matched) and the agent totals commit or roll back together.
func (r *SQLiteAffiliateRepository) CreditCommission(ctx context.Context, po *models.ProductOrder) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := fmtTime(time.Now())

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO product_orders (id, order_id, agent_code, promotion_code, product_id, price, rate, commission, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		po.ID, po.OrderID, po.AgentCode, nullString(po.PromotionCode), po.ProductID,
		po.Price.String(), po.Rate.String(), po.Commission.String(),
		fmtTime(po.CreatedAt)); err != nil {
		return err
	}

	// Decimal columns are stored as text; additions happen in Go to
	// avoid SQLite float arithmetic on money.
	if po.PromotionCode != "" {
		var rate string
		if err := tx.QueryRowContext(ctx,
			`SELECT total_commission FROM promotions WHERE code = ?`, po.PromotionCode).Scan(&rate); err != nil {
			return err
		}
		current, err := decimal.NewFromString(rate)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE promotions SET conversions = conversions + 1, total_commission = ?, updated_at = ? WHERE code = ?`,
			current.Add(po.Commission).String(), now, po.PromotionCode); err != nil {
			return err
		}
	}

	var totalStr, balanceStr string
	if err := tx.QueryRowContext(ctx,
		`SELECT total_commission, balance FROM agents WHERE code = ?`, po.AgentCode).Scan(&totalStr, &balanceStr); err != nil {
		return err
	}
	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return err
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE agents SET total_commission = ?, balance = ?, updated_at = ? WHERE code = ?`,
		total.Add(po.Commission).String(), balance.Add(po.Commission).String(), now, po.AgentCode); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteAffiliateRepository) HasCommission(ctx context.Context, orderID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM product_orders WHERE order_id = ?`, orderID).Scan(&count)
	return count > 0, err
}

func (r *SQLiteAffiliateRepository) CreateAgent(ctx context.Context, agent *models.Agent) error {
	query := `INSERT INTO agents (code, name, default_rate, total_commission, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		agent.Code, agent.Name, agent.DefaultRate.String(),
		agent.TotalCommission.String(), agent.Balance.String(),
		fmtTime(agent.CreatedAt), fmtTime(agent.UpdatedAt))
	return err
}

func (r *SQLiteAffiliateRepository) CreatePromotion(ctx context.Context, promo *models.Promotion) error {
	query := `INSERT INTO promotions (code, agent_code, product_type, rate, conversions, total_commission, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		promo.Code, promo.AgentCode, promo.ProductType, promo.Rate.String(),
		promo.Conversions, promo.TotalCommission.String(),
		fmtTime(promo.CreatedAt), fmtTime(promo.UpdatedAt))
	return err
}
