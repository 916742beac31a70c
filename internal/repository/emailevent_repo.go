package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/leadgrid/leadgrid-api/internal/models"
)

// SQLiteEmailEventRepository records delivery events reported by the
// email provider's webhook.
type SQLiteEmailEventRepository struct {
	db *sql.DB
}

func NewSQLiteEmailEventRepository(db *sql.DB) *SQLiteEmailEventRepository {
	return &SQLiteEmailEventRepository{db: db}
}

func (r *SQLiteEmailEventRepository) Create(ctx context.Context, ev *models.EmailEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_events (id, email_id, type, recipient, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.EmailID, ev.Type, ev.Recipient, fmtTime(ev.CreatedAt))
	return err
}

func (r *SQLiteEmailEventRepository) GetByRecipient(ctx context.Context, recipient string, limit int) ([]*models.EmailEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email_id, type, recipient, created_at
		FROM email_events WHERE recipient = ?
		ORDER BY created_at DESC LIMIT ?`, recipient, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.EmailEvent
	for rows.Next() {
		var ev models.EmailEvent
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.EmailID, &ev.Type, &ev.Recipient, &createdAt); err != nil {
			return nil, err
		}
		if ev.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}
