package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/foxzi/msghub/internal/db"
	"github.com/foxzi/msghub/internal/models"
	"github.com/google/uuid"
)

type LogRepository struct {
	db *db.DB
	q  querier
}

func NewLogRepository(d *db.DB) *LogRepository {
	return &LogRepository{db: d, q: d.DB}
}

// WithTx returns a copy of the repository that runs on tx
func (r *LogRepository) WithTx(tx *sql.Tx) *LogRepository {
	return &LogRepository{db: r.db, q: tx}
}

// Create inserts a message log entry
func (r *LogRepository) Create(ctx context.Context, l *models.MessageLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = now()

	_, err := r.q.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO message_logs (id, organization_id, contact_id, template_id, channel, recipient, subject,
			status, provider, provider_message_id, error_message, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.OrganizationID, l.ContactID, l.TemplateID, string(l.Channel), l.Recipient, l.Subject,
		l.Status, l.Provider, l.ProviderMessageID, l.ErrorMessage, nullTime(l.SentAt), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message log: %w", err)
	}
	return nil
}

// List returns the latest log entries of an organization
func (r *LogRepository) List(ctx context.Context, organizationID string, limit int) ([]models.MessageLog, error) {
	query := `
		SELECT id, organization_id, contact_id, template_id, channel, recipient, subject,
			status, provider, provider_message_id, error_message, sent_at, created_at
		FROM message_logs WHERE organization_id = ?
		ORDER BY created_at DESC`
	args := []any{organizationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.MessageLog{}
	for rows.Next() {
		var l models.MessageLog
		var channel string
		var sentAt sql.NullTime
		err := rows.Scan(&l.ID, &l.OrganizationID, &l.ContactID, &l.TemplateID, &channel, &l.Recipient, &l.Subject,
			&l.Status, &l.Provider, &l.ProviderMessageID, &l.ErrorMessage, &sentAt, &l.CreatedAt)
		if err != nil {
			return nil, err
		}
		l.Channel = models.Channel(channel)
		l.SentAt = timePtr(sentAt)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
