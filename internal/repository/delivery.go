package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/foxzi/msghub/internal/db"
	"github.com/foxzi/msghub/internal/models"
	"github.com/google/uuid"
)

type DeliveryRepository struct {
	db *db.DB
	q  querier
}

func NewDeliveryRepository(d *db.DB) *DeliveryRepository {
	return &DeliveryRepository{db: d, q: d.DB}
}

// WithTx returns a copy of the repository that runs on tx
func (r *DeliveryRepository) WithTx(tx *sql.Tx) *DeliveryRepository {
	return &DeliveryRepository{db: r.db, q: tx}
}

const deliveryColumns = `id, campaign_id, contact_id, external_message_id, channel, recipient_address, provider, status,
	sent_at, delivered_at, opened_at, clicked_at, error_code, error_message, created_at, updated_at`

// Create inserts a delivery, assigning an ID when empty
func (r *DeliveryRepository) Create(ctx context.Context, d *models.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = models.DeliveryStatusQueued
	}
	d.CreatedAt = now()
	d.UpdatedAt = d.CreatedAt

	_, err := r.q.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO deliveries (`+deliveryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		d.ID, d.CampaignID, d.ContactID, d.ExternalMessageID, string(d.Channel), d.RecipientAddress, d.Provider, d.Status,
		nullTime(d.SentAt), nullTime(d.DeliveredAt), nullTime(d.OpenedAt), nullTime(d.ClickedAt),
		d.ErrorCode, d.ErrorMessage, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery: %w", err)
	}
	return nil
}

// GetByID returns a delivery by ID, or nil when it does not exist
func (r *DeliveryRepository) GetByID(ctx context.Context, id string) (*models.Delivery, error) {
	row := r.q.QueryRowContext(ctx, r.db.Rebind(`SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`), id)
	return r.one(row)
}

// GetByExternalID returns the most recent delivery carrying a provider message ID
func (r *DeliveryRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Delivery, error) {
	if externalID == "" {
		return nil, nil
	}
	row := r.q.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE external_message_id = ?
		ORDER BY created_at DESC LIMIT 1`), externalID)
	return r.one(row)
}

func (r *DeliveryRepository) one(row *sql.Row) (*models.Delivery, error) {
	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListByCampaign returns the deliveries of a campaign in creation order
func (r *DeliveryRepository) ListByCampaign(ctx context.Context, campaignID string) ([]models.Delivery, error) {
	rows, err := r.q.QueryContext(ctx, r.db.Rebind(`
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE campaign_id = ?
		ORDER BY created_at, id`), campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []models.Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

// MarkOpened sets opened_at once. It reports whether this call set it.
func (r *DeliveryRepository) MarkOpened(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.markOnce(ctx, "opened_at", id, at)
}

// MarkClicked sets clicked_at once. It reports whether this call set it.
func (r *DeliveryRepository) MarkClicked(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.markOnce(ctx, "clicked_at", id, at)
}

func (r *DeliveryRepository) markOnce(ctx context.Context, column, id string, at time.Time) (bool, error) {
	query := fmt.Sprintf("UPDATE deliveries SET %s = ?, updated_at = ? WHERE id = ? AND %s IS NULL", column, column)
	res, err := r.q.ExecContext(ctx, r.db.Rebind(query), at.UTC(), now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery %s: %w", column, err)
	}
	return rowsAffected(res)
}

// UpdateStatus moves a delivery from one status to another. It reports false
// when the delivery is no longer in status from.
func (r *DeliveryRepository) UpdateStatus(ctx context.Context, id, from, to, errorCode, errorMessage string) (bool, error) {
	ts := now()
	set := "status = ?, updated_at = ?"
	args := []any{to, ts}

	switch to {
	case models.DeliveryStatusDelivered:
		set += ", delivered_at = ?"
		args = append(args, ts)
	case models.DeliveryStatusSent:
		set += ", sent_at = COALESCE(sent_at, ?)"
		args = append(args, ts)
	case models.DeliveryStatusFailed, models.DeliveryStatusBounced:
		set += ", error_code = ?, error_message = ?"
		args = append(args, errorCode, errorMessage)
	}
	args = append(args, id, from)

	query := fmt.Sprintf("UPDATE deliveries SET %s WHERE id = ? AND status = ?", set)
	res, err := r.q.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to update delivery status: %w", err)
	}
	return rowsAffected(res)
}

// CountByCampaign returns delivery counts per status for a campaign
func (r *DeliveryRepository) CountByCampaign(ctx context.Context, campaignID string) (map[string]int, error) {
	rows, err := r.q.QueryContext(ctx, r.db.Rebind(
		"SELECT status, COUNT(*) FROM deliveries WHERE campaign_id = ? GROUP BY status"), campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanDelivery(s scanner) (*models.Delivery, error) {
	var d models.Delivery
	var channel string
	var sentAt, deliveredAt, openedAt, clickedAt sql.NullTime

	err := s.Scan(
		&d.ID, &d.CampaignID, &d.ContactID, &d.ExternalMessageID, &channel, &d.RecipientAddress, &d.Provider, &d.Status,
		&sentAt, &deliveredAt, &openedAt, &clickedAt, &d.ErrorCode, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Channel = models.Channel(channel)
	d.SentAt = timePtr(sentAt)
	d.DeliveredAt = timePtr(deliveredAt)
	d.OpenedAt = timePtr(openedAt)
	d.ClickedAt = timePtr(clickedAt)
	return &d, nil
}
