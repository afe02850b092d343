package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/foxzi/msghub/internal/db"
	"github.com/foxzi/msghub/internal/models"
	"github.com/google/uuid"
)

type CampaignRepository struct {
	db *db.DB
	q  querier
}

func NewCampaignRepository(d *db.DB) *CampaignRepository {
	return &CampaignRepository{db: d, q: d.DB}
}

// WithTx returns a copy of the repository that runs on tx
func (r *CampaignRepository) WithTx(tx *sql.Tx) *CampaignRepository {
	return &CampaignRepository{db: r.db, q: tx}
}

const campaignColumns = `id, name, organization_id, template_id, channel, status, target_group_id, recipient_count,
	messages_sent, messages_delivered, messages_failed, messages_opened, messages_clicked, messages_bounced, messages_unsubscribed,
	scheduled_at, sent_at, completed_at, created_at, updated_at`

// Create inserts a campaign, assigning an ID when empty
func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = models.CampaignStatusDraft
	}
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt

	_, err := r.q.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.Name, c.OrganizationID, c.TemplateID, string(c.Channel), c.Status, c.TargetGroupID, c.RecipientCount,
		c.Sent, c.Delivered, c.Failed, c.Opened, c.Clicked, c.Bounced, c.Unsubscribed,
		nullTime(c.ScheduledAt), nullTime(c.SentAt), nullTime(c.CompletedAt), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, or nil when it does not exist
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	row := r.q.QueryRowContext(ctx, r.db.Rebind(`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`), id)

	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns campaigns matching the filter, newest first
func (r *CampaignRepository) List(ctx context.Context, filter models.CampaignFilter) ([]models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []any{}

	if filter.OrganizationID != "" {
		query += " AND organization_id = ?"
		args = append(args, filter.OrganizationID)
	}
	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, string(filter.Channel))
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := r.q.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}
	return campaigns, rows.Err()
}

// CountByStatus returns the number of campaigns in each status
func (r *CampaignRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT status, COUNT(*) FROM campaigns GROUP BY status")
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

// Transition moves a campaign to status to when its current status allows it.
// It reports false when the campaign is missing or the move is not allowed.
func (r *CampaignRepository) Transition(ctx context.Context, id, to string) (bool, error) {
	var from []string
	for _, s := range []string{
		models.CampaignStatusDraft,
		models.CampaignStatusScheduled,
		models.CampaignStatusSending,
	} {
		if models.CanTransition(s, to) {
			from = append(from, s)
		}
	}
	if len(from) == 0 {
		return false, nil
	}

	ts := now()
	set := "status = ?, updated_at = ?"
	args := []any{to, ts}
	switch to {
	case models.CampaignStatusSending:
		set += ", sent_at = ?"
		args = append(args, ts)
	case models.CampaignStatusCompleted:
		set += ", completed_at = ?"
		args = append(args, ts)
	}

	args = append(args, id)
	for _, s := range from {
		args = append(args, s)
	}

	query := fmt.Sprintf("UPDATE campaigns SET %s WHERE id = ? AND status IN (%s)",
		set, strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", "))

	res, err := r.q.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to update campaign status: %w", err)
	}
	return rowsAffected(res)
}

// IncrementCounters adds delta to the campaign counters in a single statement
func (r *CampaignRepository) IncrementCounters(ctx context.Context, id string, delta models.Counters) error {
	_, err := r.q.ExecContext(ctx, r.db.Rebind(`
		UPDATE campaigns SET
			messages_sent = messages_sent + ?,
			messages_delivered = messages_delivered + ?,
			messages_failed = messages_failed + ?,
			messages_opened = messages_opened + ?,
			messages_clicked = messages_clicked + ?,
			messages_bounced = messages_bounced + ?,
			messages_unsubscribed = messages_unsubscribed + ?,
			updated_at = ?
		WHERE id = ?`),
		delta.Sent, delta.Delivered, delta.Failed, delta.Opened, delta.Clicked, delta.Bounced, delta.Unsubscribed,
		now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign counters: %w", err)
	}
	return nil
}

// Delete removes a campaign and, through the foreign key, its deliveries
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, r.db.Rebind("DELETE FROM campaigns WHERE id = ?"), id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(s scanner) (*models.Campaign, error) {
	var c models.Campaign
	var channel string
	var scheduledAt, sentAt, completedAt sql.NullTime

	err := s.Scan(
		&c.ID, &c.Name, &c.OrganizationID, &c.TemplateID, &channel, &c.Status, &c.TargetGroupID, &c.RecipientCount,
		&c.Sent, &c.Delivered, &c.Failed, &c.Opened, &c.Clicked, &c.Bounced, &c.Unsubscribed,
		&scheduledAt, &sentAt, &completedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Channel = models.Channel(channel)
	c.ScheduledAt = timePtr(scheduledAt)
	c.SentAt = timePtr(sentAt)
	c.CompletedAt = timePtr(completedAt)
	return &c, nil
}

// Since returns the start of a trailing window of days, or nil for no window
func Since(days int) *time.Time {
	if days <= 0 {
		return nil
	}
	t := now().AddDate(0, 0, -days)
	return &t
}
