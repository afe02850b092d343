package db

import "fmt"

// Migrate creates the schema. Statements are idempotent.
func (db *DB) Migrate() error {
	migrations := []string{
		migrationCampaigns,
		migrationDeliveries,
		migrationMessageLogs,
		indexCampaignsOrganization,
		indexDeliveriesCampaign,
		indexDeliveriesExternal,
		indexMessageLogsOrganization,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const migrationCampaigns = `
CREATE TABLE IF NOT EXISTS campaigns (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    template_id TEXT NOT NULL DEFAULT '',
    channel TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    target_group_id TEXT NOT NULL DEFAULT '',
    recipient_count INTEGER NOT NULL DEFAULT 0,
    messages_sent INTEGER NOT NULL DEFAULT 0,
    messages_delivered INTEGER NOT NULL DEFAULT 0,
    messages_failed INTEGER NOT NULL DEFAULT 0,
    messages_opened INTEGER NOT NULL DEFAULT 0,
    messages_clicked INTEGER NOT NULL DEFAULT 0,
    messages_bounced INTEGER NOT NULL DEFAULT 0,
    messages_unsubscribed INTEGER NOT NULL DEFAULT 0,
    scheduled_at TIMESTAMP,
    sent_at TIMESTAMP,
    completed_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const migrationDeliveries = `
CREATE TABLE IF NOT EXISTS deliveries (
    id TEXT PRIMARY KEY,
    campaign_id TEXT NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
    contact_id TEXT NOT NULL DEFAULT '',
    external_message_id TEXT NOT NULL DEFAULT '',
    channel TEXT NOT NULL,
    recipient_address TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'queued',
    sent_at TIMESTAMP,
    delivered_at TIMESTAMP,
    opened_at TIMESTAMP,
    clicked_at TIMESTAMP,
    error_code TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const migrationMessageLogs = `
CREATE TABLE IF NOT EXISTS message_logs (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    contact_id TEXT NOT NULL DEFAULT '',
    template_id TEXT NOT NULL DEFAULT '',
    channel TEXT NOT NULL,
    recipient TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    provider TEXT NOT NULL DEFAULT '',
    provider_message_id TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    sent_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL
);
`

const indexCampaignsOrganization = `CREATE INDEX IF NOT EXISTS idx_campaigns_organization ON campaigns(organization_id, created_at)`

const indexDeliveriesCampaign = `CREATE INDEX IF NOT EXISTS idx_deliveries_campaign ON deliveries(campaign_id)`

const indexDeliveriesExternal = `CREATE INDEX IF NOT EXISTS idx_deliveries_external ON deliveries(external_message_id)`

const indexMessageLogsOrganization = `CREATE INDEX IF NOT EXISTS idx_message_logs_organization ON message_logs(organization_id, created_at)`
