package models

import "time"

// Campaign statuses
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusCompleted = "completed"
	CampaignStatusCancelled = "cancelled"
)

// Campaign is a tracked bulk dispatch of one template to a recipient set
type Campaign struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	OrganizationID string  `json:"organization_id"`
	TemplateID     string  `json:"template_id"`
	Channel        Channel `json:"channel"`
	Status         string  `json:"status"`
	TargetGroupID  string  `json:"target_group_id,omitempty"`
	RecipientCount int     `json:"recipient_count"`

	Counters

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Counters are the aggregate delivery and engagement counts of a campaign
type Counters struct {
	Sent         int `json:"messages_sent"`
	Delivered    int `json:"messages_delivered"`
	Failed       int `json:"messages_failed"`
	Opened       int `json:"messages_opened"`
	Clicked      int `json:"messages_clicked"`
	Bounced      int `json:"messages_bounced"`
	Unsubscribed int `json:"messages_unsubscribed"`
}

// campaignTransitions lists allowed forward moves of the status machine
var campaignTransitions = map[string][]string{
	CampaignStatusDraft:     {CampaignStatusScheduled, CampaignStatusSending, CampaignStatusCancelled},
	CampaignStatusScheduled: {CampaignStatusSending, CampaignStatusCancelled},
	CampaignStatusSending:   {CampaignStatusCompleted},
}

// CanTransition reports whether a campaign may move from one status to another
func CanTransition(from, to string) bool {
	for _, s := range campaignTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CampaignFilter for listing campaigns
type CampaignFilter struct {
	OrganizationID string
	Channel        Channel
	Status         string
	Since          *time.Time
	Limit          int
	Offset         int
}
