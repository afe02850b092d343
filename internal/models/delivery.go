package models

import "time"

// Delivery statuses
const (
	DeliveryStatusQueued    = "queued"
	DeliveryStatusSent      = "sent"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusBounced   = "bounced"
)

// Delivery is the per-recipient record of a campaign send
type Delivery struct {
	ID                string     `json:"id"`
	CampaignID        string     `json:"campaign_id"`
	ContactID         string     `json:"contact_id,omitempty"`
	ExternalMessageID string     `json:"external_message_id,omitempty"`
	Channel           Channel    `json:"channel"`
	RecipientAddress  string     `json:"recipient_address"`
	Provider          string     `json:"provider,omitempty"`
	Status            string     `json:"status"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	OpenedAt          *time.Time `json:"opened_at,omitempty"`
	ClickedAt         *time.Time `json:"clicked_at,omitempty"`
	ErrorCode         string     `json:"error_code,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// deliveryTransitions lists allowed forward moves driven by provider receipts
var deliveryTransitions = map[string][]string{
	DeliveryStatusQueued:    {DeliveryStatusSent, DeliveryStatusDelivered, DeliveryStatusFailed},
	DeliveryStatusSent:      {DeliveryStatusDelivered, DeliveryStatusFailed, DeliveryStatusBounced},
	DeliveryStatusDelivered: {DeliveryStatusBounced},
}

// CanAdvanceDelivery reports whether a delivery may move from one status to another
func CanAdvanceDelivery(from, to string) bool {
	for _, s := range deliveryTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Log statuses
const (
	LogStatusSent   = "sent"
	LogStatusFailed = "failed"
)

// MessageLog records a direct, non-campaign send
type MessageLog struct {
	ID                string     `json:"id"`
	OrganizationID    string     `json:"organization_id"`
	ContactID         string     `json:"contact_id,omitempty"`
	TemplateID        string     `json:"template_id,omitempty"`
	Channel           Channel    `json:"channel"`
	Recipient         string     `json:"recipient"`
	Subject           string     `json:"subject,omitempty"`
	Status            string     `json:"status"`
	Provider          string     `json:"provider,omitempty"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
