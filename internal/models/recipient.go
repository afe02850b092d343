package models

import (
	"strings"

	"github.com/foxzi/msghub/internal/phone"
)

// Recipient is a contact snapshot used for a single dispatch
type Recipient struct {
	ID         string         `json:"id"`
	FirstName  string         `json:"first_name,omitempty"`
	LastName   string         `json:"last_name,omitempty"`
	Email      string         `json:"email,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	Mobile     string         `json:"mobile,omitempty"`
	Company    string         `json:"company,omitempty"`
	JobTitle   string         `json:"job_title,omitempty"`
	Department string         `json:"department,omitempty"`
	Industry   string         `json:"industry,omitempty"`
	Website    string         `json:"website,omitempty"`
	Address    string         `json:"address,omitempty"`
	City       string         `json:"city,omitempty"`
	State      string         `json:"state,omitempty"`
	Country    string         `json:"country,omitempty"`
	PostalCode string         `json:"postal_code,omitempty"`
	Custom     map[string]any `json:"custom_fields,omitempty"`
}

// FullName returns "first last" trimmed
func (r *Recipient) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// AddressFor returns the channel address for the recipient.
// Phone-based channels prefer phone over mobile.
func (r *Recipient) AddressFor(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return strings.TrimSpace(r.Email)
	case ChannelSMS, ChannelWhatsApp:
		if p := strings.TrimSpace(r.Phone); p != "" && phone.Normalize(p) != "" {
			return p
		}
		if m := strings.TrimSpace(r.Mobile); m != "" && phone.Normalize(m) != "" {
			return m
		}
	}
	return ""
}
