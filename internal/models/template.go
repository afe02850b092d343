package models

import "strings"

// Template is a reusable message body owned by an organization
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Channel     Channel  `json:"channel"`
	Subject     string   `json:"subject,omitempty"`
	Body        string   `json:"body"`
	ContentType string   `json:"content_type,omitempty"` // plain, html or empty for auto-detect
	Variables   []string `json:"variables,omitempty"`

	// WhatsApp pre-approved template name and its positional body parameters
	ExternalTemplate string   `json:"external_template,omitempty"`
	ExternalParams   []string `json:"external_params,omitempty"`
}

// IsHTML reports whether the body should be sent as HTML
func (t *Template) IsHTML() bool {
	switch t.ContentType {
	case ContentTypeHTML:
		return true
	case ContentTypePlain:
		return false
	}
	return strings.Contains(t.Body, "<")
}
