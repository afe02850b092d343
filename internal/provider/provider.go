// Package provider implements the SMS, email and WhatsApp provider clients
// and the resolver that picks one for an organization.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxzi/msghub/internal/models"
)

// DefaultTimeout bounds a single provider call
const DefaultTimeout = 30 * time.Second

// Message is one personalized message ready to hand to a provider
type Message struct {
	To      string
	Subject string
	Body    string
	HTML    bool

	// WhatsApp template variant
	Template       string
	TemplateParams []string
}

// Result is the normalized outcome of a single send
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Provider  string `json:"provider"`
	Error     string `json:"error,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// Client sends one message through one provider.
// Send never returns an error: failures are reported in the Result.
type Client interface {
	Name() string
	Channel() models.Channel
	Send(ctx context.Context, msg *Message) Result
}

// ConfigurationError reports a missing or invalid provider configuration
type ConfigurationError struct {
	Channel  models.Channel
	Provider string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s provider not configured: %s", e.Channel, e.Reason)
	}
	return fmt.Sprintf("%s provider %q misconfigured: %s", e.Channel, e.Provider, e.Reason)
}

// IsConfigurationError checks if err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func success(provider, id string) Result {
	return Result{Success: true, MessageID: id, Provider: provider}
}

func failure(provider string, format string, args ...any) Result {
	return Result{Provider: provider, Error: fmt.Sprintf(format, args...)}
}

// withTimeout applies the provider timeout unless ctx already has an earlier deadline
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
