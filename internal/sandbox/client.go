package sandbox

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/msghub/internal/models"
	"github.com/foxzi/msghub/internal/provider"
)

// simulatedErrors are returned when error simulation is enabled
var simulatedErrors = []string{
	"HTTP 500: simulated gateway error",
	"HTTP 429: simulated rate limit",
	"HTTP 400: simulated invalid recipient",
	"connection reset by peer (simulated)",
}

// Client wraps a provider client and captures messages instead of sending them
type Client struct {
	inner            provider.Client
	storage          *Storage
	orgID            string
	logger           *slog.Logger
	simulateErrors   bool
	errorProbability float64 // 0.0 to 1.0
}

// Wrap returns a capturing client that reports the wrapped provider's identity
func Wrap(inner provider.Client, storage *Storage, orgID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		inner:            inner,
		storage:          storage,
		orgID:            orgID,
		logger:           logger,
		errorProbability: 0.1,
	}
}

// SetErrorSimulation enables/disables error simulation
func (c *Client) SetErrorSimulation(enabled bool, probability float64) {
	c.simulateErrors = enabled
	if probability > 0 && probability <= 1 {
		c.errorProbability = probability
	}
}

func (c *Client) Name() string { return c.inner.Name() }

func (c *Client) Channel() models.Channel { return c.inner.Channel() }

func (c *Client) Send(ctx context.Context, msg *provider.Message) provider.Result {
	captured := &Message{
		ID:             uuid.New().String(),
		OrganizationID: c.orgID,
		Channel:        c.inner.Channel(),
		Provider:       c.inner.Name(),
		To:             msg.To,
		Subject:        msg.Subject,
		Body:           msg.Body,
		HTML:           msg.HTML,
		Template:       msg.Template,
		TemplateParams: msg.TemplateParams,
		CapturedAt:     time.Now(),
	}

	if c.simulateErrors && rand.Float64() < c.errorProbability {
		captured.SimulatedErr = simulatedErrors[rand.Intn(len(simulatedErrors))]
	}

	if err := c.storage.Save(ctx, captured); err != nil {
		c.logger.Error("sandbox: failed to save message", "error", err)
		return provider.Result{Provider: c.inner.Name(), Error: "sandbox: " + err.Error()}
	}

	if captured.SimulatedErr != "" {
		return provider.Result{Provider: c.inner.Name(), Error: captured.SimulatedErr}
	}

	c.logger.Info("sandbox: message captured",
		"id", captured.ID,
		"channel", captured.Channel,
		"provider", captured.Provider,
		"to", captured.To,
	)

	return provider.Result{Success: true, MessageID: "sandbox-" + captured.ID, Provider: c.inner.Name()}
}
