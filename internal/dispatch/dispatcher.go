// Package dispatch sends one template to a list of recipients through the
// organization's configured provider and records the outcomes.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxzi/msghub/internal/events"
	"github.com/foxzi/msghub/internal/metrics"
	"github.com/foxzi/msghub/internal/models"
	"github.com/foxzi/msghub/internal/provider"
	"github.com/foxzi/msghub/internal/ratelimit"
	"github.com/foxzi/msghub/internal/repository"
	"github.com/foxzi/msghub/internal/sandbox"
)

const (
	pathDirect   = "direct"
	pathCampaign = "campaign"
)

// Resolver picks provider clients for an organization
type Resolver interface {
	Resolve(cfg *models.OrganizationConfig, ch models.Channel) (provider.Client, error)
	SMSFallback(primary string) (provider.Client, bool)
}

// ConfigSource looks up organization messaging configuration
type ConfigSource interface {
	Organization(id string) *models.OrganizationConfig
}

// Request is one dispatch call
type Request struct {
	OrganizationID string             `json:"organization_id"`
	Template       *models.Template   `json:"template"`
	Recipients     []models.Recipient `json:"recipients"`
	Variables      map[string]any     `json:"variables,omitempty"`

	// Campaign selects the tracked delivery path when set
	Campaign *CampaignOptions `json:"campaign,omitempty"`
}

// CampaignOptions names the campaign created for a tracked dispatch
type CampaignOptions struct {
	Name          string `json:"name"`
	TargetGroupID string `json:"target_group_id,omitempty"`
}

// Detail is the outcome for one recipient
type Detail struct {
	ContactID   string         `json:"contact_id"`
	ContactName string         `json:"contact_name"`
	Channel     models.Channel `json:"channel"`
	Success     bool           `json:"success"`
	MessageID   string         `json:"message_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Provider    string         `json:"provider"`
	Fallback    bool           `json:"fallback"`
	DeliveryID  string         `json:"delivery_id,omitempty"`
}

// Result summarizes a dispatch call. Details follow the recipient order.
type Result struct {
	Success     bool     `json:"success"`
	SentCount   int      `json:"sent_count"`
	FailedCount int      `json:"failed_count"`
	Details     []Detail `json:"details"`
	CampaignID  string   `json:"campaign_id,omitempty"`
}

// Options configures a Dispatcher
type Options struct {
	Concurrency   int
	MaxRecipients int

	// Open and click tracking for campaign HTML email
	TrackingEnabled bool
	RewriteLinks    bool
	PublicURL       string

	// Sandbox captures messages instead of sending them when set
	Sandbox          *sandbox.Storage
	// SandboxErrorRate makes that share of captured sends fail, 0 disables
	SandboxErrorRate float64

	// Limiter enforces message quotas when set
	Limiter *ratelimit.Limiter

	Publisher   events.Publisher
	EventDriver string
	Logger      *slog.Logger
}

// Dispatcher runs dispatch calls
type Dispatcher struct {
	resolver Resolver
	configs  ConfigSource
	store    *repository.Store
	opts     Options
	logger   *slog.Logger
}

// New creates a dispatcher
func New(resolver Resolver, configs ConfigSource, store *repository.Store, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		resolver: resolver,
		configs:  configs,
		store:    store,
		opts:     opts,
		logger:   opts.Logger.With("component", "dispatch"),
	}
}

// Dispatch personalizes and sends the template to every recipient.
//
// Validation and provider configuration errors abort the call before any
// message is sent. Once sending starts the caller's cancellation is ignored
// and every recipient gets a Detail; a
// storage failure afterwards is returned as a PersistenceError together
// with the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	path := pathDirect
	if req.Campaign != nil {
		path = pathCampaign
	}

	if err := d.validate(&req); err != nil {
		metrics.IncDispatch(path, "invalid")
		return nil, err
	}

	ch := req.Template.Channel
	client, err := d.resolver.Resolve(d.configs.Organization(req.OrganizationID), ch)
	if err != nil {
		metrics.IncDispatch(path, "config_error")
		return nil, err
	}
	client = d.wrap(client, req.OrganizationID)

	logger := d.logger.With(
		"organization_id", req.OrganizationID,
		"provider", provider.Describe(client),
		"recipients", len(req.Recipients),
	)

	quota, err := d.reserve(ctx, &req)
	if err != nil {
		metrics.IncDispatch(path, "rate_limited")
		logger.Warn("dispatch rejected by rate limit", "error", err)
		return nil, err
	}

	// From here the call runs to completion. Only the provider timeout
	// bounds each send, and the outcomes are always committed.
	ctx = context.WithoutCancel(ctx)

	var campaign *models.Campaign
	if req.Campaign != nil {
		campaign, err = d.startCampaign(ctx, &req)
		if err != nil {
			d.release(ctx, quota)
			metrics.IncDispatch(path, "persistence_error")
			return nil, err
		}
		logger = logger.With("campaign_id", campaign.ID)
	}

	logger.Info("dispatch started")

	outcomes := d.sendAll(ctx, &req, client, campaign, logger)

	res := &Result{Success: true, Details: make([]Detail, len(outcomes))}
	if campaign != nil {
		res.CampaignID = campaign.ID
	}
	for i, o := range outcomes {
		res.Details[i] = o.detail
		if o.detail.Success {
			res.SentCount++
		} else {
			res.FailedCount++
		}
	}

	if err := d.commit(ctx, &req, campaign, outcomes); err != nil {
		metrics.IncDispatch(path, "persistence_error")
		logger.Error("failed to store dispatch outcomes", "error", err)
		return res, err
	}

	metrics.IncDispatch(path, "ok")
	logger.Info("dispatch finished", "sent", res.SentCount, "failed", res.FailedCount)

	events.PublishAll(ctx, d.opts.Publisher, d.opts.EventDriver, d.logger, outcomeEvents(req.OrganizationID, res.CampaignID, outcomes))

	return res, nil
}

func (d *Dispatcher) validate(req *Request) error {
	if strings.TrimSpace(req.OrganizationID) == "" {
		return &ValidationError{Field: "organization_id", Reason: "is required"}
	}

	tmpl := req.Template
	if tmpl == nil {
		return &ValidationError{Field: "template", Reason: "is required"}
	}
	if !tmpl.Channel.Valid() {
		return &ValidationError{Field: "template.channel", Reason: "must be sms, email or whatsapp"}
	}
	if strings.TrimSpace(tmpl.Body) == "" && !(tmpl.Channel == models.ChannelWhatsApp && tmpl.ExternalTemplate != "") {
		return &ValidationError{Field: "template.body", Reason: "is required"}
	}
	if tmpl.Channel == models.ChannelEmail && strings.TrimSpace(tmpl.Subject) == "" {
		return &ValidationError{Field: "template.subject", Reason: "is required for email"}
	}

	if len(req.Recipients) == 0 {
		return &ValidationError{Field: "recipients", Reason: "must not be empty"}
	}
	if d.opts.MaxRecipients > 0 && len(req.Recipients) > d.opts.MaxRecipients {
		return &ValidationError{Field: "recipients", Reason: "exceeds the per-call limit"}
	}

	if req.Campaign != nil && strings.TrimSpace(req.Campaign.Name) == "" {
		return &ValidationError{Field: "campaign.name", Reason: "is required"}
	}
	return nil
}

// reserve takes one quota unit per recipient. The returned request is nil
// when no limiter is configured.
func (d *Dispatcher) reserve(ctx context.Context, req *Request) (*ratelimit.Request, error) {
	if d.opts.Limiter == nil {
		return nil, nil
	}

	rl := &ratelimit.Request{
		OrganizationID: req.OrganizationID,
		Channel:        req.Template.Channel,
		Count:          len(req.Recipients),
	}
	res, err := d.opts.Limiter.Allow(ctx, rl)
	if err != nil {
		return nil, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if !res.Allowed {
		return nil, &RateLimitError{Level: string(res.DeniedBy), Key: res.DeniedKey, RetryAfter: res.RetryAfter}
	}
	return rl, nil
}

func (d *Dispatcher) release(ctx context.Context, rl *ratelimit.Request) {
	if rl != nil {
		d.opts.Limiter.Release(ctx, rl)
	}
}

func (d *Dispatcher) wrap(c provider.Client, orgID string) provider.Client {
	if d.opts.Sandbox == nil {
		return c
	}
	sc := sandbox.Wrap(c, d.opts.Sandbox, orgID, d.logger)
	if d.opts.SandboxErrorRate > 0 {
		sc.SetErrorSimulation(true, d.opts.SandboxErrorRate)
	}
	return sc
}

// startCampaign stores the campaign and moves it to sending
func (d *Dispatcher) startCampaign(ctx context.Context, req *Request) (*models.Campaign, error) {
	c := &models.Campaign{
		Name:           req.Campaign.Name,
		OrganizationID: req.OrganizationID,
		TemplateID:     req.Template.ID,
		Channel:        req.Template.Channel,
		TargetGroupID:  req.Campaign.TargetGroupID,
		RecipientCount: len(req.Recipients),
	}

	err := d.store.InTx(ctx, func(tx *repository.Store) error {
		if err := tx.Campaigns.Create(ctx, c); err != nil {
			return err
		}
		_, err := tx.Campaigns.Transition(ctx, c.ID, models.CampaignStatusSending)
		return err
	})
	if err != nil {
		return nil, &PersistenceError{Op: "create campaign", Err: err}
	}
	c.Status = models.CampaignStatusSending
	return c, nil
}

// commit stores every outcome in one transaction
func (d *Dispatcher) commit(ctx context.Context, req *Request, campaign *models.Campaign, outcomes []outcome) error {
	err := d.store.InTx(ctx, func(tx *repository.Store) error {
		if campaign == nil {
			for _, o := range outcomes {
				if err := tx.Logs.Create(ctx, o.log); err != nil {
					return err
				}
			}
			return nil
		}

		var delta models.Counters
		for _, o := range outcomes {
			if err := tx.Deliveries.Create(ctx, o.delivery); err != nil {
				return err
			}
			if o.detail.Success {
				delta.Sent++
			} else {
				delta.Failed++
			}
		}
		if err := tx.Campaigns.IncrementCounters(ctx, campaign.ID, delta); err != nil {
			return err
		}
		_, err := tx.Campaigns.Transition(ctx, campaign.ID, models.CampaignStatusCompleted)
		return err
	})
	if err != nil {
		return &PersistenceError{Op: "store dispatch results", Err: err}
	}
	return nil
}

func outcomeEvents(orgID, campaignID string, outcomes []outcome) []events.Event {
	evs := make([]events.Event, 0, len(outcomes))
	for _, o := range outcomes {
		e := events.Event{
			Type:           events.TypeSent,
			OrganizationID: orgID,
			CampaignID:     campaignID,
			DeliveryID:     o.detail.DeliveryID,
			ContactID:      o.detail.ContactID,
			Channel:        string(o.detail.Channel),
			Provider:       o.detail.Provider,
			MessageID:      o.detail.MessageID,
		}
		if !o.detail.Success {
			e.Type = events.TypeFailed
			e.Error = o.detail.Error
		}
		evs = append(evs, e)
	}
	return evs
}
