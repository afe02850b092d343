// Package tracking records delivery receipts and open/click engagement.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/foxzi/msghub/internal/events"
	"github.com/foxzi/msghub/internal/metrics"
	"github.com/foxzi/msghub/internal/models"
	"github.com/foxzi/msghub/internal/repository"
)

// ErrNotFound is returned when a tracked delivery does not exist
var ErrNotFound = errors.New("delivery not found")

// DefaultFallbackURL is used when a click carries no usable target
const DefaultFallbackURL = "https://example.com"

// Options configures a Tracker
type Options struct {
	FallbackURL string
	Publisher   events.Publisher
	EventDriver string
	Logger      *slog.Logger
}

// Tracker applies engagement and receipt events to deliveries and campaign counters
type Tracker struct {
	store       *repository.Store
	fallbackURL string
	publisher   events.Publisher
	eventDriver string
	logger      *slog.Logger
}

// New creates a tracker
func New(store *repository.Store, opts Options) *Tracker {
	if opts.FallbackURL == "" {
		opts.FallbackURL = DefaultFallbackURL
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		store:       store,
		fallbackURL: opts.FallbackURL,
		publisher:   opts.Publisher,
		eventDriver: opts.EventDriver,
		logger:      opts.Logger.With("component", "tracking"),
	}
}

// RecordOpen marks the delivery opened. Only the first call counts.
func (t *Tracker) RecordOpen(ctx context.Context, deliveryID string) error {
	d, first, err := t.markOnce(ctx, deliveryID, "open")
	if err != nil {
		return err
	}
	if first {
		metrics.IncTrackingEvent("open")
		t.publish(ctx, d, events.Event{Type: events.TypeOpened})
	}
	return nil
}

// RecordClick marks the delivery clicked and returns the redirect target.
// Only the first call counts.
func (t *Tracker) RecordClick(ctx context.Context, deliveryID, target string) (string, error) {
	redirect := t.SafeTarget(target)

	d, first, err := t.markOnce(ctx, deliveryID, "click")
	if err != nil {
		return "", err
	}
	if first {
		metrics.IncTrackingEvent("click")
		t.publish(ctx, d, events.Event{Type: events.TypeClicked, URL: redirect})
	}
	return redirect, nil
}

func (t *Tracker) markOnce(ctx context.Context, deliveryID, kind string) (*models.Delivery, bool, error) {
	if deliveryID == "" {
		return nil, false, ErrNotFound
	}

	var (
		d     *models.Delivery
		first bool
	)
	err := t.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		d, err = tx.Deliveries.GetByID(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrNotFound
		}

		at := time.Now().UTC()
		delta := models.Counters{}
		if kind == "open" {
			first, err = tx.Deliveries.MarkOpened(ctx, deliveryID, at)
			delta.Opened = 1
		} else {
			first, err = tx.Deliveries.MarkClicked(ctx, deliveryID, at)
			delta.Clicked = 1
		}
		if err != nil || !first {
			return err
		}
		return tx.Campaigns.IncrementCounters(ctx, d.CampaignID, delta)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("failed to record %s: %w", kind, err)
		}
		return nil, false, err
	}
	return d, first, nil
}

// SafeTarget returns target when it is an absolute http(s) URL, or the fallback
func (t *Tracker) SafeTarget(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return t.fallbackURL
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return t.fallbackURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return t.fallbackURL
	}
	return u.String()
}

// RecordStatus applies a provider receipt to the delivery with the given
// provider message ID. It reports whether the delivery changed; receipts
// that would move a delivery backward are ignored.
func (t *Tracker) RecordStatus(ctx context.Context, externalID, providerStatus, errorCode, errorMessage string) (bool, error) {
	to := NormalizeStatus(providerStatus)
	if to == "" {
		return false, fmt.Errorf("unknown delivery status %q", providerStatus)
	}

	var (
		d       *models.Delivery
		changed bool
	)
	err := t.store.InTx(ctx, func(tx *repository.Store) error {
		var err error
		d, err = tx.Deliveries.GetByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrNotFound
		}
		if !models.CanAdvanceDelivery(d.Status, to) {
			return nil
		}

		changed, err = tx.Deliveries.UpdateStatus(ctx, d.ID, d.Status, to, errorCode, errorMessage)
		if err != nil || !changed {
			return err
		}

		delta := models.Counters{}
		switch to {
		case models.DeliveryStatusDelivered:
			delta.Delivered = 1
		case models.DeliveryStatusBounced:
			delta.Bounced = 1
		case models.DeliveryStatusFailed:
			// a send the provider later rejects moves from sent to failed
			delta.Failed = 1
			if d.Status == models.DeliveryStatusSent {
				delta.Sent = -1
			}
		default:
			return nil
		}
		return tx.Campaigns.IncrementCounters(ctx, d.CampaignID, delta)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("failed to record status: %w", err)
		}
		return false, err
	}

	if changed {
		metrics.IncTrackingEvent("status_" + to)
		t.publish(ctx, d, events.Event{
			Type:   events.TypeStatus,
			Status: to,
			Error:  errorMessage,
		})
		t.logger.Debug("delivery status updated", "delivery_id", d.ID, "from", d.Status, "to", to)
	}
	return changed, nil
}

// NormalizeStatus maps provider receipt statuses onto delivery statuses.
// It returns "" for statuses it does not know.
func NormalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "accepted", "scheduled", "sending":
		return models.DeliveryStatusQueued
	case "sent":
		return models.DeliveryStatusSent
	case "delivered", "read", "received":
		return models.DeliveryStatusDelivered
	case "failed", "undelivered", "rejected", "canceled":
		return models.DeliveryStatusFailed
	case "bounced", "bounce":
		return models.DeliveryStatusBounced
	}
	return ""
}

func (t *Tracker) publish(ctx context.Context, d *models.Delivery, e events.Event) {
	e.CampaignID = d.CampaignID
	e.DeliveryID = d.ID
	e.ContactID = d.ContactID
	e.Channel = string(d.Channel)
	e.Provider = d.Provider
	e.MessageID = d.ExternalMessageID
	events.PublishAll(ctx, t.publisher, t.eventDriver, t.logger, []events.Event{e})
}
