package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/msghub/internal/metrics"
	"github.com/foxzi/msghub/internal/models"
	"github.com/foxzi/msghub/internal/personalize"
	"github.com/foxzi/msghub/internal/provider"
	"github.com/foxzi/msghub/internal/tracking"
)

// outcome is the result for one recipient and the row that records it
type outcome struct {
	detail   Detail
	delivery *models.Delivery   // campaign path
	log      *models.MessageLog // direct path
}

// sendAll fans the recipients out over a bounded pool and waits for all of them
func (d *Dispatcher) sendAll(ctx context.Context, req *Request, client provider.Client, campaign *models.Campaign, logger *slog.Logger) []outcome {
	outcomes := make([]outcome, len(req.Recipients))
	sem := make(chan struct{}, d.opts.Concurrency)
	var wg sync.WaitGroup

	for i := range req.Recipients {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = d.sendOne(ctx, req, &req.Recipients[i], client, campaign, logger)
		}(i)
	}

	wg.Wait()
	return outcomes
}

func (d *Dispatcher) sendOne(ctx context.Context, req *Request, r *models.Recipient, client provider.Client, campaign *models.Campaign, logger *slog.Logger) (out outcome) {
	tmpl := req.Template
	ch := tmpl.Channel

	out.detail = Detail{
		ContactID:   r.ID,
		ContactName: r.FullName(),
		Channel:     ch,
		Provider:    client.Name(),
	}
	if campaign != nil {
		out.detail.DeliveryID = uuid.New().String()
	}

	var (
		addr    string
		subject string
	)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic while sending", "contact_id", r.ID, "panic", p, "stack", string(debug.Stack()))
			out.detail.Success = false
			out.detail.MessageID = ""
			out.detail.Error = fmt.Sprintf("internal error: %v", p)
		}
		d.record(&out, req, campaign, addr, subject)
	}()

	addr = r.AddressFor(ch)
	if addr == "" {
		out.detail.Error = fmt.Sprintf("no %s recipient", ch)
		return out
	}

	content := personalize.Personalize(tmpl, r, req.Variables)
	subject = content.Subject

	msg := &provider.Message{
		To:      addr,
		Subject: content.Subject,
		Body:    content.Body,
		HTML:    ch == models.ChannelEmail && tmpl.IsHTML(),
	}
	if ch == models.ChannelWhatsApp && tmpl.ExternalTemplate != "" {
		msg.Template = tmpl.ExternalTemplate
		msg.TemplateParams = personalize.Params(tmpl.ExternalParams, r, req.Variables)
	}
	if campaign != nil && msg.HTML && d.opts.TrackingEnabled && d.opts.PublicURL != "" {
		msg.Body = tracking.Instrument(msg.Body, d.opts.PublicURL, out.detail.DeliveryID, d.opts.RewriteLinks)
	}

	res := d.send(ctx, client, msg)

	if !res.Success && ch == models.ChannelSMS {
		if fb, ok := d.resolver.SMSFallback(client.Name()); ok {
			fb = d.wrap(fb, req.OrganizationID)
			fres := d.send(ctx, fb, msg)
			metrics.IncFallback(fres.Success)
			if fres.Success {
				logger.Warn("primary sms provider failed, sent through fallback",
					"contact_id", r.ID, "primary", client.Name(), "error", res.Error)
				res = fres
				res.Fallback = true
			} else {
				res.Error = fmt.Sprintf("%s; fallback %s: %s", res.Error, fb.Name(), fres.Error)
			}
		}
	}

	out.detail.Success = res.Success
	out.detail.MessageID = res.MessageID
	out.detail.Error = res.Error
	out.detail.Fallback = res.Fallback
	if res.Provider != "" {
		out.detail.Provider = res.Provider
	}

	if !res.Success {
		logger.Warn("send failed", "contact_id", r.ID, "error", res.Error)
	}
	return out
}

func (d *Dispatcher) send(ctx context.Context, c provider.Client, msg *provider.Message) provider.Result {
	start := time.Now()
	res := c.Send(ctx, msg)
	metrics.RecordSend(string(c.Channel()), c.Name(), res.Success, time.Since(start).Seconds())
	return res
}

// record builds the row for the outcome
func (d *Dispatcher) record(out *outcome, req *Request, campaign *models.Campaign, addr, subject string) {
	det := out.detail
	now := time.Now().UTC()

	if campaign != nil {
		del := &models.Delivery{
			ID:                det.DeliveryID,
			CampaignID:        campaign.ID,
			ContactID:         det.ContactID,
			ExternalMessageID: det.MessageID,
			Channel:           det.Channel,
			RecipientAddress:  addr,
			Provider:          det.Provider,
			Status:            models.DeliveryStatusSent,
		}
		if det.Success {
			del.SentAt = &now
		} else {
			del.Status = models.DeliveryStatusFailed
			del.ErrorMessage = det.Error
		}
		out.delivery = del
		return
	}

	l := &models.MessageLog{
		OrganizationID:    req.OrganizationID,
		ContactID:         det.ContactID,
		TemplateID:        req.Template.ID,
		Channel:           det.Channel,
		Recipient:         addr,
		Subject:           subject,
		Status:            models.LogStatusSent,
		Provider:          det.Provider,
		ProviderMessageID: det.MessageID,
	}
	if det.Success {
		l.SentAt = &now
	} else {
		l.Status = models.LogStatusFailed
		l.ErrorMessage = det.Error
	}
	out.log = l
}
