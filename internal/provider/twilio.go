package provider

import (
	"context"
	"errors"
	"time"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/foxzi/msghub/internal/models"
	"github.com/foxzi/msghub/internal/phone"
)

// DefaultTwilioWhatsAppFrom is the Twilio sandbox WhatsApp sender
const DefaultTwilioWhatsAppFrom = "+14155238886"

// MessageCreator is the subset of the Twilio REST API used here
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioCredentials identifies a Twilio account and sending number
type TwilioCredentials struct {
	AccountSID string
	AuthToken  string
	From       string
}

// Complete reports whether all fields are set
func (c TwilioCredentials) Complete() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

// NewTwilioAPI creates a Twilio REST client for the account
func NewTwilioAPI(creds TwilioCredentials, timeout time.Duration) MessageCreator {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: creds.AccountSID,
		Password: creds.AuthToken,
	})
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return client.Api
}

// Twilio sends SMS or WhatsApp messages through Twilio
type Twilio struct {
	api      MessageCreator
	from     string
	channel  models.Channel
	timeout  time.Duration
	provider string
}

// NewTwilioSMS creates a Twilio SMS client
func NewTwilioSMS(api MessageCreator, from string, timeout time.Duration) *Twilio {
	return &Twilio{
		api:      api,
		from:     from,
		channel:  models.ChannelSMS,
		timeout:  timeout,
		provider: models.SMSProviderTwilio,
	}
}

// NewTwilioWhatsApp creates a Twilio client that addresses whatsapp: numbers
func NewTwilioWhatsApp(api MessageCreator, from string, timeout time.Duration) *Twilio {
	if from == "" {
		from = DefaultTwilioWhatsAppFrom
	}
	return &Twilio{
		api:      api,
		from:     from,
		channel:  models.ChannelWhatsApp,
		timeout:  timeout,
		provider: models.WhatsAppProviderTwilio,
	}
}

func (c *Twilio) Name() string            { return c.provider }
func (c *Twilio) Channel() models.Channel { return c.channel }

func (c *Twilio) Send(ctx context.Context, msg *Message) Result {
	to := phone.E164(msg.To)
	if to == "" {
		return failure(c.Name(), "invalid phone number %q", msg.To)
	}
	from := c.from
	if c.channel == models.ChannelWhatsApp {
		to = "whatsapp:" + to
		from = "whatsapp:" + phone.E164(from)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(msg.Body)

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	// The Twilio SDK has no context support; the call runs under the
	// client timeout and the result is abandoned if ctx ends first.
	type outcome struct {
		msg *twilioApi.ApiV2010Message
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		m, err := c.api.CreateMessage(params)
		done <- outcome{m, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		return failure(c.Name(), "twilio request: %v", ctx.Err())
	}

	if out.err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(out.err, &restErr) {
			return failure(c.Name(), "twilio error %d: %s", restErr.Code, restErr.Message)
		}
		return failure(c.Name(), "%v", out.err)
	}

	var sid string
	if out.msg != nil && out.msg.Sid != nil {
		sid = *out.msg.Sid
	}
	return success(c.Name(), sid)
}
