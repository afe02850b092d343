package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/foxzi/msghub/internal/models"
	"github.com/foxzi/msghub/internal/phone"
)

// WhatsAppBusiness sends messages through a WhatsApp Business Cloud API endpoint
type WhatsAppBusiness struct {
	endpoint   string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewWhatsAppBusiness creates a WhatsApp Business API client
func NewWhatsAppBusiness(endpoint, apiKey string, timeout time.Duration) *WhatsAppBusiness {
	return &WhatsAppBusiness{
		endpoint:   endpoint,
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: newHTTPClient(timeout),
	}
}

func (c *WhatsAppBusiness) Name() string            { return models.WhatsAppProviderBusiness }
func (c *WhatsAppBusiness) Channel() models.Channel { return models.ChannelWhatsApp }

type waRequest struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *waText     `json:"text,omitempty"`
	Template         *waTemplate `json:"template,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components,omitempty"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func buildWhatsAppRequest(to string, msg *Message) waRequest {
	req := waRequest{MessagingProduct: "whatsapp", To: to}

	if msg.Template == "" {
		req.Type = "text"
		req.Text = &waText{Body: msg.Body}
		return req
	}

	req.Type = "template"
	req.Template = &waTemplate{
		Name:     msg.Template,
		Language: waLanguage{Code: "en"},
	}
	if len(msg.TemplateParams) > 0 {
		params := make([]waParameter, len(msg.TemplateParams))
		for i, p := range msg.TemplateParams {
			params[i] = waParameter{Type: "text", Text: p}
		}
		req.Template.Components = []waComponent{{Type: "body", Parameters: params}}
	}
	return req
}

func (c *WhatsAppBusiness) Send(ctx context.Context, msg *Message) Result {
	number := phone.Normalize(msg.To)
	if number == "" {
		return failure(c.Name(), "invalid phone number %q", msg.To)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := postJSON(ctx, c.httpClient, c.endpoint, auth{bearer: c.apiKey}, buildWhatsAppRequest(number, msg))
	if err != nil {
		return failure(c.Name(), "%v", err)
	}

	var body struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = resp.decode(&body)

	if !statusIn(resp.StatusCode, http.StatusOK, http.StatusCreated) {
		if body.Error.Message != "" {
			return failure(c.Name(), "HTTP %d: %s", resp.StatusCode, body.Error.Message)
		}
		return failure(c.Name(), "HTTP %d: %s", resp.StatusCode, resp.snippet())
	}

	var id string
	if len(body.Messages) > 0 {
		id = body.Messages[0].ID
	}
	return success(c.Name(), id)
}
