package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/foxzi/msghub/internal/models"
	"github.com/foxzi/msghub/internal/phone"
)

// Default SMS gateway endpoints
const (
	TextLocalURL  = "https://api.textlocal.in/send/"
	MSG91URL      = "https://api.msg91.com/api/v5/flow/"
	ClickatellURL = "https://platform.clickatell.com/messages"
)

// TextLocal sends SMS through the TextLocal form API
type TextLocal struct {
	endpoint   string
	apiKey     string
	username   string
	sender     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewTextLocal creates a TextLocal client. An empty endpoint uses TextLocalURL.
func NewTextLocal(endpoint, apiKey, username, sender string, timeout time.Duration) *TextLocal {
	if endpoint == "" {
		endpoint = TextLocalURL
	}
	return &TextLocal{
		endpoint:   endpoint,
		apiKey:     apiKey,
		username:   username,
		sender:     sender,
		timeout:    timeout,
		httpClient: newHTTPClient(timeout),
	}
}

func (c *TextLocal) Name() string            { return models.SMSProviderTextLocal }
func (c *TextLocal) Channel() models.Channel { return models.ChannelSMS }

func (c *TextLocal) Send(ctx context.Context, msg *Message) Result {
	number := phone.Normalize(msg.To)
	if number == "" {
		return failure(c.Name(), "invalid phone number %q", msg.To)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	values := url.Values{}
	values.Set("apikey", c.apiKey)
	values.Set("numbers", number)
	values.Set("message", msg.Body)
	values.Set("sender", c.sender)
	if c.username != "" {
		values.Set("username", c.username)
	}

	resp, err := postForm(ctx, c.httpClient, c.endpoint, auth{}, values)
	if err != nil {
		return failure(c.Name(), "%v", err)
	}

	var body struct {
		Status   string `json:"status"`
		Messages []struct {
			ID any `json:"id"`
		} `json:"messages"`
		Errors []struct {
			Code    any    `json:"code"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := resp.decode(&body); err != nil {
		return failure(c.Name(), "HTTP %d: invalid response: %v", resp.StatusCode, err)
	}

	if body.Status == "success" {
		var id string
		if len(body.Messages) > 0 {
			id = idString(body.Messages[0].ID)
		}
		return success(c.Name(), id)
	}

	if len(body.Errors) > 0 && body.Errors[0].Message != "" {
		return failure(c.Name(), "%s", body.Errors[0].Message)
	}
	return failure(c.Name(), "HTTP %d: %s", resp.StatusCode, resp.snippet())
}

// MSG91 sends SMS through the MSG91 flow API
type MSG91 struct {
	endpoint   string
	apiKey     string
	sender     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewMSG91 creates an MSG91 client. An empty endpoint uses MSG91URL.
func NewMSG91(endpoint, apiKey, sender string, timeout time.Duration) *MSG91 {
	if endpoint == "" {
		endpoint = MSG91URL
	}
	return &MSG91{
		endpoint:   endpoint,
		apiKey:     apiKey,
		sender:     sender,
		timeout:    timeout,
		httpClient: newHTTPClient(timeout),
	}
}

func (c *MSG91) Name() string            { return models.SMSProviderMSG91 }
func (c *MSG91) Channel() models.Channel { return models.ChannelSMS }

type msg91Request struct {
	Sender  string       `json:"sender"`
	Route   string       `json:"route"`
	Country string       `json:"country"`
	SMS     []msg91Batch `json:"sms"`
}

type msg91Batch struct {
	Message string   `json:"message"`
	To      []string `json:"to"`
}

func (c *MSG91) Send(ctx context.Context, msg *Message) Result {
	number := phone.Normalize(msg.To)
	if number == "" {
		return failure(c.Name(), "invalid phone number %q", msg.To)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return failure(c.Name(), "invalid endpoint: %v", err)
	}
	q := endpoint.Query()
	q.Set("apikey", c.apiKey)
	endpoint.RawQuery = q.Encode()

	req := msg91Request{
		Sender:  c.sender,
		Route:   "4",
		Country: "91",
		SMS:     []msg91Batch{{Message: msg.Body, To: []string{number}}},
	}

	resp, err := postJSON(ctx, c.httpClient, endpoint.String(), auth{}, req)
	if err != nil {
		return failure(c.Name(), "%v", err)
	}

	var body struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
		Message   string `json:"message"`
	}
	_ = resp.decode(&body)

	if resp.StatusCode == http.StatusOK && body.Type == "success" {
		return success(c.Name(), body.RequestID)
	}
	if body.Message != "" {
		return failure(c.Name(), "HTTP %d: %s", resp.StatusCode, body.Message)
	}
	return failure(c.Name(), "HTTP %d: %s", resp.StatusCode, resp.snippet())
}

// Clickatell sends SMS through the Clickatell platform API
type Clickatell struct {
	endpoint   string
	apiKey     string
	sender     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClickatell creates a Clickatell client. An empty endpoint uses ClickatellURL.
func NewClickatell(endpoint, apiKey, sender string, timeout time.Duration) *Clickatell {
	if endpoint == "" {
		endpoint = ClickatellURL
	}
	return &Clickatell{
		endpoint:   endpoint,
		apiKey:     apiKey,
		sender:     sender,
		timeout:    timeout,
		httpClient: newHTTPClient(timeout),
	}
}

func (c *Clickatell) Name() string            { return models.SMSProviderClickatell }
func (c *Clickatell) Channel() models.Channel { return models.ChannelSMS }

type clickatellRequest struct {
	Text string   `json:"text"`
	To   []string `json:"to"`
	From string   `json:"from,omitempty"`
}

func (c *Clickatell) Send(ctx context.Context, msg *Message) Result {
	number := phone.Normalize(msg.To)
	if number == "" {
		return failure(c.Name(), "invalid phone number %q", msg.To)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	req := clickatellRequest{Text: msg.Body, To: []string{number}, From: c.sender}

	resp, err := postJSON(ctx, c.httpClient, c.endpoint, auth{bearer: c.apiKey}, req)
	if err != nil {
		return failure(c.Name(), "%v", err)
	}

	if resp.StatusCode != http.StatusAccepted {
		return failure(c.Name(), "HTTP %d: %s", resp.StatusCode, resp.snippet())
	}

	var body struct {
		Messages []struct {
			APIMessageID string `json:"apiMessageId"`
			Accepted     *bool  `json:"accepted"`
			Error        any    `json:"error"`
		} `json:"messages"`
	}
	if err := resp.decode(&body); err != nil {
		return failure(c.Name(), "invalid response: %v", err)
	}

	var id string
	if len(body.Messages) > 0 {
		m := body.Messages[0]
		if m.Accepted != nil && !*m.Accepted {
			return failure(c.Name(), "message rejected: %v", m.Error)
		}
		id = m.APIMessageID
	}
	return success(c.Name(), id)
}

// CustomSMS posts to an organization-supplied HTTP gateway
type CustomSMS struct {
	endpoint   string
	auth       auth
	sender     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewCustomSMS creates a client for a generic JSON SMS gateway.
// apiKey selects bearer auth; otherwise username/password select basic auth.
func NewCustomSMS(endpoint, apiKey, username, password, sender string, timeout time.Duration) *CustomSMS {
	return &CustomSMS{
		endpoint:   endpoint,
		auth:       auth{bearer: apiKey, username: username, password: password},
		sender:     sender,
		timeout:    timeout,
		httpClient: newHTTPClient(timeout),
	}
}

func (c *CustomSMS) Name() string            { return models.SMSProviderCustom }
func (c *CustomSMS) Channel() models.Channel { return models.ChannelSMS }

type customSMSRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
	From    string `json:"from"`
}

func (c *CustomSMS) Send(ctx context.Context, msg *Message) Result {
	number := phone.Normalize(msg.To)
	if number == "" {
		return failure(c.Name(), "invalid phone number %q", msg.To)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	req := customSMSRequest{To: number, Message: msg.Body, From: c.sender}

	resp, err := postJSON(ctx, c.httpClient, c.endpoint, c.auth, req)
	if err != nil {
		return failure(c.Name(), "%v", err)
	}

	if !statusIn(resp.StatusCode, http.StatusOK, http.StatusCreated, http.StatusAccepted) {
		return failure(c.Name(), "HTTP %d: %s", resp.StatusCode, resp.snippet())
	}

	var body map[string]any
	_ = resp.decode(&body)

	var id string
	for _, key := range []string{"id", "messageId", "message_id"} {
		if v, ok := body[key]; ok && v != nil {
			id = idString(v)
			break
		}
	}
	return success(c.Name(), id)
}

// idString renders a JSON id that may arrive as a string or a number
func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
