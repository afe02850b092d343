package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBody caps how much of a provider response is read
const maxResponseBody = 1 << 20

// httpResponse is a buffered provider response
type httpResponse struct {
	StatusCode int
	Body       []byte
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// auth configures request authentication
type auth struct {
	bearer   string
	username string
	password string
}

func (a auth) apply(req *http.Request) {
	switch {
	case a.bearer != "":
		req.Header.Set("Authorization", "Bearer "+a.bearer)
	case a.username != "" || a.password != "":
		req.SetBasicAuth(a.username, a.password)
	}
}

// postJSON sends body as JSON and buffers the response
func postJSON(ctx context.Context, client *http.Client, endpoint string, a auth, body any) (*httpResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return do(ctx, client, endpoint, "application/json", a, bytes.NewReader(data))
}

// postForm sends form-encoded values and buffers the response
func postForm(ctx context.Context, client *http.Client, endpoint string, a auth, values url.Values) (*httpResponse, error) {
	return do(ctx, client, endpoint, "application/x-www-form-urlencoded", a, strings.NewReader(values.Encode()))
}

func do(ctx context.Context, client *http.Client, endpoint, contentType string, a auth, body io.Reader) (*httpResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	a.apply(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &httpResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

// decode unmarshals a response body, tolerating an empty one
func (r *httpResponse) decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// snippet returns a short printable excerpt of the body for error messages
func (r *httpResponse) snippet() string {
	s := strings.TrimSpace(string(r.Body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func statusIn(code int, allowed ...int) bool {
	for _, c := range allowed {
		if code == c {
			return true
		}
	}
	return false
}
