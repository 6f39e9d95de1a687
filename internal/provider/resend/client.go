// Package resend implements domain.ProviderClient against the Resend HTTP
// API using a raw net/http-plus-manual-JSON client rather than a provider SDK.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/resend-dispatch/campaign/internal/domain"
)

const defaultBaseURL = "https://api.resend.com"

// HTTPClient is the narrow subset of *http.Client the provider client
// depends on, so tests can substitute a fake transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends messages through Resend's /emails endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPClient
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the Resend API base URL, for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the HTTP transport, for tests.
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTimeout overrides the per-send timeout (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a Resend Client authenticating with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// Send performs one POST /emails call. It never retries internally; that is
// the RetryController's responsibility.
func (c *Client) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(sendPayload{
		From:    req.FromAddr,
		To:      req.ToAddr,
		Subject: req.Subject,
		HTML:    req.HTML,
		Text:    req.Text,
		ReplyTo: req.ReplyTo,
	})
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("marshal resend payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("build resend request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.SendResult{
			Kind:   domain.SendTransientFailure,
			Detail: err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.SendResult{
			Kind:   domain.SendTransientFailure,
			Detail: fmt.Sprintf("read response body: %v", err),
		}, nil
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusAccepted:
		messageID := gjson.GetBytes(respBody, "id").String()
		return domain.SendResult{
			Kind:               domain.SendAccepted,
			ProviderMessageID:  messageID,
			HTTPStatus:         resp.StatusCode,
		}, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return domain.SendResult{
			Kind:              domain.SendTransientFailure,
			HTTPStatus:        resp.StatusCode,
			RetryAfterSeconds: retryAfter,
			Detail:            extractMessage(respBody),
		}, nil

	case resp.StatusCode >= 500:
		return domain.SendResult{
			Kind:       domain.SendTransientFailure,
			HTTPStatus: resp.StatusCode,
			Detail:     extractMessage(respBody),
		}, nil

	default:
		return domain.SendResult{
			Kind:       domain.SendPermanentFailure,
			HTTPStatus: resp.StatusCode,
			Detail:     extractMessage(respBody),
		}, nil
	}
}

func extractMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "message").String(); msg != "" {
		return msg
	}
	return string(body)
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	n, err := strconv.Atoi(header)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

var _ domain.ProviderClient = (*Client)(nil)
