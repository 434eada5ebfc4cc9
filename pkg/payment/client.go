// Package payment talks to the hosted-checkout payment provider: opening
// checkout sessions, requesting refunds and authenticating webhooks.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type Config struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	MaxRetries uint
	// RetryInterval is the first backoff delay. Zero means 200ms.
	RetryInterval time.Duration
	HTTPClient    *http.Client
}

type Client struct {
	baseURL       string
	secretKey     string
	timeout       time.Duration
	maxRetries    uint
	retryInterval time.Duration
	http          *http.Client
}

func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:       cfg.BaseURL,
		secretKey:     cfg.SecretKey,
		timeout:       cfg.Timeout,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
		http:          cfg.HTTPClient,
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.maxRetries == 0 {
		c.maxRetries = 1
	}
	if c.retryInterval <= 0 {
		c.retryInterval = 200 * time.Millisecond
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("payment provider returned %d", e.StatusCode)
	}
	return fmt.Sprintf("payment provider returned %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether repeating the same request may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type LineItem struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	UnitAmount  int64             `json:"unit_amount"`
	Quantity    int               `json:"quantity"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type CreateSessionParams struct {
	Currency      string            `json:"currency"`
	LineItems     []LineItem        `json:"line_items"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	SuccessURL    string            `json:"success_url"`
	CancelURL     string            `json:"cancel_url"`
	Metadata      map[string]string `json:"metadata"`

	// IdempotencyKey makes retried creates return the same session.
	IdempotencyKey string `json:"-"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	body := struct {
		Mode string `json:"mode"`
		CreateSessionParams
	}{Mode: "payment", CreateSessionParams: params}

	var session Session
	if err := c.post(ctx, "/v1/checkout/sessions", params.IdempotencyKey, body, &session); err != nil {
		return nil, err
	}
	if session.ID == "" || session.URL == "" {
		return nil, errors.New("payment provider returned a session without id or url")
	}
	return &session, nil
}

type RefundParams struct {
	PaymentIntentID string            `json:"payment_intent"`
	Amount          int64             `json:"amount"`
	Reason          string            `json:"reason,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`

	IdempotencyKey string `json:"-"`
}

type Refund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func (c *Client) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	if params.PaymentIntentID == "" {
		return nil, errors.New("refund requires a payment intent")
	}
	var refund Refund
	if err := c.post(ctx, "/v1/refunds", params.IdempotencyKey, params, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

// post sends body as JSON and decodes a 2xx answer into out. Network
// errors, 429 and 5xx are retried with exponential backoff; other 4xx
// fail immediately.
func (c *Client) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, path, idempotencyKey, payload, out)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.maxRetries))
	return err
}

func (c *Client) attempt(ctx context.Context, path, idempotencyKey string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			apiErr.Type = envelope.Error.Type
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		if apiErr.Retryable() {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
