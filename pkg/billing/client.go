package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var ErrSubscriptionNotFound = errors.New("billing: subscription not found")

// Subscription is the billing collaborator's view of a host.
type Subscription struct {
	Plan     string   `json:"plan"`
	Features Features `json:"features"`
}

type Features struct {
	// PlatformFeeRate is a fraction, e.g. 0.03. Zero means unset.
	PlatformFeeRate float64 `json:"platformFeeRate"`
}

type ClientConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    uint
	RetryInterval time.Duration
	HTTPClient    *http.Client
}

type Client struct {
	cfg  ClientConfig
	http *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{cfg: cfg, http: httpClient}
}

func (c *Client) GetSubscription(ctx context.Context, hostID string) (*Subscription, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInterval

	return backoff.Retry(ctx, func() (*Subscription, error) {
		return c.getSubscription(ctx, hostID)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.cfg.MaxRetries))
}

func (c *Client) getSubscription(ctx context.Context, hostID string) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := c.cfg.BaseURL + "/v1/subscriptions/" + url.PathEscape(hostID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(ErrSubscriptionNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("billing returned %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, backoff.Permanent(fmt.Errorf("billing returned %d", resp.StatusCode))
	}

	var sub Subscription
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&sub); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode subscription: %w", err))
	}
	return &sub, nil
}
