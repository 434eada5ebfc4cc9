package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, retries uint) *Client {
	return NewClient(Config{
		BaseURL:       url,
		SecretKey:     "sk_test",
		Timeout:       time.Second,
		MaxRetries:    retries,
		RetryInterval: time.Millisecond,
	})
}

func TestCreateCheckoutSession_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "order-1", r.Header.Get("Idempotency-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "payment", body["mode"])
		assert.Equal(t, "usd", body["currency"])
		assert.Equal(t, "order-1", body["metadata"].(map[string]any)["orderId"])

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "cs_123", "url": "https://pay.example/cs_123"})
	}))
	defer srv.Close()

	session, err := newTestClient(srv.URL, 3).CreateCheckoutSession(context.Background(), CreateSessionParams{
		Currency:       "usd",
		LineItems:      []LineItem{{Name: "GA", UnitAmount: 2500, Quantity: 2}},
		Metadata:       map[string]string{"orderId": "order-1"},
		IdempotencyKey: "order-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_123", session.ID)
	assert.Equal(t, "https://pay.example/cs_123", session.URL)
}

func TestCreateCheckoutSession_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "cs_1", "url": "https://pay.example/cs_1"})
	}))
	defer srv.Close()

	session, err := newTestClient(srv.URL, 3).CreateCheckoutSession(context.Background(), CreateSessionParams{})

	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCreateCheckoutSession_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2).CreateCheckoutSession(context.Background(), CreateSessionParams{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCreateCheckoutSession_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad currency"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 5).CreateCheckoutSession(context.Background(), CreateSessionParams{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "bad currency", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateCheckoutSession_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond, MaxRetries: 1})
	_, err := client.CreateCheckoutSession(context.Background(), CreateSessionParams{})

	assert.Error(t, err)
}

func TestCreateRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "item-1", r.Header.Get("Idempotency-Key"))
		var body RefundParams
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pi_1", body.PaymentIntentID)
		assert.Equal(t, int64(5000), body.Amount)
		_ = json.NewEncoder(w).Encode(Refund{ID: "re_1", Amount: 5000, Status: "pending"})
	}))
	defer srv.Close()

	refund, err := newTestClient(srv.URL, 1).CreateRefund(context.Background(), RefundParams{
		PaymentIntentID: "pi_1",
		Amount:          5000,
		IdempotencyKey:  "item-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "re_1", refund.ID)
}

func TestCreateRefund_RequiresPaymentIntent(t *testing.T) {
	_, err := newTestClient("http://unused", 1).CreateRefund(context.Background(), RefundParams{Amount: 1})
	assert.Error(t, err)
}
