package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Eursukkul/checkout-service/internal/dto"
	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock EventService ---

type mockEventService struct {
	createFn func(ctx context.Context, event *models.Event) error
	getFn    func(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

func (m *mockEventService) CreateEvent(ctx context.Context, event *models.Event) error {
	return m.createFn(ctx, event)
}
func (m *mockEventService) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return m.getFn(ctx, id)
}
func (m *mockEventService) SyncEvent(ctx context.Context, event *models.Event) error {
	return errors.New("not used")
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func requireHTTPError(t *testing.T, err error, code int) dto.ErrorResponse {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "expected *echo.HTTPError, got %v", err)
	assert.Equal(t, code, he.Code)
	resp, _ := he.Message.(dto.ErrorResponse)
	return resp
}

// --- Tests ---

func TestCreateEvent_Handler_Success(t *testing.T) {
	var got *models.Event
	svc := &mockEventService{
		createFn: func(ctx context.Context, event *models.Event) error {
			got = event
			event.ID = uuid.New()
			event.Status = models.EventStatusPublished
			for i := range event.Tiers {
				event.Tiers[i].ID = uuid.New()
			}
			return nil
		},
	}

	e := newTestEcho()
	body := `{"hostId":"host-1","name":"Go Meetup","startsAt":"2026-05-01T18:00:00Z","currency":"USD",
		"uiConfig":{"theme":"dark"},
		"tiers":[{"name":"GA","price":2500,"quantity":100},{"name":"VIP","price":9000,"quantity":10}]}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/events", body), rec)

	h := NewEventHandler(svc)
	err := h.CreateEvent(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "usd", got.Currency)
	assert.JSONEq(t, `{"theme":"dark"}`, string(got.UIConfig))

	var resp dto.EventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Go Meetup", resp.Name)
	require.Len(t, resp.Tiers, 2)
	assert.Equal(t, 100, resp.Tiers[0].Available)
	assert.Equal(t, int64(9000), resp.Tiers[1].Price)
	assert.JSONEq(t, `{"theme":"dark"}`, string(resp.UIConfig))
}

func TestCreateEvent_Handler_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"hostId":"h","startsAt":"2026-05-01T18:00:00Z","tiers":[{"name":"GA","quantity":1}]}`},
		{name: "no tiers", body: `{"hostId":"h","name":"x","startsAt":"2026-05-01T18:00:00Z","tiers":[]}`},
		{name: "negative price", body: `{"hostId":"h","name":"x","startsAt":"2026-05-01T18:00:00Z","tiers":[{"name":"GA","price":-1,"quantity":1}]}`},
		{name: "unknown status", body: `{"hostId":"h","name":"x","status":"live","startsAt":"2026-05-01T18:00:00Z","tiers":[{"name":"GA","quantity":1}]}`},
		{name: "malformed json", body: `{"hostId":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			rec := httptest.NewRecorder()
			c := e.NewContext(jsonRequest(http.MethodPost, "/events", tt.body), rec)

			h := NewEventHandler(&mockEventService{})
			resp := requireHTTPError(t, h.CreateEvent(c), http.StatusBadRequest)
			assert.Equal(t, "validation_error", resp.Code)
		})
	}
}

func TestCreateEvent_Handler_ServiceValidation(t *testing.T) {
	svc := &mockEventService{
		createFn: func(ctx context.Context, event *models.Event) error {
			return &service.ValidationError{Field: "endsAt", Message: "must not be before startsAt"}
		},
	}

	e := newTestEcho()
	body := `{"hostId":"h","name":"x","startsAt":"2026-05-01T18:00:00Z","endsAt":"2026-04-01T18:00:00Z","tiers":[{"name":"GA","quantity":1}]}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/events", body), rec)

	resp := requireHTTPError(t, NewEventHandler(svc).CreateEvent(c), http.StatusBadRequest)
	assert.Equal(t, map[string]string{"field": "endsAt"}, resp.Details)
}

func TestGetEvent_Handler_Success(t *testing.T) {
	id := uuid.New()
	svc := &mockEventService{
		getFn: func(ctx context.Context, got uuid.UUID) (*models.Event, error) {
			assert.Equal(t, id, got)
			return &models.Event{
				ID:       id,
				Name:     "Test Event",
				StartsAt: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC),
				Status:   models.EventStatusPublished,
				Tiers:    []models.TicketTier{{ID: uuid.New(), Name: "GA", Quantity: 50, Sold: 48}},
			}, nil
		},
	}

	e := newTestEcho()
	req := httptest.NewRequest(http.MethodGet, "/events/"+id.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id.String())

	h := NewEventHandler(svc)
	err := h.GetEvent(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp dto.EventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Test Event", resp.Name)
	require.Len(t, resp.Tiers, 1)
	assert.Equal(t, 48, resp.Tiers[0].Sold)
	assert.Equal(t, 2, resp.Tiers[0].Available)
}

func TestGetEvent_Handler_NotFound(t *testing.T) {
	svc := &mockEventService{
		getFn: func(ctx context.Context, id uuid.UUID) (*models.Event, error) {
			return nil, service.ErrEventNotFound
		},
	}

	e := newTestEcho()
	id := uuid.NewString()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/events/"+id, nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)

	resp := requireHTTPError(t, NewEventHandler(svc).GetEvent(c), http.StatusNotFound)
	assert.Equal(t, "not_found", resp.Code)
}

func TestGetEvent_Handler_InvalidID(t *testing.T) {
	e := newTestEcho()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/events/abc", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	requireHTTPError(t, NewEventHandler(&mockEventService{}).GetEvent(c), http.StatusBadRequest)
}

func TestGetEvent_Handler_StorageError(t *testing.T) {
	svc := &mockEventService{
		getFn: func(ctx context.Context, id uuid.UUID) (*models.Event, error) {
			return nil, errors.New("db error")
		},
	}

	e := newTestEcho()
	id := uuid.NewString()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/events/"+id, nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)

	resp := requireHTTPError(t, NewEventHandler(svc).GetEvent(c), http.StatusInternalServerError)
	assert.Equal(t, "internal_error", resp.Code)
	assert.NotContains(t, resp.Error, "db error")
}
