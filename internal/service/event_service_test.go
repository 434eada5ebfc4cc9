package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock EventRepository ---

type mockEventRepo struct {
	createFn   func(ctx context.Context, event *models.Event) error
	findByIDFn func(ctx context.Context, id uuid.UUID) (*models.Event, error)
	upsertFn   func(ctx context.Context, event *models.Event) error
}

func (m *mockEventRepo) Create(ctx context.Context, event *models.Event) error {
	return m.createFn(ctx, event)
}
func (m *mockEventRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockEventRepo) Upsert(ctx context.Context, event *models.Event) error {
	return m.upsertFn(ctx, event)
}

type inlineTx struct{}

func (inlineTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- Tests ---

func sampleEvent() *models.Event {
	return &models.Event{
		HostID:   "host-1",
		Name:     "Golang Workshop Bangkok",
		StartsAt: time.Date(2026, 2, 25, 17, 0, 0, 0, time.UTC),
		Currency: "USD",
		Tiers: []models.TicketTier{
			{Name: "Early Bird", Price: 1500, Quantity: 20},
			{Name: "Regular", Price: 2500, Quantity: 30},
		},
	}
}

func TestCreateEvent_Success(t *testing.T) {
	var saved *models.Event
	repo := &mockEventRepo{
		createFn: func(ctx context.Context, event *models.Event) error {
			saved = event
			return nil
		},
	}

	svc := NewEventService(inlineTx{}, repo)
	event := sampleEvent()

	err := svc.CreateEvent(context.Background(), event)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, saved.ID)
	assert.Equal(t, models.EventStatusPublished, saved.Status)
	assert.Equal(t, 50, saved.Capacity)
	assert.Equal(t, "usd", saved.Currency)
	for _, tier := range saved.Tiers {
		assert.NotEqual(t, uuid.Nil, tier.ID)
		assert.Equal(t, saved.ID, tier.EventID)
		assert.Zero(t, tier.Sold)
	}
}

func TestCreateEvent_IgnoresIncomingSoldCount(t *testing.T) {
	repo := &mockEventRepo{createFn: func(ctx context.Context, event *models.Event) error { return nil }}
	svc := NewEventService(inlineTx{}, repo)
	event := sampleEvent()
	event.Tiers[0].Sold = 7

	require.NoError(t, svc.CreateEvent(context.Background(), event))

	assert.Zero(t, event.Tiers[0].Sold)
}

func TestCreateEvent_RepoError(t *testing.T) {
	repo := &mockEventRepo{
		createFn: func(ctx context.Context, event *models.Event) error {
			return errors.New("db connection failed")
		},
	}

	svc := NewEventService(inlineTx{}, repo)
	event := sampleEvent()

	err := svc.CreateEvent(context.Background(), event)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db connection failed")
}

func TestCreateEvent_Validation(t *testing.T) {
	repo := &mockEventRepo{createFn: func(ctx context.Context, event *models.Event) error {
		t.Fatal("invalid event must not reach the repository")
		return nil
	}}
	svc := NewEventService(inlineTx{}, repo)

	tests := map[string]func(e *models.Event){
		"no name":        func(e *models.Event) { e.Name = " " },
		"no host":        func(e *models.Event) { e.HostID = "" },
		"no start":       func(e *models.Event) { e.StartsAt = time.Time{} },
		"no tiers":       func(e *models.Event) { e.Tiers = nil },
		"negative price": func(e *models.Event) { e.Tiers[0].Price = -1 },
		"unknown status": func(e *models.Event) { e.Status = "archived" },
		"ends before start": func(e *models.Event) {
			end := e.StartsAt.Add(-time.Hour)
			e.EndsAt = &end
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			event := sampleEvent()
			mutate(event)
			err := svc.CreateEvent(context.Background(), event)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestGetEvent_Success(t *testing.T) {
	expected := sampleEvent()
	expected.ID = uuid.New()

	repo := &mockEventRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Event, error) {
			return expected, nil
		},
	}

	svc := NewEventService(inlineTx{}, repo)
	event, err := svc.GetEvent(context.Background(), expected.ID)

	assert.NoError(t, err)
	assert.Equal(t, "Golang Workshop Bangkok", event.Name)
	assert.Len(t, event.Tiers, 2)
}

func TestGetEvent_NotFound(t *testing.T) {
	repo := &mockEventRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Event, error) {
			return nil, repository.ErrNotFound
		},
	}

	svc := NewEventService(inlineTx{}, repo)
	event, err := svc.GetEvent(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.Nil(t, event)
}

func TestSyncEvent_Upserts(t *testing.T) {
	incoming := sampleEvent()
	incoming.ID = uuid.New()
	incoming.Status = models.EventStatusPublished
	for i := range incoming.Tiers {
		incoming.Tiers[i].ID = uuid.New()
	}

	var upserted *models.Event
	repo := &mockEventRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Event, error) {
			return nil, repository.ErrNotFound
		},
		upsertFn: func(ctx context.Context, event *models.Event) error {
			upserted = event
			return nil
		},
	}

	svc := NewEventService(inlineTx{}, repo)
	err := svc.SyncEvent(context.Background(), incoming)

	require.NoError(t, err)
	require.NotNil(t, upserted)
	assert.Equal(t, incoming.ID, upserted.Tiers[0].EventID)
}

func TestSyncEvent_RejectsQuantityBelowSold(t *testing.T) {
	incoming := sampleEvent()
	incoming.ID = uuid.New()
	incoming.Status = models.EventStatusPublished
	for i := range incoming.Tiers {
		incoming.Tiers[i].ID = uuid.New()
	}
	incoming.Tiers[0].Quantity = 3

	repo := &mockEventRepo{
		findByIDFn: func(ctx context.Context, id uuid.UUID) (*models.Event, error) {
			current := *incoming
			current.Tiers = []models.TicketTier{{ID: incoming.Tiers[0].ID, Quantity: 20, Sold: 5}}
			return &current, nil
		},
		upsertFn: func(ctx context.Context, event *models.Event) error {
			t.Fatal("upsert must not run")
			return nil
		},
	}

	svc := NewEventService(inlineTx{}, repo)
	err := svc.SyncEvent(context.Background(), incoming)

	assert.ErrorIs(t, err, ErrValidation)
}

func TestSyncEvent_RequiresIDs(t *testing.T) {
	svc := NewEventService(inlineTx{}, &mockEventRepo{})

	err := svc.SyncEvent(context.Background(), sampleEvent())

	assert.ErrorIs(t, err, ErrValidation)
}
