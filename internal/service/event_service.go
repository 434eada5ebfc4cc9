package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Eursukkul/checkout-service/internal/models"
	"github.com/Eursukkul/checkout-service/internal/repository"
	"github.com/google/uuid"
)

type EventService interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	// SyncEvent applies an event definition published by the catalog owner.
	// Tier sold counts are never taken from the message.
	SyncEvent(ctx context.Context, event *models.Event) error
}

type eventService struct {
	tx   repository.Transactor
	repo repository.EventRepository
}

func NewEventService(tx repository.Transactor, repo repository.EventRepository) EventService {
	return &eventService{tx: tx, repo: repo}
}

func (s *eventService) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = models.EventStatusPublished
	}
	capacity := 0
	for i := range event.Tiers {
		if event.Tiers[i].ID == uuid.Nil {
			event.Tiers[i].ID = uuid.New()
		}
		event.Tiers[i].EventID = event.ID
		event.Tiers[i].Sold = 0
		if event.Tiers[i].SortOrder == 0 {
			event.Tiers[i].SortOrder = i
		}
		capacity += event.Tiers[i].Quantity
	}
	if event.Capacity == 0 {
		event.Capacity = capacity
	}
	event.Currency = strings.ToLower(event.Currency)

	if err := validateEvent(event); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *eventService) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

func (s *eventService) SyncEvent(ctx context.Context, event *models.Event) error {
	if event.ID == uuid.Nil {
		return invalid("id", "is required")
	}
	for i := range event.Tiers {
		if event.Tiers[i].ID == uuid.Nil {
			return invalid(fmt.Sprintf("tiers[%d].id", i), "is required")
		}
		event.Tiers[i].EventID = event.ID
	}
	event.Currency = strings.ToLower(event.Currency)
	if err := validateEvent(event); err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindByID(ctx, event.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if existing != nil {
			for _, tier := range event.Tiers {
				current, ok := existing.Tier(tier.ID)
				if ok && tier.Quantity < current.Sold {
					return invalid("tiers", "tier %s quantity %d is below %d already sold", tier.ID, tier.Quantity, current.Sold)
				}
			}
		}
		if err := s.repo.Upsert(ctx, event); err != nil {
			return fmt.Errorf("upsert event %s: %w", event.ID, err)
		}
		return nil
	})
}

func validateEvent(event *models.Event) error {
	if strings.TrimSpace(event.Name) == "" {
		return invalid("name", "is required")
	}
	if event.HostID == "" {
		return invalid("hostId", "is required")
	}
	if event.StartsAt.IsZero() {
		return invalid("startsAt", "is required")
	}
	if event.EndsAt != nil && event.EndsAt.Before(event.StartsAt) {
		return invalid("endsAt", "must not be before startsAt")
	}
	if !event.Status.Valid() {
		return invalid("status", "unknown status %q", event.Status)
	}
	if len(event.Tiers) == 0 {
		return invalid("tiers", "at least one tier is required")
	}
	for i, tier := range event.Tiers {
		field := fmt.Sprintf("tiers[%d]", i)
		if strings.TrimSpace(tier.Name) == "" {
			return invalid(field+".name", "is required")
		}
		if tier.Price < 0 {
			return invalid(field+".price", "must not be negative")
		}
		if tier.Quantity < 0 {
			return invalid(field+".quantity", "must not be negative")
		}
	}
	return nil
}
