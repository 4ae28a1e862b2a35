package service

import (
	"context"
	"errors"

	"roster/internal/event/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	audit "roster/pkg/platform/audit"
	"roster/pkg/platform/sentinel"
	"roster/pkg/requestcontext"
)

// Create stores a new event, draft or published. Selected templates must
// exist and be active.
func (s *Service) Create(ctx context.Context, req models.CreateEventRequest) (*models.Event, error) {
	if err := models.ValidateWaiverSet(req.Waivers); err != nil {
		return nil, err
	}
	templates, err := s.resolveTemplates(ctx, req.Waivers)
	if err != nil {
		return nil, err
	}
	for _, w := range req.Waivers {
		if templates[w.WaiverID].Archived {
			return nil, archivedTemplate(w.WaiverID)
		}
	}

	e, err := models.NewEvent(id.NewEventID(), req.Details(), req.Waivers, req.Draft, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, e); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "event id collision")
		}
		return nil, wrapStoreErr(err, "failed to create event")
	}

	s.logger.InfoContext(ctx, "event created",
		"event_id", e.ID.String(),
		"draft", e.IsDraft,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.Event{Action: string(audit.EventCreated), EventID: e.ID})
	return e, nil
}

// Update patches event details under the same conditional write as
// registrations, so capacity never drops below a concurrent registration.
func (s *Service) Update(ctx context.Context, eventID id.EventID, req models.UpdateEventRequest) (*models.Event, error) {
	now := requestcontext.Now(ctx)
	e, err := s.mutate(ctx, "update", eventID, func(e *models.Event) error {
		return e.UpdateDetails(req.Apply(e), now)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventUpdated), EventID: eventID})
	return e, nil
}

func (s *Service) Publish(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	now := requestcontext.Now(ctx)
	e, err := s.mutate(ctx, "publish", eventID, func(e *models.Event) error {
		return e.Publish(now)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventPublished), EventID: eventID})
	return e, nil
}

// Unpublish returns the event to draft. Existing records stay; new
// registrations are rejected until it is published again.
func (s *Service) Unpublish(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	now := requestcontext.Now(ctx)
	e, err := s.mutate(ctx, "unpublish", eventID, func(e *models.Event) error {
		return e.Unpublish(now)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{Action: string(audit.EventUnpublished), EventID: eventID})
	return e, nil
}

func (s *Service) Get(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	e, err := s.store.FindByID(ctx, eventID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load event")
	}
	return e, nil
}

// GetPublished hides drafts from registrants.
func (s *Service) GetPublished(ctx context.Context, eventID id.EventID) (*models.Event, error) {
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.IsDraft {
		return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
	}
	return e, nil
}

// List returns every event ordered by start time.
func (s *Service) List(ctx context.Context) ([]*models.Event, error) {
	events, err := s.store.List(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list events")
	}
	return events, nil
}

func (s *Service) ListPublished(ctx context.Context) ([]*models.Event, error) {
	events, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	published := make([]*models.Event, 0, len(events))
	for _, e := range events {
		if !e.IsDraft {
			published = append(published, e)
		}
	}
	return published, nil
}
