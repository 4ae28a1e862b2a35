package service

import (
	"context"

	"roster/internal/event/compliance"
	"roster/internal/event/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	audit "roster/pkg/platform/audit"
)

// Compliance computes the aggregate summary from the latest committed
// revision. Nothing is cached.
func (s *Service) Compliance(ctx context.Context, eventID id.EventID) (compliance.Summary, error) {
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return compliance.Summary{}, err
	}
	return compliance.AggregateCompliance(e), nil
}

func (s *Service) Registrants(ctx context.Context, eventID id.EventID) ([]compliance.RegistrantCompliance, error) {
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return compliance.Registrants(e), nil
}

// ComplianceFor returns one registrant's standing, failing not_registered
// when the registrant has no active record.
func (s *Service) ComplianceFor(ctx context.Context, eventID id.EventID, ref models.RegistrantRef) (compliance.RegistrantCompliance, error) {
	e, err := s.Get(ctx, eventID)
	if err != nil {
		return compliance.RegistrantCompliance{}, err
	}
	r := e.Find(ref)
	if r == nil {
		return compliance.RegistrantCompliance{}, notRegistered()
	}
	return compliance.ComplianceOf(r, e), nil
}

// Registration pairs an event with one of the caller's records in it.
type Registration struct {
	EventID    id.EventID                      `json:"event_id"`
	Title      string                          `json:"title"`
	Compliance compliance.RegistrantCompliance `json:"compliance"`
}

// RegistrationsFor lists every active record the user owns, their own and
// their children's, ordered by event start.
func (s *Service) RegistrationsFor(ctx context.Context, userID id.UserID) ([]Registration, error) {
	events, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list registrations")
	}
	out := []Registration{}
	for _, e := range events {
		for _, r := range e.Records() {
			if r.UserID != userID {
				continue
			}
			out = append(out, Registration{
				EventID:    e.ID,
				Title:      e.Title,
				Compliance: compliance.ComplianceOf(r, e),
			})
		}
	}
	return out, nil
}

// AuditTrail returns the committed changes recorded for an event, oldest first.
func (s *Service) AuditTrail(ctx context.Context, eventID id.EventID) ([]audit.Event, error) {
	if s.auditReader == nil {
		return nil, dErrors.New(dErrors.CodeCollaboratorUnavailable, "audit trail is not available")
	}
	if _, err := s.Get(ctx, eventID); err != nil {
		return nil, err
	}
	trail, err := s.auditReader.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to read audit trail")
	}
	if trail == nil {
		trail = []audit.Event{}
	}
	return trail, nil
}
