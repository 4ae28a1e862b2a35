package audit

import (
	"context"
	"time"

	id "roster/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with safety or legal significance:
	// who was admitted to an event and which waivers they signed.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers catalog and event administration.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted after a committed change. Keep it transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	Category       EventCategory     `json:"category"`
	Timestamp      time.Time         `json:"timestamp"`
	Action         string            `json:"action"`
	EventID        id.EventID        `json:"event_id"`
	UserID         id.UserID         `json:"user_id"`
	ChildID        id.ChildID        `json:"child_id"`
	RegistrationID id.RegistrationID `json:"registration_id"`
	WaiverID       id.WaiverID       `json:"waiver_id"`
	Reason         string            `json:"reason,omitempty"`
	// ActorID is the caller that performed the action when it differs from
	// the registrant (admins reconciling, parents acting for children).
	ActorID   string `json:"actor_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	// Registration events
	EventRegistered   AuditEvent = "registrant_registered"
	EventUnregistered AuditEvent = "registrant_unregistered"
	EventWaiverSigned AuditEvent = "waiver_signed"
	EventReconciled   AuditEvent = "waivers_reconciled"

	// Event administration
	EventCreated     AuditEvent = "event_created"
	EventUpdated     AuditEvent = "event_updated"
	EventPublished   AuditEvent = "event_published"
	EventUnpublished AuditEvent = "event_unpublished"

	// Catalog events
	EventTemplateCreated  AuditEvent = "waiver_template_created"
	EventTemplateArchived AuditEvent = "waiver_template_archived"
	EventTemplateRevised  AuditEvent = "waiver_template_revised"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRegistered:   CategoryCompliance,
	EventUnregistered: CategoryCompliance,
	EventWaiverSigned: CategoryCompliance,
	EventReconciled:   CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader is implemented by stores that can replay an event's audit trail.
type Reader interface {
	ListByEvent(ctx context.Context, eventID id.EventID) ([]Event, error)
}
