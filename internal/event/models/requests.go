package models

import (
	"time"

	id "roster/pkg/domain"
)

// CreateEventRequest is the admin payload for a new event.
type CreateEventRequest struct {
	Title                string        `json:"title"`
	Description          string        `json:"description"`
	Location             string        `json:"location"`
	StartsAt             time.Time     `json:"starts_at"`
	EndsAt               time.Time     `json:"ends_at"`
	Capacity             int           `json:"capacity"`
	RegistrationDeadline time.Time     `json:"registration_deadline"`
	FeeCents             int64         `json:"fee_cents"`
	Images               []string      `json:"images"`
	Waivers              []EventWaiver `json:"waivers"`
	Draft                bool          `json:"draft"`
}

func (r CreateEventRequest) Details() EventDetails {
	return EventDetails{
		Title:                r.Title,
		Description:          r.Description,
		Location:             r.Location,
		StartsAt:             r.StartsAt,
		EndsAt:               r.EndsAt,
		Capacity:             r.Capacity,
		RegistrationDeadline: r.RegistrationDeadline,
		FeeCents:             r.FeeCents,
		Images:               r.Images,
	}
}

// UpdateEventRequest patches event details. Nil fields are left unchanged.
type UpdateEventRequest struct {
	Title                *string    `json:"title"`
	Description          *string    `json:"description"`
	Location             *string    `json:"location"`
	StartsAt             *time.Time `json:"starts_at"`
	EndsAt               *time.Time `json:"ends_at"`
	Capacity             *int       `json:"capacity"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	FeeCents             *int64     `json:"fee_cents"`
	Images               []string   `json:"images"`
	PaymentRef           *string    `json:"payment_ref"`
}

// Apply overlays the patch on the event's current details.
func (r UpdateEventRequest) Apply(e *Event) EventDetails {
	d := EventDetails{
		Title:                e.Title,
		Description:          e.Description,
		Location:             e.Location,
		StartsAt:             e.StartsAt,
		EndsAt:               e.EndsAt,
		Capacity:             e.Capacity,
		RegistrationDeadline: e.RegistrationDeadline,
		FeeCents:             e.FeeCents,
		Images:               e.Images,
		PaymentRef:           e.PaymentRef,
	}
	if r.Title != nil {
		d.Title = *r.Title
	}
	if r.Description != nil {
		d.Description = *r.Description
	}
	if r.Location != nil {
		d.Location = *r.Location
	}
	if r.StartsAt != nil {
		d.StartsAt = *r.StartsAt
	}
	if r.EndsAt != nil {
		d.EndsAt = *r.EndsAt
	}
	if r.Capacity != nil {
		d.Capacity = *r.Capacity
	}
	if r.RegistrationDeadline != nil {
		d.RegistrationDeadline = *r.RegistrationDeadline
	}
	if r.FeeCents != nil {
		d.FeeCents = *r.FeeCents
	}
	if r.Images != nil {
		d.Images = r.Images
	}
	if r.PaymentRef != nil {
		d.PaymentRef = *r.PaymentRef
	}
	return d
}

// ReconcileWaiversRequest replaces an event's template set.
type ReconcileWaiversRequest struct {
	Waivers []EventWaiver `json:"waivers"`
}

// RegistrationRequest targets the caller or one of the caller's children.
type RegistrationRequest struct {
	ChildID *id.ChildID `json:"child_id,omitempty"`
}

// SignatureRequest records a signing for the caller or a child.
type SignatureRequest struct {
	WaiverID id.WaiverID `json:"waiver_id"`
	ChildID  *id.ChildID `json:"child_id,omitempty"`
}
