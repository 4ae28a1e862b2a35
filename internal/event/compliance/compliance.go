// Package compliance evaluates registration admissibility and waiver
// compliance. Every function is pure and reads only the aggregate passed in,
// so results always reflect the latest committed revision.
package compliance

import (
	"time"

	"roster/internal/event/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
)

// IsAdmissible checks draft, deadline and capacity in that order and returns
// the first rejection, or nil.
func IsAdmissible(e *models.Event, now time.Time) error {
	if e.IsDraft {
		return dErrors.New(dErrors.CodeEventIsDraft, "event is not open for registration")
	}
	if !now.Before(e.RegistrationDeadline) {
		return dErrors.New(dErrors.CodeDeadlinePassed, "registration deadline has passed")
	}
	if !e.HasCapacity() {
		return dErrors.New(dErrors.CodeAtCapacity, "event is at capacity")
	}
	return nil
}

// RegistrantCompliance is one registrant's standing against the event's
// current required set.
type RegistrantCompliance struct {
	RegistrationID id.RegistrationID     `json:"registration_id"`
	Kind           models.RegistrantKind `json:"kind"`
	UserID         id.UserID             `json:"user_id"`
	ChildID        *id.ChildID           `json:"child_id,omitempty"`
	Compliant      bool                  `json:"compliant"`
	Missing        []id.WaiverID         `json:"missing"`
	Waivers        []models.WaiverEntry  `json:"waivers"`
}

// ComplianceOf lists the required templates the record has not signed.
// Entries for templates no longer in the event set are ignored.
func ComplianceOf(r *models.RegistrantRecord, e *models.Event) RegistrantCompliance {
	missing := []id.WaiverID{}
	for _, w := range e.RequiredWaivers() {
		if !r.HasSigned(w) {
			missing = append(missing, w)
		}
	}
	out := RegistrantCompliance{
		RegistrationID: r.ID,
		Kind:           r.Kind,
		UserID:         r.UserID,
		Compliant:      len(missing) == 0,
		Missing:        missing,
		Waivers:        append([]models.WaiverEntry{}, r.Waivers...),
	}
	if r.ChildID != nil {
		c := *r.ChildID
		out.ChildID = &c
	}
	return out
}

// Summary aggregates compliance across every registrant of an event.
type Summary struct {
	EventID          id.EventID          `json:"event_id"`
	TotalRegistrants int                 `json:"total_registrants"`
	CompliantCount   int                 `json:"compliant_count"`
	NonCompliant     []id.RegistrationID `json:"non_compliant_registrant_ids"`
}

// AggregateCompliance scans every record. It is never cached.
func AggregateCompliance(e *models.Event) Summary {
	s := Summary{EventID: e.ID, NonCompliant: []id.RegistrationID{}}
	for _, r := range e.Records() {
		s.TotalRegistrants++
		if ComplianceOf(r, e).Compliant {
			s.CompliantCount++
		} else {
			s.NonCompliant = append(s.NonCompliant, r.ID)
		}
	}
	return s
}

// Registrants returns per-record compliance, adults first.
func Registrants(e *models.Event) []RegistrantCompliance {
	records := e.Records()
	out := make([]RegistrantCompliance, 0, len(records))
	for _, r := range records {
		out = append(out, ComplianceOf(r, e))
	}
	return out
}
