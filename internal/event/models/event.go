package models

import (
	"strings"
	"time"

	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	textutil "roster/pkg/platform/strings"
)

const maxTitleLength = 200

// EventWaiver selects a catalog template for an event.
type EventWaiver struct {
	WaiverID id.WaiverID `json:"waiver_id"`
	Required bool        `json:"required"`
}

// Event is the aggregate root for registration. Every mutation of its
// registrant collections goes through a revision-conditioned write.
//
// Invariants:
//   - StartsAt <= EndsAt
//   - Capacity >= 0 (0 is unlimited) and occupancy never exceeds a positive capacity
//   - FeeCents >= 0
//   - Waivers holds each template at most once
//   - at most one record per adult user and per (parent, child)
//   - Revision increases by exactly one per committed write
type Event struct {
	ID                   id.EventID    `json:"id"`
	Title                string        `json:"title"`
	Description          string        `json:"description,omitempty"`
	Location             string        `json:"location"`
	StartsAt             time.Time     `json:"starts_at"`
	EndsAt               time.Time     `json:"ends_at"`
	Capacity             int           `json:"capacity"`
	RegistrationDeadline time.Time     `json:"registration_deadline"`
	FeeCents             int64         `json:"fee_cents"`
	Images               []string      `json:"images,omitempty"`
	PaymentRef           string        `json:"payment_ref,omitempty"`
	IsDraft              bool          `json:"is_draft"`
	Waivers              []EventWaiver `json:"waivers"`

	Adults   []*RegistrantRecord `json:"adults"`
	Children []*RegistrantRecord `json:"children"`

	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventDetails are the admin-editable fields of an event.
type EventDetails struct {
	Title                string
	Description          string
	Location             string
	StartsAt             time.Time
	EndsAt               time.Time
	Capacity             int
	RegistrationDeadline time.Time
	FeeCents             int64
	Images               []string
	PaymentRef           string
}

func NewEvent(eventID id.EventID, details EventDetails, waivers []EventWaiver, draft bool, now time.Time) (*Event, error) {
	e := &Event{
		ID:        eventID,
		IsDraft:   draft,
		Waivers:   []EventWaiver{},
		Adults:    []*RegistrantRecord{},
		Children:  []*RegistrantRecord{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.applyDetails(details)
	if err := e.validateDetails(); err != nil {
		return nil, err
	}
	if err := ValidateWaiverSet(waivers); err != nil {
		return nil, err
	}
	e.Waivers = append(e.Waivers, waivers...)
	return e, nil
}

func (e *Event) applyDetails(d EventDetails) {
	e.Title = strings.TrimSpace(d.Title)
	e.Description = strings.TrimSpace(d.Description)
	e.Location = strings.TrimSpace(d.Location)
	e.StartsAt = d.StartsAt
	e.EndsAt = d.EndsAt
	e.Capacity = d.Capacity
	e.RegistrationDeadline = d.RegistrationDeadline
	e.FeeCents = d.FeeCents
	e.Images = textutil.DedupeAndTrim(d.Images)
	e.PaymentRef = strings.TrimSpace(d.PaymentRef)
}

func (e *Event) validateDetails() error {
	switch {
	case e.Title == "":
		return dErrors.New(dErrors.CodeInvalidInput, "title is required")
	case len(e.Title) > maxTitleLength:
		return dErrors.New(dErrors.CodeInvalidInput, "title must be 200 characters or less")
	case e.Location == "":
		return dErrors.New(dErrors.CodeInvalidInput, "location is required")
	case e.StartsAt.IsZero() || e.EndsAt.IsZero():
		return dErrors.New(dErrors.CodeInvalidInput, "start and end are required")
	case e.EndsAt.Before(e.StartsAt):
		return dErrors.New(dErrors.CodeInvalidInput, "end must not be before start")
	case e.RegistrationDeadline.IsZero():
		return dErrors.New(dErrors.CodeInvalidInput, "registration deadline is required")
	case e.Capacity < 0:
		return dErrors.New(dErrors.CodeInvalidInput, "capacity must be zero (unlimited) or positive")
	case e.FeeCents < 0:
		return dErrors.New(dErrors.CodeInvalidInput, "fee must not be negative")
	}
	return nil
}

// UpdateDetails replaces the editable fields. Capacity may not drop below the
// number of registrants already admitted.
func (e *Event) UpdateDetails(d EventDetails, now time.Time) error {
	if d.Capacity > 0 && d.Capacity < e.Occupancy() {
		return dErrors.New(dErrors.CodeInvalidInput, "capacity cannot be lower than current registrations")
	}
	next := *e
	next.applyDetails(d)
	if err := next.validateDetails(); err != nil {
		return err
	}
	e.applyDetails(d)
	e.UpdatedAt = now
	return nil
}

func (e *Event) Publish(now time.Time) error {
	if !e.IsDraft {
		return dErrors.New(dErrors.CodeInvariantViolation, "event is already published")
	}
	e.IsDraft = false
	e.UpdatedAt = now
	return nil
}

func (e *Event) Unpublish(now time.Time) error {
	if e.IsDraft {
		return dErrors.New(dErrors.CodeInvariantViolation, "event is already a draft")
	}
	e.IsDraft = true
	e.UpdatedAt = now
	return nil
}

// Occupancy counts every active record, adult and child.
func (e *Event) Occupancy() int {
	return len(e.Adults) + len(e.Children)
}

// HasCapacity reports whether one more registrant fits.
func (e *Event) HasCapacity() bool {
	return e.Capacity == 0 || e.Occupancy() < e.Capacity
}

// Records returns adults followed by children, each in registration order.
func (e *Event) Records() []*RegistrantRecord {
	out := make([]*RegistrantRecord, 0, e.Occupancy())
	out = append(out, e.Adults...)
	return append(out, e.Children...)
}

// Find returns the active record for ref, or nil.
func (e *Event) Find(ref RegistrantRef) *RegistrantRecord {
	for _, r := range e.collection(ref) {
		if r.Matches(ref) {
			return r
		}
	}
	return nil
}

func (e *Event) collection(ref RegistrantRef) []*RegistrantRecord {
	if ref.IsChild() {
		return e.Children
	}
	return e.Adults
}

// AddRecord appends a record to the collection matching its kind.
func (e *Event) AddRecord(r *RegistrantRecord, now time.Time) {
	if r.Kind == KindChild {
		e.Children = append(e.Children, r)
	} else {
		e.Adults = append(e.Adults, r)
	}
	e.UpdatedAt = now
}

// RemoveRecord deletes the record for ref, preserving the order of the rest.
func (e *Event) RemoveRecord(ref RegistrantRef, now time.Time) (*RegistrantRecord, bool) {
	records := e.collection(ref)
	for i, r := range records {
		if !r.Matches(ref) {
			continue
		}
		kept := append(records[:i:i], records[i+1:]...)
		if ref.IsChild() {
			e.Children = kept
		} else {
			e.Adults = kept
		}
		e.UpdatedAt = now
		return r, true
	}
	return nil, false
}

// HasWaiver reports whether the template is in the event's current set.
func (e *Event) HasWaiver(waiverID id.WaiverID) bool {
	for _, w := range e.Waivers {
		if w.WaiverID == waiverID {
			return true
		}
	}
	return false
}

// RequiredWaivers returns the required template IDs in set order.
func (e *Event) RequiredWaivers() []id.WaiverID {
	var out []id.WaiverID
	for _, w := range e.Waivers {
		if w.Required {
			out = append(out, w.WaiverID)
		}
	}
	return out
}

// SnapshotEntries builds the unsigned ledger for a new record from the
// event's current template set.
func (e *Event) SnapshotEntries() []WaiverEntry {
	entries := make([]WaiverEntry, 0, len(e.Waivers))
	for _, w := range e.Waivers {
		entries = append(entries, WaiverEntry{WaiverID: w.WaiverID})
	}
	return entries
}

// ReplaceWaivers installs a new template set and appends every newly required
// template to records that lack it. Entries for removed templates stay in
// their records; compliance ignores them.
func (e *Event) ReplaceWaivers(waivers []EventWaiver, now time.Time) ([]id.WaiverID, error) {
	if err := ValidateWaiverSet(waivers); err != nil {
		return nil, err
	}
	e.Waivers = append([]EventWaiver{}, waivers...)

	var added []id.WaiverID
	for _, w := range e.Waivers {
		if !w.Required {
			continue
		}
		appended := false
		for _, r := range e.Records() {
			if r.Entry(w.WaiverID) == nil {
				r.Waivers = append(r.Waivers, WaiverEntry{WaiverID: w.WaiverID})
				appended = true
			}
		}
		if appended {
			added = append(added, w.WaiverID)
		}
	}
	e.UpdatedAt = now
	return added, nil
}

// ValidateWaiverSet rejects nil IDs and duplicates.
func ValidateWaiverSet(waivers []EventWaiver) error {
	seen := make(map[id.WaiverID]struct{}, len(waivers))
	for _, w := range waivers {
		if w.WaiverID.IsNil() {
			return dErrors.New(dErrors.CodeBadRequest, "waiver id is required")
		}
		if _, dup := seen[w.WaiverID]; dup {
			return dErrors.New(dErrors.CodeBadRequest, "waiver "+w.WaiverID.String()+" listed more than once")
		}
		seen[w.WaiverID] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy. Stores hand out clones so a caller's mutations
// never leak into shared state before a conditional write commits them.
func (e *Event) Clone() *Event {
	c := *e
	c.Images = append([]string(nil), e.Images...)
	c.Waivers = append([]EventWaiver{}, e.Waivers...)
	c.Adults = cloneRecords(e.Adults)
	c.Children = cloneRecords(e.Children)
	return &c
}

func cloneRecords(in []*RegistrantRecord) []*RegistrantRecord {
	out := make([]*RegistrantRecord, 0, len(in))
	for _, r := range in {
		out = append(out, r.Clone())
	}
	return out
}
