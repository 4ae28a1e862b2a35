package models

import (
	"time"

	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
)

type RegistrantKind string

const (
	KindAdult RegistrantKind = "adult"
	KindChild RegistrantKind = "child"
)

// RegistrantRef identifies a registrant within an event: the user alone for
// an adult, or the parent plus a child scoped to that parent.
type RegistrantRef struct {
	UserID  id.UserID
	ChildID *id.ChildID
}

func AdultRef(userID id.UserID) RegistrantRef {
	return RegistrantRef{UserID: userID}
}

func ChildRef(parentID id.UserID, childID id.ChildID) RegistrantRef {
	return RegistrantRef{UserID: parentID, ChildID: &childID}
}

func (r RegistrantRef) IsChild() bool {
	return r.ChildID != nil
}

func (r RegistrantRef) Kind() RegistrantKind {
	if r.IsChild() {
		return KindChild
	}
	return KindAdult
}

// WaiverEntry tracks one template on a registrant's ledger. Signed moves
// false to true exactly once.
type WaiverEntry struct {
	WaiverID id.WaiverID `json:"waiver_id"`
	Signed   bool        `json:"signed"`
	SignedAt *time.Time  `json:"signed_at,omitempty"`
}

// RegistrantRecord is one admitted registrant's waiver ledger. Entries are
// appended, never reordered or removed.
type RegistrantRecord struct {
	ID           id.RegistrationID `json:"id"`
	Kind         RegistrantKind    `json:"kind"`
	UserID       id.UserID         `json:"user_id"`
	ChildID      *id.ChildID       `json:"child_id,omitempty"`
	Waivers      []WaiverEntry     `json:"waivers"`
	RegisteredAt time.Time         `json:"registered_at"`
}

// NewRecord creates a fresh record with the given unsigned entries.
func NewRecord(ref RegistrantRef, entries []WaiverEntry, now time.Time) *RegistrantRecord {
	r := &RegistrantRecord{
		ID:           id.NewRegistrationID(),
		Kind:         ref.Kind(),
		UserID:       ref.UserID,
		Waivers:      entries,
		RegisteredAt: now,
	}
	if ref.IsChild() {
		c := *ref.ChildID
		r.ChildID = &c
	}
	if r.Waivers == nil {
		r.Waivers = []WaiverEntry{}
	}
	return r
}

func (r *RegistrantRecord) Ref() RegistrantRef {
	ref := RegistrantRef{UserID: r.UserID}
	if r.ChildID != nil {
		c := *r.ChildID
		ref.ChildID = &c
	}
	return ref
}

// Matches reports whether the record belongs to ref. Adult refs never match
// child records and vice versa.
func (r *RegistrantRecord) Matches(ref RegistrantRef) bool {
	if r.UserID != ref.UserID {
		return false
	}
	if ref.IsChild() != (r.ChildID != nil) {
		return false
	}
	return !ref.IsChild() || *r.ChildID == *ref.ChildID
}

// Entry returns the ledger entry for the template, or nil.
func (r *RegistrantRecord) Entry(waiverID id.WaiverID) *WaiverEntry {
	for i := range r.Waivers {
		if r.Waivers[i].WaiverID == waiverID {
			return &r.Waivers[i]
		}
	}
	return nil
}

// HasSigned reports whether the template has a signed entry.
func (r *RegistrantRecord) HasSigned(waiverID id.WaiverID) bool {
	e := r.Entry(waiverID)
	return e != nil && e.Signed
}

// Sign flips the entry for waiverID to signed.
func (r *RegistrantRecord) Sign(waiverID id.WaiverID, now time.Time) error {
	e := r.Entry(waiverID)
	if e == nil {
		return dErrors.New(dErrors.CodeWaiverNotApplicable, "waiver does not apply to this registrant")
	}
	if e.Signed {
		return dErrors.New(dErrors.CodeAlreadySigned, "waiver is already signed")
	}
	e.Signed = true
	signedAt := now
	e.SignedAt = &signedAt
	return nil
}

func (r *RegistrantRecord) Clone() *RegistrantRecord {
	c := *r
	if r.ChildID != nil {
		child := *r.ChildID
		c.ChildID = &child
	}
	c.Waivers = make([]WaiverEntry, len(r.Waivers))
	for i, e := range r.Waivers {
		c.Waivers[i] = e
		if e.SignedAt != nil {
			at := *e.SignedAt
			c.Waivers[i].SignedAt = &at
		}
	}
	return &c
}
