package models

import (
	"strings"
	"time"

	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
)

const maxNameLength = 128

// Template is a waiver document that events can require registrants to sign.
//
// Invariants:
//   - ID never changes once an event references it; new content means a new Template
//   - Name is non-empty and unique (case-insensitive) among active templates
//   - Version starts at 1 and increases by one along a Supersedes chain
//   - Archived is terminal; archived templates stay resolvable by ID
type Template struct {
	ID          id.WaiverID  `json:"id"`
	Name        string       `json:"name"`
	DocumentRef string       `json:"document_ref"`
	Version     int          `json:"version"`
	Supersedes  *id.WaiverID `json:"supersedes,omitempty"`
	Archived    bool         `json:"archived"`
	CreatedAt   time.Time    `json:"created_at"`
	ArchivedAt  *time.Time   `json:"archived_at,omitempty"`
}

func NewTemplate(templateID id.WaiverID, name, documentRef string, now time.Time) (*Template, error) {
	name = strings.TrimSpace(name)
	documentRef = strings.TrimSpace(documentRef)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "template name cannot be empty")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "template name must be 128 characters or less")
	}
	if documentRef == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "template document reference cannot be empty")
	}
	return &Template{
		ID:          templateID,
		Name:        name,
		DocumentRef: documentRef,
		Version:     1,
		CreatedAt:   now,
	}, nil
}

func (t *Template) IsActive() bool {
	return !t.Archived
}

// NameKey is the form used for uniqueness comparisons.
func (t *Template) NameKey() string {
	return NameKey(t.Name)
}

func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CanArchive reports whether the template may transition to archived.
func (t *Template) CanArchive() error {
	if t.Archived {
		return dErrors.New(dErrors.CodeInvariantViolation, "template is already archived")
	}
	return nil
}

// ApplyArchive hides the template from new selection. Call CanArchive first.
func (t *Template) ApplyArchive(now time.Time) {
	t.Archived = true
	archivedAt := now
	t.ArchivedAt = &archivedAt
}

// NextVersion builds the template that replaces t. The caller archives t in the
// same store operation so the active name stays unique.
func (t *Template) NextVersion(nextID id.WaiverID, documentRef string, now time.Time) (*Template, error) {
	if err := t.CanArchive(); err != nil {
		return nil, err
	}
	next, err := NewTemplate(nextID, t.Name, documentRef, now)
	if err != nil {
		return nil, err
	}
	prev := t.ID
	next.Version = t.Version + 1
	next.Supersedes = &prev
	return next, nil
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (t *Template) Clone() *Template {
	c := *t
	if t.Supersedes != nil {
		s := *t.Supersedes
		c.Supersedes = &s
	}
	if t.ArchivedAt != nil {
		a := *t.ArchivedAt
		c.ArchivedAt = &a
	}
	return &c
}

// CreateTemplateRequest is the admin payload for a new template.
type CreateTemplateRequest struct {
	Name        string `json:"name"`
	DocumentRef string `json:"document_ref"`
}

// ReviseTemplateRequest replaces a template's document with a new version.
type ReviseTemplateRequest struct {
	DocumentRef string `json:"document_ref"`
}
