// Package identity owns the parent/child relationship. A child identity is
// only meaningful under the parent that onboarded it.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	"roster/pkg/platform/sentinel"
	"roster/pkg/requestcontext"
)

type Child struct {
	ID        id.ChildID `json:"id"`
	ParentID  id.UserID  `json:"parent_id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Birthday  *time.Time `json:"birthday,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type AddChildRequest struct {
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Birthday  *time.Time `json:"birthday,omitempty"`
	Gender    string     `json:"gender,omitempty"`
}

// Store persists children keyed by parent.
type Store interface {
	Add(ctx context.Context, child *Child) error
	Find(ctx context.Context, parentID id.UserID, childID id.ChildID) (*Child, error)
	ListByParent(ctx context.Context, parentID id.UserID) ([]*Child, error)
}

// Directory answers whether a child belongs to a parent and handles onboarding.
type Directory struct {
	store Store
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// ChildOf resolves childID under parentID. A child onboarded by another parent
// is reported as child_not_found.
func (d *Directory) ChildOf(ctx context.Context, parentID id.UserID, childID id.ChildID) (*Child, error) {
	child, err := d.store.Find(ctx, parentID, childID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeChildNotFound, "child is not registered under this parent")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeCollaboratorUnavailable, "failed to resolve child")
	}
	return child, nil
}

func (d *Directory) AddChild(ctx context.Context, parentID id.UserID, req AddChildRequest) (*Child, error) {
	first := strings.TrimSpace(req.FirstName)
	last := strings.TrimSpace(req.LastName)
	if first == "" || last == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "first and last name are required")
	}
	now := requestcontext.Now(ctx)
	if req.Birthday != nil && req.Birthday.After(now) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "birthday cannot be in the future")
	}
	child := &Child{
		ID:        id.NewChildID(),
		ParentID:  parentID,
		FirstName: first,
		LastName:  last,
		Birthday:  req.Birthday,
		Gender:    strings.TrimSpace(req.Gender),
		CreatedAt: now,
	}
	if err := d.store.Add(ctx, child); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCollaboratorUnavailable, "failed to add child")
	}
	return child, nil
}

func (d *Directory) Children(ctx context.Context, parentID id.UserID) ([]*Child, error) {
	children, err := d.store.ListByParent(ctx, parentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCollaboratorUnavailable, "failed to list children")
	}
	return children, nil
}
