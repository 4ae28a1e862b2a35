// Package store persists event aggregates. Every backend implements the same
// conditional write: Update succeeds only when the stored revision equals the
// revision the caller loaded, and bumps it by one.
package store

import (
	"context"
	"sort"
	"sync"

	"roster/internal/event/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

// InMemory holds cloned aggregates behind a mutex. The CAS check and the
// write happen under one lock, matching the database backends.
type InMemory struct {
	mu     sync.RWMutex
	events map[id.EventID]*models.Event
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[id.EventID]*models.Event)}
}

func (s *InMemory) Create(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[e.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	e.Revision = 1
	s.events[e.ID] = e.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, eventID id.EventID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e.Clone(), nil
}

// List returns every event ordered by start time.
func (s *InMemory) List(_ context.Context) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Clone())
	}
	sortByStart(out)
	return out, nil
}

// ListByUser returns events holding a record owned by the user, either as an
// adult or as the parent of a registered child.
func (s *InMemory) ListByUser(_ context.Context, userID id.UserID) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events {
		for _, r := range e.Records() {
			if r.UserID == userID {
				out = append(out, e.Clone())
				break
			}
		}
	}
	sortByStart(out)
	return out, nil
}

// Update writes e if the stored revision still equals e.Revision.
func (s *InMemory) Update(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.events[e.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Revision != e.Revision {
		return sentinel.ErrConflict
	}
	e.Revision++
	s.events[e.ID] = e.Clone()
	return nil
}

func sortByStart(events []*models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].StartsAt.Equal(events[j].StartsAt) {
			return events[i].ID.String() < events[j].ID.String()
		}
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
}
