// Package store persists waiver templates. Every backend returns sentinel
// errors; the service maps them to domain codes.
package store

import (
	"context"
	"sync"
	"time"

	"roster/internal/waiver/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

// InMemory keeps templates in insertion order.
type InMemory struct {
	mu        sync.RWMutex
	templates map[id.WaiverID]*models.Template
	order     []id.WaiverID
}

func NewInMemory() *InMemory {
	return &InMemory{templates: make(map[id.WaiverID]*models.Template)}
}

// activeNameTaken must be called with the lock held.
func (s *InMemory) activeNameTaken(key string, except id.WaiverID) bool {
	for tid, t := range s.templates {
		if tid != except && t.IsActive() && t.NameKey() == key {
			return true
		}
	}
	return false
}

func (s *InMemory) CreateIfNameAvailable(_ context.Context, t *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.templates[t.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	if s.activeNameTaken(t.NameKey(), t.ID) {
		return sentinel.ErrAlreadyUsed
	}
	s.templates[t.ID] = t.Clone()
	s.order = append(s.order, t.ID)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, templateID id.WaiverID) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[templateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Template, 0, len(s.order))
	for _, tid := range s.order {
		out = append(out, s.templates[tid].Clone())
	}
	return out, nil
}

// Archive marks the template archived. Returns ErrConflict when it already is.
func (s *InMemory) Archive(_ context.Context, templateID id.WaiverID, now time.Time) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[templateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if t.CanArchive() != nil {
		return nil, sentinel.ErrConflict
	}
	t.ApplyArchive(now)
	return t.Clone(), nil
}

// Revise archives prev and inserts next atomically.
func (s *InMemory) Revise(_ context.Context, prevID id.WaiverID, next *models.Template, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.templates[prevID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if prev.CanArchive() != nil {
		return sentinel.ErrConflict
	}
	if _, exists := s.templates[next.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	if s.activeNameTaken(next.NameKey(), prevID) {
		return sentinel.ErrAlreadyUsed
	}
	prev.ApplyArchive(now)
	s.templates[next.ID] = next.Clone()
	s.order = append(s.order, next.ID)
	return nil
}
