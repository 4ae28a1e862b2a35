package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"roster/internal/event/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) newEvent(startsIn time.Duration) *models.Event {
	e, err := models.NewEvent(id.NewEventID(), models.EventDetails{
		Title:                "Camp",
		Location:             "Lake",
		StartsAt:             s.now.Add(startsIn),
		EndsAt:               s.now.Add(startsIn + time.Hour),
		RegistrationDeadline: s.now.Add(time.Hour),
	}, nil, false, s.now)
	s.Require().NoError(err)
	return e
}

func (s *InMemoryStoreSuite) TestCreate() {
	s.Run("starts at revision one", func() {
		e := s.newEvent(24 * time.Hour)
		s.Require().NoError(s.store.Create(s.ctx, e))
		s.Equal(int64(1), e.Revision)

		found, err := s.store.FindByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Equal(int64(1), found.Revision)
		s.Equal("Camp", found.Title)
	})

	s.Run("duplicate id rejected", func() {
		e := s.newEvent(24 * time.Hour)
		s.Require().NoError(s.store.Create(s.ctx, e))
		s.ErrorIs(s.store.Create(s.ctx, e), sentinel.ErrAlreadyUsed)
	})

	s.Run("unknown id is not found", func() {
		_, err := s.store.FindByID(s.ctx, id.NewEventID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestUpdate() {
	s.Run("bumps revision on match", func() {
		e := s.newEvent(24 * time.Hour)
		s.Require().NoError(s.store.Create(s.ctx, e))

		loaded, err := s.store.FindByID(s.ctx, e.ID)
		s.Require().NoError(err)
		loaded.Title = "Renamed"
		s.Require().NoError(s.store.Update(s.ctx, loaded))
		s.Equal(int64(2), loaded.Revision)

		found, err := s.store.FindByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Equal("Renamed", found.Title)
		s.Equal(int64(2), found.Revision)
	})

	s.Run("stale revision conflicts and leaves state untouched", func() {
		e := s.newEvent(24 * time.Hour)
		s.Require().NoError(s.store.Create(s.ctx, e))

		first, _ := s.store.FindByID(s.ctx, e.ID)
		second, _ := s.store.FindByID(s.ctx, e.ID)
		first.Title = "First"
		second.Title = "Second"

		s.Require().NoError(s.store.Update(s.ctx, first))
		s.ErrorIs(s.store.Update(s.ctx, second), sentinel.ErrConflict)
		s.Equal(int64(1), second.Revision)

		found, _ := s.store.FindByID(s.ctx, e.ID)
		s.Equal("First", found.Title)
	})

	s.Run("missing event", func() {
		e := s.newEvent(24 * time.Hour)
		s.ErrorIs(s.store.Update(s.ctx, e), sentinel.ErrNotFound)
	})

	s.Run("mutating a loaded copy does not leak", func() {
		e := s.newEvent(24 * time.Hour)
		s.Require().NoError(s.store.Create(s.ctx, e))
		loaded, _ := s.store.FindByID(s.ctx, e.ID)
		loaded.AddRecord(models.NewRecord(models.AdultRef(id.UserID(uuid.New())), nil, s.now), s.now)

		found, _ := s.store.FindByID(s.ctx, e.ID)
		s.Equal(0, found.Occupancy())
	})
}

func (s *InMemoryStoreSuite) TestConcurrentUpdatesCommitOnce() {
	e := s.newEvent(24 * time.Hour)
	s.Require().NoError(s.store.Create(s.ctx, e))

	const writers = 16
	var (
		wg        sync.WaitGroup
		committed atomic.Int32
		start     = make(chan struct{})
	)
	loaded := make([]*models.Event, writers)
	for i := range loaded {
		loaded[i], _ = s.store.FindByID(s.ctx, e.ID)
	}
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(ev *models.Event) {
			defer wg.Done()
			<-start
			ev.AddRecord(models.NewRecord(models.AdultRef(id.UserID(uuid.New())), nil, s.now), s.now)
			if s.store.Update(s.ctx, ev) == nil {
				committed.Add(1)
			}
		}(loaded[i])
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), committed.Load())
	found, _ := s.store.FindByID(s.ctx, e.ID)
	s.Equal(1, found.Occupancy())
	s.Equal(int64(2), found.Revision)
}

func (s *InMemoryStoreSuite) TestListing() {
	later := s.newEvent(72 * time.Hour)
	sooner := s.newEvent(24 * time.Hour)
	other := s.newEvent(48 * time.Hour)
	s.Require().NoError(s.store.Create(s.ctx, later))
	s.Require().NoError(s.store.Create(s.ctx, sooner))
	s.Require().NoError(s.store.Create(s.ctx, other))

	s.Run("ordered by start", func() {
		all, err := s.store.List(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(all, 3)
		s.Equal(sooner.ID, all[0].ID)
		s.Equal(other.ID, all[1].ID)
		s.Equal(later.ID, all[2].ID)
	})

	s.Run("by user covers adult and child records", func() {
		parent := id.UserID(uuid.New())
		child := id.NewChildID()

		ev, _ := s.store.FindByID(s.ctx, later.ID)
		ev.AddRecord(models.NewRecord(models.AdultRef(parent), nil, s.now), s.now)
		s.Require().NoError(s.store.Update(s.ctx, ev))

		ev, _ = s.store.FindByID(s.ctx, sooner.ID)
		ev.AddRecord(models.NewRecord(models.ChildRef(parent, child), nil, s.now), s.now)
		s.Require().NoError(s.store.Update(s.ctx, ev))

		mine, err := s.store.ListByUser(s.ctx, parent)
		s.Require().NoError(err)
		s.Require().Len(mine, 2)
		s.Equal(sooner.ID, mine[0].ID)
		s.Equal(later.ID, mine[1].ID)

		none, err := s.store.ListByUser(s.ctx, id.UserID(uuid.New()))
		s.Require().NoError(err)
		s.Empty(none)
	})
}
