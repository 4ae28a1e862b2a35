//go:build integration

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roster/internal/event/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
	"roster/pkg/testutil/containers"
)

type eventStore interface {
	Create(ctx context.Context, e *models.Event) error
	FindByID(ctx context.Context, eventID id.EventID) (*models.Event, error)
	List(ctx context.Context) ([]*models.Event, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Event, error)
	Update(ctx context.Context, e *models.Event) error
}

func TestPostgresStore(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.TruncateTables(ctx, "events"))
	storeContract(t, NewPostgres(pg.DB))
}

func TestMongoStore(t *testing.T) {
	mc := containers.GetManager().GetMongo(t)
	ctx := context.Background()
	s := NewMongo(mc.Database("events_" + uuid.NewString()[:8]))
	require.NoError(t, s.EnsureIndexes(ctx))
	storeContract(t, s)
}

func storeContract(t *testing.T, s eventStore) {
	ctx := context.Background()
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	w1 := id.NewWaiverID()

	newEvent := func(startsIn time.Duration) *models.Event {
		e, err := models.NewEvent(id.NewEventID(), models.EventDetails{
			Title:                "Camp",
			Location:             "Lake",
			StartsAt:             now.Add(startsIn),
			EndsAt:               now.Add(startsIn + time.Hour),
			Capacity:             10,
			RegistrationDeadline: now.Add(time.Hour),
			Images:               []string{"a.png"},
		}, []models.EventWaiver{{WaiverID: w1, Required: true}}, false, now)
		require.NoError(t, err)
		return e
	}

	t.Run("round trips the aggregate", func(t *testing.T) {
		e := newEvent(24 * time.Hour)
		parent := id.UserID(uuid.New())
		e.AddRecord(models.NewRecord(models.ChildRef(parent, id.NewChildID()), e.SnapshotEntries(), now), now)
		require.NoError(t, e.Records()[0].Sign(w1, now))
		require.NoError(t, s.Create(ctx, e))

		found, err := s.FindByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), found.Revision)
		assert.Equal(t, e.Title, found.Title)
		assert.True(t, found.StartsAt.Equal(e.StartsAt))
		assert.Equal(t, []string{"a.png"}, found.Images)
		require.Len(t, found.Children, 1)
		assert.Equal(t, parent, found.Children[0].UserID)
		assert.True(t, found.Children[0].HasSigned(w1))
		assert.Empty(t, found.Adults)
	})

	t.Run("duplicate create", func(t *testing.T) {
		e := newEvent(24 * time.Hour)
		require.NoError(t, s.Create(ctx, e))
		assert.ErrorIs(t, s.Create(ctx, e.Clone()), sentinel.ErrAlreadyUsed)
	})

	t.Run("conditional update", func(t *testing.T) {
		e := newEvent(24 * time.Hour)
		require.NoError(t, s.Create(ctx, e))

		a, err := s.FindByID(ctx, e.ID)
		require.NoError(t, err)
		b, err := s.FindByID(ctx, e.ID)
		require.NoError(t, err)

		a.Title = "A"
		require.NoError(t, s.Update(ctx, a))
		assert.Equal(t, int64(2), a.Revision)

		b.Title = "B"
		assert.ErrorIs(t, s.Update(ctx, b), sentinel.ErrConflict)

		found, err := s.FindByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "A", found.Title)
		assert.Equal(t, int64(2), found.Revision)
	})

	t.Run("missing event", func(t *testing.T) {
		_, err := s.FindByID(ctx, id.NewEventID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.ErrorIs(t, s.Update(ctx, newEvent(time.Hour)), sentinel.ErrNotFound)
	})

	t.Run("concurrent writers commit once per revision", func(t *testing.T) {
		e := newEvent(24 * time.Hour)
		require.NoError(t, s.Create(ctx, e))

		const writers = 8
		loaded := make([]*models.Event, writers)
		for i := range loaded {
			var err error
			loaded[i], err = s.FindByID(ctx, e.ID)
			require.NoError(t, err)
		}
		var (
			wg        sync.WaitGroup
			committed atomic.Int32
		)
		for _, ev := range loaded {
			wg.Add(1)
			go func(ev *models.Event) {
				defer wg.Done()
				ev.AddRecord(models.NewRecord(models.AdultRef(id.UserID(uuid.New())), nil, now), now)
				if s.Update(ctx, ev) == nil {
					committed.Add(1)
				}
			}(ev)
		}
		wg.Wait()

		assert.Equal(t, int32(1), committed.Load())
		found, err := s.FindByID(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, found.Occupancy())
	})

	t.Run("lists by start and by user", func(t *testing.T) {
		user := id.UserID(uuid.New())
		late := newEvent(1000 * time.Hour)
		early := newEvent(999 * time.Hour)
		late.AddRecord(models.NewRecord(models.AdultRef(user), nil, now), now)
		early.AddRecord(models.NewRecord(models.ChildRef(user, id.NewChildID()), nil, now), now)
		require.NoError(t, s.Create(ctx, late))
		require.NoError(t, s.Create(ctx, early))

		all, err := s.List(ctx)
		require.NoError(t, err)
		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].StartsAt.Before(all[i-1].StartsAt))
		}

		mine, err := s.ListByUser(ctx, user)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, early.ID, mine[0].ID)
		assert.Equal(t, late.ID, mine[1].ID)
	})
}
