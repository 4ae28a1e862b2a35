//go:build integration

package store

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roster/internal/waiver/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
	"roster/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.TruncateTables(context.Background(), "waiver_templates"))
	catalogContract(t, NewPostgres(pg.DB))
}

func TestMongoStore(t *testing.T) {
	mc := containers.GetManager().GetMongo(t)
	s := NewMongo(mc.Database("waivers_" + uuid.NewString()[:8]))
	require.NoError(t, s.EnsureIndexes(context.Background()))
	catalogContract(t, s)
}

func TestRedisCacheOverMemory(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(context.Background()))
	catalogContract(t, NewRedisCache(NewInMemory(), rc.Client, time.Minute))
}

func TestRedisCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))
	backing := NewInMemory()
	cache := NewRedisCache(backing, rc.Client, time.Minute, WithCacheMetrics(nil))
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	tmpl, err := models.NewTemplate(id.NewWaiverID(), "Cached", "cached.pdf", now)
	require.NoError(t, err)
	require.NoError(t, cache.CreateIfNameAvailable(ctx, tmpl))

	t.Run("miss fills the key", func(t *testing.T) {
		_, err := cache.FindByID(ctx, tmpl.ID)
		require.NoError(t, err)
		n, err := rc.Client.Exists(ctx, templateKey(tmpl.ID)).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("archive invalidates", func(t *testing.T) {
		_, err := cache.Archive(ctx, tmpl.ID, now)
		require.NoError(t, err)
		found, err := cache.FindByID(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.True(t, found.Archived)
	})

	t.Run("missing ids are not cached", func(t *testing.T) {
		missing := id.NewWaiverID()
		_, err := cache.FindByID(ctx, missing)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		n, err := rc.Client.Exists(ctx, templateKey(missing)).Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

// heldBacking pauses the next FindByID after it has loaded, so a write can
// commit between the load and the cache fill.
type heldBacking struct {
	*InMemory
	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func newHeldBacking() *heldBacking {
	return &heldBacking{InMemory: NewInMemory(), loaded: make(chan struct{}), release: make(chan struct{})}
}

func (h *heldBacking) FindByID(ctx context.Context, templateID id.WaiverID) (*models.Template, error) {
	t, err := h.InMemory.FindByID(ctx, templateID)
	if h.armed.CompareAndSwap(true, false) {
		close(h.loaded)
		<-h.release
	}
	return t, err
}

func TestRedisCacheLoadOverlappingArchive(t *testing.T) {
	ctx := context.Background()
	rc := containers.GetManager().GetRedis(t)
	require.NoError(t, rc.FlushAll(ctx))
	backing := newHeldBacking()
	cache := NewRedisCache(backing, rc.Client, time.Minute)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	tmpl, err := models.NewTemplate(id.NewWaiverID(), "Overlap", "overlap.pdf", now)
	require.NoError(t, err)
	require.NoError(t, cache.CreateIfNameAvailable(ctx, tmpl))

	backing.armed.Store(true)
	inflight := make(chan *models.Template, 1)
	go func() {
		found, err := cache.FindByID(ctx, tmpl.ID)
		assert.NoError(t, err)
		inflight <- found
	}()
	<-backing.loaded

	_, err = cache.Archive(ctx, tmpl.ID, now)
	require.NoError(t, err)

	found, err := cache.FindByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.True(t, found.Archived, "reads after the archive do not join the earlier load")

	close(backing.release)
	stale := <-inflight
	require.NotNil(t, stale)
	assert.False(t, stale.Archived, "the overlapping load saw the pre-archive row")

	found, err = cache.FindByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.True(t, found.Archived, "the overlapping load must not overwrite the cache")

	raw, err := rc.Client.Get(ctx, templateKey(tmpl.ID)).Bytes()
	require.NoError(t, err)
	var cached models.Template
	require.NoError(t, json.Unmarshal(raw, &cached))
	assert.True(t, cached.Archived)
}

func catalogContract(t *testing.T, s Backing) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	newTemplate := func(name string) *models.Template {
		tmpl, err := models.NewTemplate(id.NewWaiverID(), name, "waivers/templates/"+name+".pdf", now)
		require.NoError(t, err)
		return tmpl
	}

	t.Run("create and find", func(t *testing.T) {
		tmpl := newTemplate("Liability")
		require.NoError(t, s.CreateIfNameAvailable(ctx, tmpl))
		found, err := s.FindByID(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, "Liability", found.Name)
		assert.Equal(t, 1, found.Version)
		assert.True(t, found.CreatedAt.Equal(now))

		_, err = s.FindByID(ctx, id.NewWaiverID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("active name uniqueness", func(t *testing.T) {
		first := newTemplate("Photo")
		require.NoError(t, s.CreateIfNameAvailable(ctx, first))
		assert.ErrorIs(t, s.CreateIfNameAvailable(ctx, newTemplate("PHOTO")), sentinel.ErrAlreadyUsed)

		_, err := s.Archive(ctx, first.ID, now)
		require.NoError(t, err)
		assert.NoError(t, s.CreateIfNameAvailable(ctx, newTemplate("Photo")))
	})

	t.Run("archive twice conflicts", func(t *testing.T) {
		tmpl := newTemplate("Medical")
		require.NoError(t, s.CreateIfNameAvailable(ctx, tmpl))
		_, err := s.Archive(ctx, tmpl.ID, now)
		require.NoError(t, err)
		_, err = s.Archive(ctx, tmpl.ID, now)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
		_, err = s.Archive(ctx, id.NewWaiverID(), now)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("revise archives the previous version", func(t *testing.T) {
		prev := newTemplate("Travel")
		require.NoError(t, s.CreateIfNameAvailable(ctx, prev))
		next, err := prev.NextVersion(id.NewWaiverID(), "travel-v2.pdf", now)
		require.NoError(t, err)
		require.NoError(t, s.Revise(ctx, prev.ID, next, now))

		old, err := s.FindByID(ctx, prev.ID)
		require.NoError(t, err)
		assert.True(t, old.Archived)
		current, err := s.FindByID(ctx, next.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, current.Version)
		require.NotNil(t, current.Supersedes)
		assert.Equal(t, prev.ID, *current.Supersedes)

		again, err := prev.NextVersion(id.NewWaiverID(), "travel-v3.pdf", now)
		require.NoError(t, err)
		assert.ErrorIs(t, s.Revise(ctx, prev.ID, again, now), sentinel.ErrConflict)
	})

	t.Run("list keeps creation order", func(t *testing.T) {
		list, err := s.List(ctx)
		require.NoError(t, err)
		for i := 1; i < len(list); i++ {
			assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
		}
		names := make([]string, 0, len(list))
		for _, tmpl := range list {
			names = append(names, tmpl.Name)
		}
		assert.Equal(t, "Liability", names[0])
	})

	t.Run("concurrent creates with one name", func(t *testing.T) {
		var (
			wg sync.WaitGroup
			ok atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.CreateIfNameAvailable(ctx, newTemplate("Race")) == nil {
					ok.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), ok.Load())
	})
}
