package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"roster/internal/waiver/metrics"
	"roster/internal/waiver/models"
	id "roster/pkg/domain"
)

const (
	templateKeyPrefix = "roster:waiver:"
	// generationTTL bounds how long a generation counter outlives its last write.
	generationTTL = 24 * time.Hour
)

// fillScript caches a loaded template only while the generation read before
// the load is still current. Writes bump the generation, so a load that
// overlapped a write is never cached.
var fillScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Backing is the authoritative store behind the cache.
type Backing interface {
	CreateIfNameAvailable(ctx context.Context, t *models.Template) error
	FindByID(ctx context.Context, templateID id.WaiverID) (*models.Template, error)
	List(ctx context.Context) ([]*models.Template, error)
	Archive(ctx context.Context, templateID id.WaiverID, now time.Time) (*models.Template, error)
	Revise(ctx context.Context, prevID id.WaiverID, next *models.Template, now time.Time) error
}

// RedisCache is a read-through cache for template lookups by ID. The catalog
// is read on every reconciliation and rarely written, so lookups are cached
// and concurrent misses for the same ID collapse into one backing read.
// Writes go to the backing store first and then invalidate the key and bump
// its generation. Cache failures degrade to the backing store.
type RedisCache struct {
	backing Backing
	client  redis.Cmdable
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type CacheOption func(*RedisCache)

func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *RedisCache) { c.metrics = m }
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *RedisCache) { c.logger = logger }
}

func NewRedisCache(backing Backing, client redis.Cmdable, ttl time.Duration, opts ...CacheOption) *RedisCache {
	c := &RedisCache{backing: backing, client: client, ttl: ttl, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Both keys of a template share a hash slot.
func templateKey(templateID id.WaiverID) string {
	return templateKeyPrefix + "{" + templateID.String() + "}"
}

func generationKey(templateID id.WaiverID) string {
	return templateKey(templateID) + ":gen"
}

func (c *RedisCache) generation(ctx context.Context, templateID id.WaiverID) (string, error) {
	gen, err := c.client.Get(ctx, generationKey(templateID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

func (c *RedisCache) FindByID(ctx context.Context, templateID id.WaiverID) (*models.Template, error) {
	key := templateKey(templateID)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t models.Template
		if jsonErr := json.Unmarshal(raw, &t); jsonErr == nil {
			c.metrics.ObserveCacheLookup("hit")
			return &t, nil
		}
		c.metrics.ObserveCacheLookup("error")
	case errors.Is(err, redis.Nil):
		c.metrics.ObserveCacheLookup("miss")
	default:
		c.metrics.ObserveCacheLookup("error")
		c.logger.WarnContext(ctx, "template cache read failed", "error", err, "waiver_id", templateID.String())
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		gen, genErr := c.generation(ctx, templateID)
		t, err := c.backing.FindByID(ctx, templateID)
		if err != nil {
			return nil, err
		}
		if genErr != nil {
			c.logger.WarnContext(ctx, "template cache generation read failed", "error", genErr, "waiver_id", templateID.String())
			return t, nil
		}
		c.fill(ctx, gen, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Template).Clone(), nil
}

func (c *RedisCache) fill(ctx context.Context, gen string, t *models.Template) {
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}
	keys := []string{templateKey(t.ID), generationKey(t.ID)}
	stored, err := fillScript.Run(ctx, c.client, keys, gen, payload, c.ttl.Milliseconds()).Int()
	switch {
	case err != nil:
		c.logger.WarnContext(ctx, "template cache write failed", "error", err, "waiver_id", t.ID.String())
	case stored == 0:
		c.logger.DebugContext(ctx, "template cache fill skipped after concurrent write", "waiver_id", t.ID.String())
	}
}

func (c *RedisCache) invalidate(ctx context.Context, templateIDs ...id.WaiverID) {
	genTTL := max(generationTTL, 2*c.ttl)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tid := range templateIDs {
			pipe.Incr(ctx, generationKey(tid))
			pipe.Expire(ctx, generationKey(tid), genTTL)
			pipe.Del(ctx, templateKey(tid))
		}
		return nil
	})
	for _, tid := range templateIDs {
		c.group.Forget(templateKey(tid))
	}
	if err != nil {
		c.logger.WarnContext(ctx, "template cache invalidation failed", "error", err)
	}
}

func (c *RedisCache) CreateIfNameAvailable(ctx context.Context, t *models.Template) error {
	return c.backing.CreateIfNameAvailable(ctx, t)
}

func (c *RedisCache) List(ctx context.Context) ([]*models.Template, error) {
	return c.backing.List(ctx)
}

func (c *RedisCache) Archive(ctx context.Context, templateID id.WaiverID, now time.Time) (*models.Template, error) {
	t, err := c.backing.Archive(ctx, templateID, now)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, templateID)
	return t, nil
}

func (c *RedisCache) Revise(ctx context.Context, prevID id.WaiverID, next *models.Template, now time.Time) error {
	if err := c.backing.Revise(ctx, prevID, next, now); err != nil {
		return err
	}
	c.invalidate(ctx, prevID, next.ID)
	return nil
}
