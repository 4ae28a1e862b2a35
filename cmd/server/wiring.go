package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"roster/internal/documents"
	eventmetrics "roster/internal/event/metrics"
	eventservice "roster/internal/event/service"
	eventstore "roster/internal/event/store"
	"roster/internal/identity"
	"roster/internal/platform/config"
	"roster/internal/platform/kafka"
	"roster/internal/platform/mongo"
	"roster/internal/platform/postgres"
	"roster/internal/platform/redis"
	"roster/internal/ratelimit"
	waivermetrics "roster/internal/waiver/metrics"
	waiverservice "roster/internal/waiver/service"
	waiverstore "roster/internal/waiver/store"
	audit "roster/pkg/platform/audit"
	"roster/pkg/platform/audit/consumer"
	"roster/pkg/platform/audit/publisher"
	"roster/pkg/platform/audit/store/failover"
	kafkastore "roster/pkg/platform/audit/store/kafka"
	auditmemory "roster/pkg/platform/audit/store/memory"
	auditpostgres "roster/pkg/platform/audit/store/postgres"
	"roster/pkg/platform/circuit"
)

// application holds the constructed services and the resources they borrow.
type application struct {
	events    *eventservice.Service
	catalog   *waiverservice.Service
	directory *identity.Directory
	documents *documents.Service
	limiter   *ratelimit.Middleware

	checks  []func(context.Context) error
	closers []func()
	// workers run for the life of the process alongside the HTTP server.
	workers []func(context.Context) error
}

func (a *application) health(ctx context.Context) error {
	var errs []error
	for _, check := range a.checks {
		errs = append(errs, check(ctx))
	}
	return errors.Join(errs...)
}

// close releases resources in reverse acquisition order.
func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type stores struct {
	waivers  waiverservice.Store
	events   eventservice.Store
	children identity.Store
	db       *sql.DB
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	st, err := openStores(ctx, cfg, log, app)
	if err != nil {
		return nil, err
	}

	waiverMetrics := waivermetrics.New()
	templates := st.waivers
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	var limitStore ratelimit.Store
	if rc != nil {
		app.closers = append(app.closers, func() { _ = rc.Close() })
		limitStore = ratelimit.NewRedis(rc.Client)
		app.checks = append(app.checks, rc.Health)
		templates = waiverstore.NewRedisCache(st.waivers, rc.Client, cfg.Redis.CacheTTL,
			waiverstore.WithCacheMetrics(waiverMetrics),
			waiverstore.WithCacheLogger(log),
		)
		log.Info("waiver template cache enabled", "ttl", cfg.Redis.CacheTTL)
	}

	if cfg.RateLimit.Enabled {
		app.limiter = rateLimiter(cfg.RateLimit, limitStore, log)
	}

	sink, reader, err := auditSink(ctx, cfg, log, st.db, app)
	if err != nil {
		return nil, err
	}
	pubOpts := []publisher.Option{publisher.WithLogger(log)}
	if cfg.Audit.AsyncBuffer > 0 {
		pubOpts = append(pubOpts, publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer))
	}
	auditPublisher := publisher.NewPublisher(sink, pubOpts...)
	app.closers = append(app.closers, auditPublisher.Close)

	app.catalog = waiverservice.New(templates,
		waiverservice.WithLogger(log),
		waiverservice.WithAuditPublisher(auditPublisher),
		waiverservice.WithMetrics(waiverMetrics),
	)
	app.directory = identity.NewDirectory(st.children)
	app.events = eventservice.New(st.events, app.directory, app.catalog,
		eventservice.WithLogger(log),
		eventservice.WithAuditPublisher(auditPublisher),
		eventservice.WithAuditReader(reader),
		eventservice.WithMetrics(eventmetrics.New()),
		eventservice.WithRetry(cfg.Registration.MaxAttempts, cfg.Registration.RetryBackoff),
	)

	var lister documents.Lister = documents.NewMemoryLister()
	if cfg.Documents.Root != "" {
		lister = documents.NewFSLister(os.DirFS(cfg.Documents.Root))
	}
	app.documents = documents.NewService(lister, cfg.Documents.BaseURL)
	return app, nil
}

func openStores(ctx context.Context, cfg config.Server, log *slog.Logger, app *application) (stores, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return stores{}, err
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		app.checks = append(app.checks, db.PingContext)
		if err := postgres.Migrate(ctx, db); err != nil {
			return stores{}, err
		}
		return stores{
			waivers:  waiverstore.NewPostgres(db),
			events:   eventstore.NewPostgres(db),
			children: identity.NewPostgresStore(db),
			db:       db,
		}, nil

	case config.BackendMongo:
		client, db, err := mongo.Open(ctx, cfg.Mongo)
		if err != nil {
			return stores{}, err
		}
		app.closers = append(app.closers, func() { _ = client.Disconnect(context.Background()) })
		app.checks = append(app.checks, func(ctx context.Context) error { return client.Ping(ctx, nil) })
		waivers := waiverstore.NewMongo(db)
		if err := waivers.EnsureIndexes(ctx); err != nil {
			return stores{}, err
		}
		events := eventstore.NewMongo(db)
		if err := events.EnsureIndexes(ctx); err != nil {
			return stores{}, err
		}
		log.Warn("child directory is kept in memory with the mongo backend")
		return stores{
			waivers:  waivers,
			events:   events,
			children: identity.NewInMemoryStore(),
		}, nil

	case config.BackendMemory:
		return stores{
			waivers:  waiverstore.NewInMemory(),
			events:   eventstore.NewInMemory(),
			children: identity.NewInMemoryStore(),
		}, nil
	}
	return stores{}, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// rateLimiter counts in Redis when it is configured and in memory otherwise.
// With Redis, the in-memory store takes over while Redis is failing.
func rateLimiter(cfg config.RateLimitConfig, shared ratelimit.Store, log *slog.Logger) *ratelimit.Middleware {
	if shared == nil {
		return ratelimit.New(ratelimit.NewInMemory(), cfg.Requests, cfg.Window, ratelimit.WithLogger(log))
	}
	return ratelimit.New(shared, cfg.Requests, cfg.Window,
		ratelimit.WithFallback(ratelimit.NewInMemory()),
		ratelimit.WithLogger(log),
	)
}

// auditSink prefers Kafka, then the relational table, then memory. With Kafka,
// the table (or memory) catches events while the broker is failing, and a
// projector copies the topic into the table so the trail stays readable.
// The returned reader is nil when no complete trail can be served.
func auditSink(ctx context.Context, cfg config.Server, log *slog.Logger, db *sql.DB, app *application) (audit.Store, audit.Reader, error) {
	var local interface {
		audit.Store
		audit.Reader
	}
	if db != nil {
		local = auditpostgres.New(db)
	} else {
		local = auditmemory.NewInMemoryStore()
	}

	producer, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if producer == nil {
		return local, local, nil
	}
	app.closers = append(app.closers, producer.Close)
	app.checks = append(app.checks, producer.Ping)
	log.Info("audit events go to kafka", "topic", cfg.Kafka.AuditTopic)

	sink := failover.New(kafkastore.New(producer, cfg.Kafka.AuditTopic), local,
		failover.WithLogger(log),
		failover.WithBreaker(circuit.New("audit-kafka",
			circuit.WithFailureThreshold(cfg.Audit.FailureThreshold),
			circuit.WithCooldown(cfg.Audit.ProbeInterval),
		)),
	)
	if db == nil {
		log.Warn("audit trail reads are disabled: kafka without postgres keeps no queryable copy")
		return sink, nil, nil
	}

	consumerClient, err := kafka.NewConsumer(ctx, cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	app.closers = append(app.closers, consumerClient.Close)
	projector := consumer.NewProjector(consumerClient, local, consumer.WithLogger(log))
	app.workers = append(app.workers, projector.Run)
	return sink, local, nil
}
