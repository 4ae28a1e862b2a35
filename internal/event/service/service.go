// Package service is the only mutation surface for events. Every change loads
// the aggregate, applies the mutation, and commits it with a conditional write
// on the loaded revision. Conflicts reload and retry a bounded number of times.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"roster/internal/event/metrics"
	"roster/internal/event/models"
	"roster/internal/identity"
	waivermodels "roster/internal/waiver/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	audit "roster/pkg/platform/audit"
	"roster/pkg/platform/sentinel"
)

const (
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 5 * time.Millisecond
)

// Store persists event aggregates. Update must fail with sentinel.ErrConflict
// when the stored revision no longer equals e.Revision.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	FindByID(ctx context.Context, eventID id.EventID) (*models.Event, error)
	List(ctx context.Context) ([]*models.Event, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Event, error)
	Update(ctx context.Context, e *models.Event) error
}

// ChildDirectory resolves a child under its parent. It returns child_not_found
// when the child is not in the parent's own list.
type ChildDirectory interface {
	ChildOf(ctx context.Context, parentID id.UserID, childID id.ChildID) (*identity.Child, error)
}

// TemplateCatalog resolves waiver templates by id, archived ones included.
type TemplateCatalog interface {
	Get(ctx context.Context, templateID id.WaiverID) (*waivermodels.Template, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	children       ChildDirectory
	catalog        TemplateCatalog
	logger         *slog.Logger
	auditPublisher AuditPublisher
	auditReader    audit.Reader
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	maxAttempts    int
	retryBackoff   time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithAuditReader enables the per-event audit trail.
func WithAuditReader(reader audit.Reader) Option {
	return func(s *Service) {
		s.auditReader = reader
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetry bounds the conditional-write loop. Attempt n waits n*backoff
// before reloading. Values below one attempt are ignored.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if maxAttempts >= 1 {
			s.maxAttempts = maxAttempts
		}
		if backoff >= 0 {
			s.retryBackoff = backoff
		}
	}
}

func New(store Store, children ChildDirectory, catalog TemplateCatalog, opts ...Option) *Service {
	s := &Service{
		store:        store,
		children:     children,
		catalog:      catalog,
		logger:       slog.Default(),
		tracer:       otel.Tracer("roster/internal/event/service"),
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutation changes a freshly loaded aggregate in place. An error aborts the
// operation without writing.
type mutation func(e *models.Event) error

// mutate runs fn against the latest revision of the event until a conditional
// write commits or attempts run out. Each attempt re-evaluates fn, so a
// registration that loses the last slot to a concurrent winner sees the full
// event on reload and fails with at_capacity.
func (s *Service) mutate(ctx context.Context, op string, eventID id.EventID, fn mutation) (*models.Event, error) {
	ctx, span := s.tracer.Start(ctx, "event."+op, trace.WithAttributes(
		attribute.String("event.id", eventID.String()),
	))
	defer span.End()

	e, attempts, err := s.attempt(ctx, op, eventID, fn)
	span.SetAttributes(attribute.Int("event.attempts", attempts))
	s.metrics.ObserveAttempts(op, attempts)
	if err != nil {
		span.SetAttributes(attribute.String("event.outcome", string(dErrors.CodeOf(err))))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("event.outcome", "ok"),
		attribute.Int64("event.revision", e.Revision),
	)
	return e, nil
}

func (s *Service) attempt(ctx context.Context, op string, eventID id.EventID, fn mutation) (*models.Event, int, error) {
	for attempt := 1; ; attempt++ {
		e, err := s.store.FindByID(ctx, eventID)
		if err != nil {
			return nil, attempt, wrapStoreErr(err, "failed to load event")
		}
		if err := fn(e); err != nil {
			return nil, attempt, err
		}

		err = s.store.Update(ctx, e)
		if err == nil {
			return e, attempt, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, attempt, wrapStoreErr(err, "failed to save event")
		}

		s.metrics.IncrementConflict(op)
		s.logger.DebugContext(ctx, "event revision moved, retrying",
			"operation", op,
			"event_id", eventID.String(),
			"attempt", attempt,
		)
		if attempt >= s.maxAttempts {
			return nil, attempt, dErrors.New(dErrors.CodeTryAgain, "event is busy, try again")
		}
		if err := s.wait(ctx, attempt); err != nil {
			return nil, attempt, err
		}
	}
}

func (s *Service) wait(ctx context.Context, attempt int) error {
	if s.retryBackoff <= 0 {
		return ctxErr(ctx)
	}
	timer := time.NewTimer(time.Duration(attempt) * s.retryBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "request ended while waiting to retry")
	}
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request ended while waiting to retry")
	}
	return nil
}

func wrapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "event not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeCollaboratorUnavailable, msg)
	}
}
