// Package service implements the waiver template catalog.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"roster/internal/waiver/metrics"
	"roster/internal/waiver/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	audit "roster/pkg/platform/audit"
	"roster/pkg/platform/sentinel"
	"roster/pkg/requestcontext"
)

// Store persists templates and enforces active-name uniqueness.
type Store interface {
	CreateIfNameAvailable(ctx context.Context, t *models.Template) error
	FindByID(ctx context.Context, templateID id.WaiverID) (*models.Template, error)
	List(ctx context.Context) ([]*models.Template, error)
	Archive(ctx context.Context, templateID id.WaiverID, now time.Time) (*models.Template, error)
	Revise(ctx context.Context, prevID id.WaiverID, next *models.Template, now time.Time) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the waiver catalog. Templates are never deleted; archiving hides
// them from new selection while keeping them resolvable for existing events.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a template. Fails with duplicate_name when an active template
// already uses the name.
func (s *Service) Create(ctx context.Context, req models.CreateTemplateRequest) (*models.Template, error) {
	t, err := models.NewTemplate(id.NewWaiverID(), req.Name, req.DocumentRef, requestcontext.Now(ctx))
	if err != nil {
		return nil, invalidInput(err)
	}

	if err := s.store.CreateIfNameAvailable(ctx, t); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeDuplicateName, "an active waiver template already uses this name")
		}
		return nil, wrapStoreErr(err, "failed to create waiver template")
	}

	s.metrics.IncrementCreated()
	s.emit(ctx, audit.EventTemplateCreated, t.ID)
	return t, nil
}

func (s *Service) Get(ctx context.Context, templateID id.WaiverID) (*models.Template, error) {
	t, err := s.store.FindByID(ctx, templateID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load waiver template")
	}
	return t, nil
}

// List returns every template, archived included, in creation order.
func (s *Service) List(ctx context.Context) ([]*models.Template, error) {
	templates, err := s.store.List(ctx)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list waiver templates")
	}
	return templates, nil
}

// ListActive returns templates selectable for new events.
func (s *Service) ListActive(ctx context.Context) ([]*models.Template, error) {
	templates, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]*models.Template, 0, len(templates))
	for _, t := range templates {
		if t.IsActive() {
			active = append(active, t)
		}
	}
	return active, nil
}

func (s *Service) Archive(ctx context.Context, templateID id.WaiverID) (*models.Template, error) {
	t, err := s.store.Archive(ctx, templateID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "waiver template is already archived")
		}
		return nil, wrapStoreErr(err, "failed to archive waiver template")
	}
	s.metrics.IncrementArchived()
	s.emit(ctx, audit.EventTemplateArchived, t.ID)
	return t, nil
}

// Revise publishes new document content as a new template version and archives
// the previous one. Events keep referencing whichever version they selected.
func (s *Service) Revise(ctx context.Context, templateID id.WaiverID, req models.ReviseTemplateRequest) (*models.Template, error) {
	now := requestcontext.Now(ctx)
	prev, err := s.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	next, err := prev.NextVersion(id.NewWaiverID(), req.DocumentRef, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.Revise(ctx, prev.ID, next, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "waiver template is already archived")
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return nil, dErrors.New(dErrors.CodeDuplicateName, "an active waiver template already uses this name")
		}
		return nil, wrapStoreErr(err, "failed to revise waiver template")
	}

	s.metrics.IncrementRevised()
	s.emit(ctx, audit.EventTemplateRevised, next.ID)
	return next, nil
}

func (s *Service) emit(ctx context.Context, action audit.AuditEvent, templateID id.WaiverID) {
	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		Action:    string(action),
		WaiverID:  templateID,
		RequestID: requestcontext.RequestID(ctx),
	}
	if actor := requestcontext.UserID(ctx); !actor.IsNil() {
		event.ActorID = actor.String()
	}
	err := s.auditPublisher.Emit(ctx, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", string(action),
			"waiver_id", templateID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func invalidInput(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return dErrors.New(dErrors.CodeInvalidInput, de.Message)
	}
	return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid waiver template")
}

func wrapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "waiver template not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeCollaboratorUnavailable, msg)
	}
}
