package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"roster/internal/event/compliance"
	"roster/internal/event/models"
	"roster/internal/event/service"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	audit "roster/pkg/platform/audit"
	"roster/pkg/platform/httputil"
	"roster/pkg/requestcontext"
)

// Service defines the event operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, req models.CreateEventRequest) (*models.Event, error)
	Update(ctx context.Context, eventID id.EventID, req models.UpdateEventRequest) (*models.Event, error)
	Publish(ctx context.Context, eventID id.EventID) (*models.Event, error)
	Unpublish(ctx context.Context, eventID id.EventID) (*models.Event, error)
	Get(ctx context.Context, eventID id.EventID) (*models.Event, error)
	GetPublished(ctx context.Context, eventID id.EventID) (*models.Event, error)
	List(ctx context.Context) ([]*models.Event, error)
	ListPublished(ctx context.Context) ([]*models.Event, error)

	RegisterAdult(ctx context.Context, eventID id.EventID, userID id.UserID) (*models.RegistrantRecord, error)
	RegisterChild(ctx context.Context, eventID id.EventID, parentID id.UserID, childID id.ChildID) (*models.RegistrantRecord, error)
	Unregister(ctx context.Context, eventID id.EventID, ref models.RegistrantRef) (*models.RegistrantRecord, error)
	RecordSigning(ctx context.Context, eventID id.EventID, ref models.RegistrantRef, waiverID id.WaiverID) (*models.RegistrantRecord, error)
	ReconcileTemplates(ctx context.Context, eventID id.EventID, waivers []models.EventWaiver) (*models.Event, error)

	Compliance(ctx context.Context, eventID id.EventID) (compliance.Summary, error)
	Registrants(ctx context.Context, eventID id.EventID) ([]compliance.RegistrantCompliance, error)
	ComplianceFor(ctx context.Context, eventID id.EventID, ref models.RegistrantRef) (compliance.RegistrantCompliance, error)
	RegistrationsFor(ctx context.Context, userID id.UserID) ([]service.Registration, error)
	AuditTrail(ctx context.Context, eventID id.EventID) ([]audit.Event, error)
}

// Handler serves the admin and registrant event endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdmin mounts the admin routes. Callers apply the admin guard.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Route("/admin/events", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleAdminList)
		r.Get("/{id}", h.handleAdminGet)
		r.Patch("/{id}", h.handleUpdate)
		r.Post("/{id}/publish", h.handlePublish)
		r.Post("/{id}/unpublish", h.handleUnpublish)
		r.Put("/{id}/waivers", h.handleReconcile)
		r.Get("/{id}/compliance", h.handleSummary)
		r.Get("/{id}/registrants", h.handleRegistrants)
		r.Get("/{id}/audit", h.handleAuditTrail)
	})
}

// RegisterPublic mounts the registrant routes. Callers apply authentication.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/me/registrations", h.handleMyRegistrations)
	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/registrations", h.handleRegister)
		r.Delete("/{id}/registrations", h.handleUnregister)
		r.Post("/{id}/signatures", h.handleSign)
		r.Get("/{id}/compliance", h.handleMyCompliance)
	})
}

// eventView is what registrants see: no other registrants' records.
type eventView struct {
	ID                   id.EventID           `json:"id"`
	Title                string               `json:"title"`
	Description          string               `json:"description,omitempty"`
	Location             string               `json:"location"`
	StartsAt             time.Time            `json:"starts_at"`
	EndsAt               time.Time            `json:"ends_at"`
	Capacity             int                  `json:"capacity"`
	Occupancy            int                  `json:"occupancy"`
	RegistrationDeadline time.Time            `json:"registration_deadline"`
	FeeCents             int64                `json:"fee_cents"`
	Images               []string             `json:"images,omitempty"`
	Waivers              []models.EventWaiver `json:"waivers"`
}

func toView(e *models.Event) eventView {
	return eventView{
		ID:                   e.ID,
		Title:                e.Title,
		Description:          e.Description,
		Location:             e.Location,
		StartsAt:             e.StartsAt,
		EndsAt:               e.EndsAt,
		Capacity:             e.Capacity,
		Occupancy:            e.Occupancy(),
		RegistrationDeadline: e.RegistrationDeadline,
		FeeCents:             e.FeeCents,
		Images:               e.Images,
		Waivers:              e.Waivers,
	}
}

type eventsResponse struct {
	Events []*models.Event `json:"events"`
}

type auditTrailResponse struct {
	Events []audit.Event `json:"events"`
}

type eventViewsResponse struct {
	Events []eventView `json:"events"`
}

type registrantsResponse struct {
	Registrants []compliance.RegistrantCompliance `json:"registrants"`
}

type registrationsResponse struct {
	Registrations []service.Registration `json:"registrations"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateEventRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, err, "invalid create event request")
		return
	}
	e, err := h.service.Create(ctx, req)
	if err != nil {
		h.fail(ctx, w, err, "failed to create event")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleAdminList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.service.List(ctx)
	if err != nil {
		h.fail(ctx, w, err, "failed to list events")
		return
	}
	if events == nil {
		events = []*models.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (h *Handler) handleAdminGet(w http.ResponseWriter, r *http.Request) {
	h.withEvent(w, r, "failed to get event", func(ctx context.Context, eventID id.EventID) (any, error) {
		return h.service.Get(ctx, eventID)
	})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateEventRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(r.Context(), w, err, "invalid update event request")
		return
	}
	h.withEvent(w, r, "failed to update event", func(ctx context.Context, eventID id.EventID) (any, error) {
		return h.service.Update(ctx, eventID, req)
	})
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	h.withEvent(w, r, "failed to publish event", func(ctx context.Context, eventID id.EventID) (any, error) {
		return h.service.Publish(ctx, eventID)
	})
}

func (h *Handler) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	h.withEvent(w, r, "failed to unpublish event", func(ctx context.Context, eventID id.EventID) (any, error) {
		return h.service.Unpublish(ctx, eventID)
	})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req models.ReconcileWaiversRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(r.Context(), w, err, "invalid reconcile request")
		return
	}
	h.withEvent(w, r, "failed to reconcile event waivers", func(ctx context.Context, eventID id.EventID) (any, error) {
		return h.service.ReconcileTemplates(ctx, eventID, req.Waivers)
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	h.withEvent(w, r, "failed to summarize compliance", func(ctx context.Context, eventID id.EventID) (any, error) {
		return h.service.Compliance(ctx, eventID)
	})
}

func (h *Handler) handleRegistrants(w http.ResponseWriter, r *http.Request) {
	h.withEvent(w, r, "failed to list registrants", func(ctx context.Context, eventID id.EventID) (any, error) {
		registrants, err := h.service.Registrants(ctx, eventID)
		if err != nil {
			return nil, err
		}
		return registrantsResponse{Registrants: registrants}, nil
	})
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	h.withEvent(w, r, "failed to read audit trail", func(ctx context.Context, eventID id.EventID) (any, error) {
		trail, err := h.service.AuditTrail(ctx, eventID)
		if err != nil {
			return nil, err
		}
		return auditTrailResponse{Events: trail}, nil
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	events, err := h.service.ListPublished(ctx)
	if err != nil {
		h.fail(ctx, w, err, "failed to list events")
		return
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, toView(e))
	}
	httputil.WriteJSON(w, http.StatusOK, eventViewsResponse{Events: views})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.withEvent(w, r, "failed to get event", func(ctx context.Context, eventID id.EventID) (any, error) {
		e, err := h.service.GetPublished(ctx, eventID)
		if err != nil {
			return nil, err
		}
		return toView(e), nil
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegistrationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(r.Context(), w, err, "invalid registration request")
		return
	}
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	caller := requestcontext.UserID(ctx)

	var (
		record *models.RegistrantRecord
		err    error
	)
	if req.ChildID != nil {
		record, err = h.service.RegisterChild(ctx, eventID, caller, *req.ChildID)
	} else {
		record, err = h.service.RegisterAdult(ctx, eventID, caller)
	}
	if err != nil {
		h.fail(ctx, w, err, "registration rejected")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req models.RegistrationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(r.Context(), w, err, "invalid unregistration request")
		return
	}
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.service.Unregister(ctx, eventID, callerRef(ctx, req.ChildID)); err != nil {
		h.fail(ctx, w, err, "unregistration rejected")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	var req models.SignatureRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(r.Context(), w, err, "invalid signature request")
		return
	}
	if req.WaiverID.IsNil() {
		h.fail(r.Context(), w, dErrors.New(dErrors.CodeBadRequest, "waiver_id is required"), "invalid signature request")
		return
	}
	h.withEvent(w, r, "signing rejected", func(ctx context.Context, eventID id.EventID) (any, error) {
		return h.service.RecordSigning(ctx, eventID, callerRef(ctx, req.ChildID), req.WaiverID)
	})
}

func (h *Handler) handleMyCompliance(w http.ResponseWriter, r *http.Request) {
	var childID *id.ChildID
	if raw := r.URL.Query().Get("child_id"); raw != "" {
		parsed, err := id.ParseChildID(raw)
		if err != nil {
			h.fail(r.Context(), w, err, "invalid child id")
			return
		}
		childID = &parsed
	}
	h.withEvent(w, r, "failed to get compliance", func(ctx context.Context, eventID id.EventID) (any, error) {
		return h.service.ComplianceFor(ctx, eventID, callerRef(ctx, childID))
	})
}

func (h *Handler) handleMyRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regs, err := h.service.RegistrationsFor(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, err, "failed to list registrations")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, registrationsResponse{Registrations: regs})
}

// callerRef targets the caller, or one of the caller's children when childID
// is set. A child is always scoped to the authenticated parent.
func callerRef(ctx context.Context, childID *id.ChildID) models.RegistrantRef {
	caller := requestcontext.UserID(ctx)
	if childID != nil {
		return models.ChildRef(caller, *childID)
	}
	return models.AdultRef(caller)
}

func (h *Handler) eventID(w http.ResponseWriter, r *http.Request) (id.EventID, bool) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(r.Context(), w, err, "invalid event id")
		return id.EventID{}, false
	}
	return eventID, true
}

// withEvent parses the event id, runs fn and writes its result as 200.
func (h *Handler) withEvent(w http.ResponseWriter, r *http.Request, msg string, fn func(context.Context, id.EventID) (any, error)) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	out, err := fn(ctx, eventID)
	if err != nil {
		h.fail(ctx, w, err, msg)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
