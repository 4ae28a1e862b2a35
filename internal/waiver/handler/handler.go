package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"roster/internal/waiver/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	"roster/pkg/platform/httputil"
	"roster/pkg/requestcontext"
)

// Service defines the catalog operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, req models.CreateTemplateRequest) (*models.Template, error)
	Get(ctx context.Context, templateID id.WaiverID) (*models.Template, error)
	List(ctx context.Context) ([]*models.Template, error)
	ListActive(ctx context.Context) ([]*models.Template, error)
	Archive(ctx context.Context, templateID id.WaiverID) (*models.Template, error)
	Revise(ctx context.Context, templateID id.WaiverID, req models.ReviseTemplateRequest) (*models.Template, error)
}

// Handler serves the administrative waiver catalog endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the catalog routes. Callers apply authentication and the
// admin guard on the router beforehand.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/waivers", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/archive", h.handleArchive)
		r.Post("/{id}/revise", h.handleRevise)
	})
}

type listResponse struct {
	Templates []*models.Template `json:"templates"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, err, "invalid create template request")
		return
	}
	t, err := h.service.Create(ctx, req)
	if err != nil {
		h.fail(ctx, w, err, "failed to create waiver template")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		templates []*models.Template
		err       error
	)
	if r.URL.Query().Get("active") == "true" {
		templates, err = h.service.ListActive(ctx)
	} else {
		templates, err = h.service.List(ctx)
	}
	if err != nil {
		h.fail(ctx, w, err, "failed to list waiver templates")
		return
	}
	if templates == nil {
		templates = []*models.Template{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Templates: templates})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templateID, err := id.ParseWaiverID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, err, "invalid waiver id")
		return
	}
	t, err := h.service.Get(ctx, templateID)
	if err != nil {
		h.fail(ctx, w, err, "failed to get waiver template")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templateID, err := id.ParseWaiverID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, err, "invalid waiver id")
		return
	}
	t, err := h.service.Archive(ctx, templateID)
	if err != nil {
		h.fail(ctx, w, err, "failed to archive waiver template")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleRevise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templateID, err := id.ParseWaiverID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, err, "invalid waiver id")
		return
	}
	var req models.ReviseTemplateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(ctx, w, err, "invalid revise template request")
		return
	}
	t, err := h.service.Revise(ctx, templateID, req)
	if err != nil {
		h.fail(ctx, w, err, "failed to revise waiver template")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
