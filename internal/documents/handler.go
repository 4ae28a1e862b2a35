package documents

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "roster/pkg/domain-errors"
	"roster/pkg/platform/httputil"
	"roster/pkg/requestcontext"
)

type Lookup interface {
	List(ctx context.Context, kind Kind, page, limit int) (*Page, error)
}

type Handler struct {
	service Lookup
	logger  *slog.Logger
}

func NewHandler(service Lookup, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts GET /admin/documents. The admin guard is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/documents", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	page, err := optionalInt(q.Get("page"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "page must be a number"))
		return
	}
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a number"))
		return
	}

	result, err := h.service.List(ctx, Kind(q.Get("type")), page, limit)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to list documents",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
