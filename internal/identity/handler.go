package identity

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"roster/pkg/platform/httputil"
	"roster/pkg/requestcontext"
)

// Handler serves child onboarding for the authenticated parent.
type Handler struct {
	directory *Directory
	logger    *slog.Logger
}

func NewHandler(directory *Directory, logger *slog.Logger) *Handler {
	return &Handler{directory: directory, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/me/children", h.handleList)
	r.Post("/me/children", h.handleAdd)
}

type childrenResponse struct {
	Children []*Child `json:"children"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	children, err := h.directory.Children(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list children", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	if children == nil {
		children = []*Child{}
	}
	httputil.WriteJSON(w, http.StatusOK, childrenResponse{Children: children})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AddChildRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	child, err := h.directory.AddChild(ctx, requestcontext.UserID(ctx), req)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to add child", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, child)
}
