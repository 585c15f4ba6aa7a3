// internal/membership/handler.go
package membership

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lendinglibrary/internal/domain"
	"lendinglibrary/internal/httpx"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts /members on r. Extra routes, like the member's loans, can be
// added to the same subrouter by the caller through extend.
func (h *Handler) Register(r chi.Router, extend ...func(chi.Router)) {
	r.Route("/members", func(r chi.Router) {
		r.Get("/", h.handleListMembers)
		r.Post("/", h.handleCreateMember)
		r.Get("/{id}", h.handleGetMember)
		r.Put("/{id}", h.handleUpdateMember)
		r.Delete("/{id}", h.handleDeleteMember)
		for _, fn := range extend {
			fn(r)
		}
	})
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, members)
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req domain.Member
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	member, err := h.service.CreateMember(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var req domain.Member
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	member, err := h.service.UpdateMember(r.Context(), id, req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, member)
}

func (h *Handler) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteMember(r.Context(), id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
