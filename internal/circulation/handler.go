// internal/circulation/handler.go
package circulation

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

// Register mounts /loans on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/loans", func(r chi.Router) {
		r.Get("/", h.handleListLoans)
		r.Post("/", h.handleCreateLoan)
		r.Get("/{id}", h.handleGetLoan)
		r.Put("/{id}", h.handleUpdateLoan)
		r.Delete("/{id}", h.handleDeleteLoan)
	})
}

// MemberRoutes adds GET /{id}/loans to the members subrouter.
func (h *Handler) MemberRoutes(r chi.Router) {
	r.Get("/{id}/loans", h.handleMemberLoans)
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListLoans(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req domain.LoanRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleUpdateLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var req domain.LoanRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loan, err := h.service.UpdateLoan(r.Context(), id, req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteLoan(r.Context(), id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMemberLoans(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	loans, err := h.service.MemberLoans(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}
