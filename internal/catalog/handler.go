// internal/catalog/handler.go
package catalog

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

// Register mounts /authors and /books on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/authors", func(r chi.Router) {
		r.Get("/", h.handleListAuthors)
		r.Post("/", h.handleCreateAuthor)
		r.Get("/{id}", h.handleGetAuthor)
		r.Put("/{id}", h.handleUpdateAuthor)
		r.Delete("/{id}", h.handleDeleteAuthor)
	})
	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.handleListBooks)
		r.Post("/", h.handleCreateBook)
		r.Get("/{id}", h.handleGetBook)
		r.Put("/{id}", h.handleUpdateBook)
		r.Delete("/{id}", h.handleDeleteBook)
	})
}

func (h *Handler) handleListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authors)
}

func (h *Handler) handleGetAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	author, err := h.service.GetAuthor(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, author)
}

func (h *Handler) handleCreateAuthor(w http.ResponseWriter, r *http.Request) {
	var req domain.Author
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	author, err := h.service.CreateAuthor(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, author)
}

func (h *Handler) handleUpdateAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var req domain.Author
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	author, err := h.service.UpdateAuthor(r.Context(), id, req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, author)
}

func (h *Handler) handleDeleteAuthor(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteAuthor(r.Context(), id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, books)
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req domain.Book
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	book, err := h.service.CreateBook(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	var req domain.Book
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	book, err := h.service.UpdateBook(r.Context(), id, req)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
