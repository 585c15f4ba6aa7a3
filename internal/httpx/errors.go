package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"lendinglibrary/internal/domain"
)

// LoanLimitMessage is the plain-text body sent when a member is at the loan ceiling.
var LoanLimitMessage = fmt.Sprintf("Member already has %d loans", domain.MaxActiveLoans)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	ID    *int64 `json:"id,omitempty"`
}

// WriteError maps err onto a response:
//
//	*domain.NotFoundError        404 {"error", "kind", "id"}
//	domain.ErrLoanLimitExceeded  400 text/plain
//	*BadRequestError             400 {"error"}
//	anything else                500, logged
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var notFound *domain.NotFoundError
	var badRequest *BadRequestError

	switch {
	case errors.As(err, &notFound):
		id := notFound.ID
		WriteJSON(w, http.StatusNotFound, errorBody{Error: notFound.Error(), Kind: string(notFound.Kind), ID: &id})
	case errors.Is(err, domain.ErrLoanLimitExceeded):
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(LoanLimitMessage))
	case errors.As(err, &badRequest):
		WriteJSON(w, http.StatusBadRequest, errorBody{Error: badRequest.Error()})
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"request_id", RequestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
