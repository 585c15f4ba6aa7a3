// Package httpx holds the HTTP plumbing shared by the catalog, membership and
// circulation handlers.
package httpx

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds request bodies; entity payloads are tiny.
const maxBodyBytes = 1 << 20

// Decode reads the JSON request body into v. Malformed bodies come back as a
// *BadRequestError.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return BadRequest("invalid request body: %v", err)
	}
	return nil
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ID parses the named chi URL parameter as an entity id.
func ID(r *http.Request, param string) (int64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, BadRequest("invalid %s %q", param, raw)
	}
	return id, nil
}

// BadRequestError is a malformed request: unparsable id or body.
type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func BadRequest(format string, args ...any) error {
	return &BadRequestError{msg: fmt.Sprintf(format, args...)}
}
