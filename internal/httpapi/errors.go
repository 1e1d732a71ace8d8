package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/millmeter/internal/errs"
)

// ErrorResponse is the standard error payload for the API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func WriteErr(w http.ResponseWriter, status int, msg, code string) {
	ToJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func BadRequest(w http.ResponseWriter, msg string) {
	WriteErr(w, http.StatusBadRequest, msg, "bad_request")
}

// WriteDomainErr maps a service error onto a status code. Domain errors carry
// their message to the client; anything else is logged and reported generically
// so storage details never leak.
func WriteDomainErr(w http.ResponseWriter, r *http.Request, l *slog.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		WriteErr(w, http.StatusUnprocessableEntity, err.Error(), "validation_error")
	case errors.Is(err, errs.ErrMissingField):
		WriteErr(w, http.StatusBadRequest, err.Error(), "missing_field")
	case errors.Is(err, errs.ErrInvalid):
		WriteErr(w, http.StatusBadRequest, err.Error(), "invalid")
	case errors.Is(err, errs.ErrNotFound):
		WriteErr(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, errs.ErrForbidden):
		WriteErr(w, http.StatusForbidden, err.Error(), "forbidden")
	case errors.Is(err, errs.ErrConflict):
		WriteErr(w, http.StatusConflict, err.Error(), "conflict")
	case errors.Is(err, errs.ErrLockUnavailable):
		WriteErr(w, http.StatusServiceUnavailable, "timeline busy, retry", "lock_unavailable")
	default:
		l.Error("request failed", "req_id", chimw.GetReqID(r.Context()), "method", r.Method, "path", r.URL.Path, "err", err)
		WriteErr(w, http.StatusInternalServerError, "internal error", "internal")
	}
}
