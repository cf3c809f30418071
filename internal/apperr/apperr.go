package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound   = errors.New("not found")  // 404
	ErrValidation = errors.New("validation") // 400
	ErrConflict   = errors.New("conflict")   // 409
	ErrForbidden  = errors.New("forbidden")  // 403
)

// Status maps a service error to its HTTP status code. Unknown errors are
// treated as internal.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
