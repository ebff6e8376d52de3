package api

import (
	"errors"
	"net/http"

	"hearth/pkg/fault"
)

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fault.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, fault.ErrThreadTooDeep):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fault.ErrInvalidTarget),
		errors.Is(err, fault.ErrUnknownReactionKind),
		errors.Is(err, fault.ErrInvalidContent):
		return http.StatusBadRequest
	case errors.Is(err, fault.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, fault.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
