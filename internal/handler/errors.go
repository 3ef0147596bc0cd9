package handler

import (
	"errors"
	"net/http"

	"faturacao/internal/service"
)

// statusFor maps service sentinel errors to HTTP status codes. Anything
// unrecognized is treated as an internal failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrSeriesNotFound),
		errors.Is(err, service.ErrClientNotFound),
		errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, service.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidationFailed),
		errors.Is(err, service.ErrNotIssued):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSeriesLocked),
		errors.Is(err, service.ErrConcurrencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
