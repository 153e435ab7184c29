// Package dwellerr defines the error taxonomy shared by the ingestion,
// engine, feedback, and query layers, and maps it to HTTP status codes.
package dwellerr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidPayload   = errors.New("ERR_INVALID_PAYLOAD")
	ErrOutOfOrder       = errors.New("ERR_OUT_OF_ORDER")
	ErrNotFound         = errors.New("ERR_NOT_FOUND")
	ErrConflict         = errors.New("ERR_CONFLICT")
	ErrInvalidSpan      = errors.New("ERR_INVALID_SPAN")
	ErrTimeout          = errors.New("ERR_TIMEOUT")
	ErrStoreUnavailable = errors.New("ERR_STORE_UNAVAILABLE")
	ErrInternal         = errors.New("ERR_INTERNAL")
)

// StatusFor maps a dwellerr sentinel (possibly wrapped) to its transport
// status code, defaulting to 500 for anything unrecognized.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrInvalidSpan):
		return http.StatusBadRequest
	case errors.Is(err, ErrOutOfOrder):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
