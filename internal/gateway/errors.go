package gateway

import (
	"errors"
	"net/http"

	"github.com/soyeahso/parley/internal/domain"
)

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrBadBody      = errors.New("malformed request body")
)

// errorCode maps an error to its HTTP status and wire code.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusGone, "session_expired"
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrScenarioAssigned):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrGeneration):
		return http.StatusBadGateway, "generation_failed"
	case errors.Is(err, domain.ErrEmptyInput),
		errors.Is(err, domain.ErrInvalidDifficulty),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidScenario),
		errors.Is(err, ErrBadBody):
		return http.StatusBadRequest, "invalid_params"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// errorShape converts err for a response frame. Internal errors are not
// echoed to the client.
func errorShape(err error) ErrorShape {
	status, code := errorCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return ErrorShape{
		Code:      code,
		Message:   msg,
		Retryable: status == http.StatusConflict || status == http.StatusBadGateway,
	}
}
