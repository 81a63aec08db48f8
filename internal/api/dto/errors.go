package dto

import (
	"errors"
	"net/http"

	"github.com/olyamironova/escrow-book/internal/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error(), Kind: domain.Kind(err)}
}

// HTTPStatus maps an engine error to a response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAsset),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidExpiry),
		errors.Is(err, domain.ErrInvalidSide),
		errors.Is(err, domain.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInactive),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrReentrant):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrNoMatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStalePrice),
		errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
