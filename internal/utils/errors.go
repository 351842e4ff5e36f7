package utils

import (
	"errors"
	"net/http"
)

// Domain error taxonomy. Services return these (usually wrapped with %w);
// handlers translate them to the API envelope with ErrorKind.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("transaction not found")
	ErrSessionNotFound   = errors.New("session not found")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrGatewayFailure    = errors.New("payment gateway failure")
)

// ErrorKind maps a domain error to its API error code and HTTP status.
func ErrorKind(err error) (code string, status int) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "INVALID_REQUEST", http.StatusBadRequest
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS", http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, ErrSessionNotFound):
		return "SESSION_NOT_FOUND", http.StatusNotFound
	case errors.Is(err, ErrAlreadyProcessed):
		return "ALREADY_PROCESSED", http.StatusConflict
	case errors.Is(err, ErrGatewayFailure):
		return "GATEWAY_FAILURE", http.StatusBadGateway
	default:
		return "INTERNAL_ERROR", http.StatusInternalServerError
	}
}
