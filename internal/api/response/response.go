package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Rrens/chatvault/internal/domain"
	"github.com/Rrens/chatvault/internal/llm"
	"github.com/rs/zerolog/log"
)

// Response represents a standard API response
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

// ErrorBody is the error payload of failures mapped from the error taxonomy
type ErrorBody struct {
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// Error sends an error response
func Error(w http.ResponseWriter, status int, message any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// FromError maps a service error onto a status code
func FromError(w http.ResponseWriter, err error) {
	var status int
	kind := ""
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRole):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrInvalidIdentity):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrLocalPersistence):
		status = http.StatusInsufficientStorage
		kind = "LocalPersistence"
	case errors.Is(err, llm.ErrGeneration):
		status = http.StatusBadGateway
		kind = "Generation"
	case errors.Is(err, domain.ErrAuthExpired), errors.Is(err, domain.ErrNetworkFailure):
		status = http.StatusBadGateway
		kind = domain.ErrorKind(err)
	default:
		log.Error().Err(err).Msg("Unhandled error")
		InternalError(w, "internal error")
		return
	}
	Error(w, status, ErrorBody{Kind: kind, Message: err.Error()})
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created sends a 201 Created response with data
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// OK sends a 200 OK response with data
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// BadRequest sends a 400 Bad Request response
func BadRequest(w http.ResponseWriter, message any) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(w http.ResponseWriter, message any) {
	Error(w, http.StatusUnauthorized, message)
}

// NotFound sends a 404 Not Found response
func NotFound(w http.ResponseWriter, message any) {
	Error(w, http.StatusNotFound, message)
}

// TooManyRequests sends a 429 response
func TooManyRequests(w http.ResponseWriter, message any) {
	Error(w, http.StatusTooManyRequests, message)
}

// InternalError sends a 500 Internal Server Error response
func InternalError(w http.ResponseWriter, message any) {
	Error(w, http.StatusInternalServerError, message)
}
