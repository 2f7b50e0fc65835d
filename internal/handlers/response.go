package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"progresspal-web/internal/middleware"
	"progresspal-web/internal/models"
	"progresspal-web/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get(middleware.RequestIDHeader),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get(middleware.RequestIDHeader),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr   *services.ValidationError
		conflictErr     *services.ConflictError
		notFoundErr     *services.NotFoundError
		unauthorizedErr *services.UnauthorizedError
		forbiddenErr    *services.ForbiddenError
		rateLimitErr    *services.RateLimitError
		busyErr         *services.BusyError
		remoteErr       *services.RemoteError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", validationErr.Error(), validationErr.Fields, r))
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", conflictErr.Message, r))
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFoundErr.Message, r))
	case errors.As(err, &unauthorizedErr):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthorizedErr.Message, r))
	case errors.As(err, &forbiddenErr):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbiddenErr.Message, r))
	case errors.As(err, &rateLimitErr):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimitErr.Message, r))
	case errors.As(err, &busyErr):
		writeJSON(w, http.StatusConflict, errorResp("MUTATION_IN_FLIGHT", busyErr.Message, r))
	case errors.As(err, &remoteErr):
		status, code := remoteStatus(remoteErr.Status)
		writeJSON(w, status, errorResp(code, remoteErr.Message, r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}

// remoteStatus passes the API's status through. An unreachable API (status
// 0) or an API-side 5xx surfaces as 502.
func remoteStatus(status int) (int, string) {
	switch {
	case status == http.StatusConflict:
		return status, "CONFLICT"
	case status == http.StatusForbidden:
		return status, "FORBIDDEN"
	case status == http.StatusNotFound:
		return status, "NOT_FOUND"
	case status == http.StatusBadRequest:
		return status, "VALIDATION_ERROR"
	case status >= 400 && status < 500:
		return status, "REMOTE_ERROR"
	}
	return http.StatusBadGateway, "REMOTE_ERROR"
}
