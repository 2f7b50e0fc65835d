package services

import (
	"errors"
	"net/http"

	"progresspal-web/internal/apiclient"
	"progresspal-web/internal/engine"
)

type ValidationError struct {
	Fields  map[string]string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Validation error"
}

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// BusyError rejects a mutation while another one for the same user is
// still in flight.
type BusyError struct{ Message string }

func (e *BusyError) Error() string { return e.Message }

// RemoteError is a rejection or failure reported by the ProgressPal API.
// Status is 0 when the API could not be reached.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return e.Err }

var (
	errNoLiveSession = &NotFoundError{Message: "No live session"}
	errNothingToUndo = &NotFoundError{Message: "Nothing to undo"}
	errBusy          = &BusyError{Message: "Another change to this session is still in progress"}
)

func validationFrom(err error) error {
	var verr *engine.ValidationError
	if errors.As(err, &verr) {
		return &ValidationError{
			Fields:  map[string]string{verr.Field: verr.Message},
			Message: verr.Message,
		}
	}
	return err
}

func remoteFrom(err error) error {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) {
		return &RemoteError{Status: http.StatusBadGateway, Message: "Unexpected response from ProgressPal", Err: err}
	}

	switch apiErr.Status {
	case http.StatusUnauthorized:
		return &UnauthorizedError{Message: apiErr.Message}
	case http.StatusTooManyRequests:
		return &RateLimitError{Message: apiErr.Message}
	}
	return &RemoteError{Status: apiErr.Status, Message: apiErr.Message, Err: err}
}
