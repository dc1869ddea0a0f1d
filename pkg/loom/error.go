package loom

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/toyz/loom/internal/errors"
)

// HttpError is a handler error that carries its own HTTP status
type HttpError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

// StatusCoder is implemented by errors that choose their HTTP status
type StatusCoder interface {
	HTTPStatus() int
}

// Error implements the error interface
func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus implements StatusCoder
func (e *HttpError) HTTPStatus() int {
	return e.StatusCode
}

// NewHttpError creates an HttpError
func NewHttpError(statusCode int, message string) *HttpError {
	return &HttpError{StatusCode: statusCode, Message: message}
}

// NewHttpErrorWithDetails creates an HttpError with a details payload
func NewHttpErrorWithDetails(statusCode int, message string, details any) *HttpError {
	return &HttpError{StatusCode: statusCode, Message: message, Details: details}
}

// ErrBadRequest creates a 400 Bad Request error
func ErrBadRequest(message string) *HttpError {
	return NewHttpError(http.StatusBadRequest, message)
}

// ErrBadRequestWithDetails creates a 400 Bad Request error with details
func ErrBadRequestWithDetails(message string, details any) *HttpError {
	return NewHttpErrorWithDetails(http.StatusBadRequest, message, details)
}

// ErrUnauthorized creates a 401 Unauthorized error
func ErrUnauthorized(message string) *HttpError {
	return NewHttpError(http.StatusUnauthorized, message)
}

// ErrForbidden creates a 403 Forbidden error
func ErrForbidden(message string) *HttpError {
	return NewHttpError(http.StatusForbidden, message)
}

// ErrNotFound creates a 404 Not Found error
func ErrNotFound(message string) *HttpError {
	return NewHttpError(http.StatusNotFound, message)
}

// ErrConflict creates a 409 Conflict error
func ErrConflict(message string) *HttpError {
	return NewHttpError(http.StatusConflict, message)
}

// ErrUnprocessableEntity creates a 422 Unprocessable Entity error
func ErrUnprocessableEntity(message string) *HttpError {
	return NewHttpError(http.StatusUnprocessableEntity, message)
}

// ErrInternalServerError creates a 500 Internal Server Error
func ErrInternalServerError(message string) *HttpError {
	return NewHttpError(http.StatusInternalServerError, message)
}

// StatusFor maps a dispatch error to an HTTP status. Coercion failures are
// 400, errors implementing StatusCoder keep their status, anything else is 500.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.IsCode(err, errors.ArgumentCoercionErrorCode) {
		return http.StatusBadRequest
	}
	var coder StatusCoder
	if stderrors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// ErrorBody returns the JSON body sent for a dispatch error. Messages of
// unexpected errors are not exposed.
func ErrorBody(err error) *HttpError {
	var httpErr *HttpError
	if stderrors.As(err, &httpErr) {
		return httpErr
	}

	status := StatusFor(err)
	if status == http.StatusBadRequest {
		body := ErrBadRequest(http.StatusText(status))
		var coercion *errors.ArgumentCoercionError
		if stderrors.As(err, &coercion) {
			body.Details = map[string]any{
				"parameter": coercion.Parameter,
				"value":     coercion.Value,
				"type":      coercion.Target,
			}
		}
		return body
	}
	return NewHttpError(status, http.StatusText(status))
}
