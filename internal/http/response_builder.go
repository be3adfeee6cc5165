// Package http provides the JSON API server and its handlers.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the translation of domain errors into status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value serialized as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. A nil body writes no content.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(ErrorBody{Error: message})
}

// ValidationErrorResponse creates a 422 response listing field problems.
func ValidationErrorResponse(verr *core.ValidationError) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(http.StatusUnprocessableEntity).
		Body(ErrorBody{Error: "validation failed", Fields: verr.Problems})
}

// ErrorFor maps an error to a response. Details of unexpected errors are
// never sent to the client.
func ErrorFor(err error) *JSONResponseBuilder {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		return ValidationErrorResponse(verr)
	case errors.Is(err, ErrBadBody):
		return ErrorResponse(http.StatusBadRequest, "invalid JSON body")
	case errors.Is(err, auth.ErrUnauthenticated):
		return ErrorResponse(http.StatusUnauthorized, "unauthenticated").
			Header("WWW-Authenticate", `Bearer realm="fintrack"`)
	case errors.Is(err, auth.ErrUnavailable):
		return ErrorResponse(http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, core.ErrForbidden):
		return ErrorResponse(http.StatusForbidden, "forbidden")
	case errors.Is(err, core.ErrNotFound):
		return ErrorResponse(http.StatusNotFound, "not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorResponse(http.StatusServiceUnavailable, "service unavailable")
	default:
		return ErrorResponse(http.StatusInternalServerError, "internal server error")
	}
}

// writeError logs err at a level matching its class and writes the mapped
// response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorFor(err)
	logger := log.FromContext(r.Context())
	switch {
	case resp.statusCode >= 500:
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldError, err,
			log.FieldErrorType, errorType(err),
			log.FieldPath, r.URL.Path)
	default:
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldError, err,
			log.FieldErrorType, errorType(err),
			log.FieldStatusCode, resp.statusCode)
	}
	resp.Write(w)
}

func errorType(err error) string {
	var (
		verr *core.ValidationError
		perr *core.PersistenceError
	)
	switch {
	case errors.As(err, &verr), errors.Is(err, ErrBadBody):
		return log.ErrorTypeValidation
	case errors.Is(err, auth.ErrUnauthenticated):
		return log.ErrorTypeAuth
	case errors.Is(err, core.ErrForbidden):
		return log.ErrorTypeForbidden
	case errors.Is(err, core.ErrNotFound):
		return log.ErrorTypeNotFound
	case errors.As(err, &perr):
		return log.ErrorTypeDatabase
	case errors.Is(err, auth.ErrUnavailable):
		return log.ErrorTypeNetwork
	}
	return log.ErrorTypeInternal
}
