// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON responses and maps
// service errors to status codes in one place.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"spendsense/internal/core"
	applog "spendsense/internal/log"
)

// Error codes of the JSON error body.
const (
	CodeValidation  = "validation_error"
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodeRateLimited = "rate_limited"
	CodePersistence = "persistence_unavailable"
	CodeInternal    = "internal_error"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       interface{}
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

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v interface{}) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"internal_error","message":"failed to encode response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(data)
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// classify maps an error to its status and code. Unknown errors are 500.
func classify(err error) (int, string) {
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, errMalformedBody), errors.As(err, &mbe):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, CodeValidation
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, core.ErrPersistence):
		return http.StatusServiceUnavailable, CodePersistence
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError renders err as the JSON error envelope. Server-side failures
// hide their details from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := classify(err)

	detail := ErrorDetail{Code: code, Message: err.Error()}
	var ve *validationError
	if errors.As(err, &ve) {
		detail.Fields = ve.fields
	}
	switch status {
	case http.StatusServiceUnavailable:
		detail.Message = "storage is unavailable, nothing was changed"
	case http.StatusInternalServerError:
		detail.Message = "internal server error"
	}

	s.apiErrors.With(prometheus.Labels{"code": code, "route": r.Pattern}).Inc()

	ctx := r.Context()
	logger := applog.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		applog.NewStructuredLogger(logger).LogError(ctx, "Request failed", err, applog.ComponentHTTP, op,
			applog.NewFields().WithErrorType(code))
	} else {
		logger.WarnContext(ctx, "Request rejected",
			applog.FieldOperation, op,
			applog.FieldErrorType, code,
			applog.FieldError, err.Error())
	}

	NewJSONResponse().Status(status).Body(ErrorBody{Error: detail}).Write(w)
}
