// Package apperr defines the error taxonomy shared by the engine, the executor
// and the HTTP surface
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is a stable machine-facing error code
type Code string

const (
	CodeValidation    Code = "validation_failed"
	CodeConfiguration Code = "configuration_error"
	CodeTransient     Code = "transient_request_error"
	CodeSchema        Code = "schema_violation"
	CodeExhausted     Code = "retries_exhausted"
	CodeCanceled      Code = "canceled"
	CodeUnknown       Code = "unknown"
)

// Kind tags why a single backend attempt failed. The retry policy treats every
// kind the same; the tag exists for logs, metrics and the attempt journal.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindTimeout      Kind = "timeout"
	KindEmptyPayload Kind = "empty_payload"
	KindParse        Kind = "parse"
	KindSchema       Kind = "schema"
	KindRateLimit    Kind = "rate_limit"
)

// ValidationError reports caller input that violates an input constraint.
// It is raised before any backend request is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// ConfigurationError reports missing or invalid backend configuration
type ConfigurationError struct {
	Key     string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Key != "" {
		msg += " (" + e.Key + ")"
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// SchemaViolation reports a strict field failure in a parsed backend payload.
// Reason is a complete human-readable sentence naming the field.
type SchemaViolation struct {
	Schema string
	Field  string
	Reason string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation in %s: %s", e.Schema, e.Reason)
}

// TransientError is a single failed attempt. It is retried by the executor.
type TransientError struct {
	Kind Kind
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError of the given kind
func Transient(kind Kind, err error) *TransientError {
	return &TransientError{Kind: kind, Err: err}
}

// ExhaustedRetriesError is terminal: every attempt of the budget failed
type ExhaustedRetriesError struct {
	Operation string
	Attempts  int
	Last      *TransientError
}

func (e *ExhaustedRetriesError) Error() string {
	last := "unknown error"
	if e.Last != nil {
		last = e.Last.Error()
	}
	return fmt.Sprintf("%s failed after %d attempts: %s", e.Operation, e.Attempts, last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConfiguration reports whether err is or wraps a ConfigurationError
func IsConfiguration(err error) bool {
	var c *ConfigurationError
	return errors.As(err, &c)
}

// IsExhausted reports whether err is or wraps an ExhaustedRetriesError
func IsExhausted(err error) bool {
	var x *ExhaustedRetriesError
	return errors.As(err, &x)
}

// IsSchemaViolation reports whether err is or wraps a SchemaViolation
func IsSchemaViolation(err error) bool {
	var s *SchemaViolation
	return errors.As(err, &s)
}

// KindOf returns the attempt kind carried by err, or an empty Kind
func KindOf(err error) Kind {
	var t *TransientError
	if errors.As(err, &t) {
		return t.Kind
	}
	return ""
}

// CodeOf maps err onto its stable code
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return CodeValidation
	case IsConfiguration(err):
		return CodeConfiguration
	case IsExhausted(err):
		return CodeExhausted
	case IsSchemaViolation(err):
		return CodeSchema
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	}
	var t *TransientError
	if errors.As(err, &t) {
		return CodeTransient
	}
	return CodeUnknown
}

// HTTPStatus turns an error into an http status code
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeConfiguration:
		return http.StatusServiceUnavailable
	case CodeExhausted, CodeTransient, CodeSchema:
		return http.StatusBadGateway
	case CodeCanceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ClassifyBackendError tags a raw backend call failure
func ClassifyBackendError(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "too many requests"):
		return KindRateLimit
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return KindTimeout
	}
	return KindNetwork
}
