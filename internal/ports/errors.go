package ports

import (
	"errors"
	"fmt"
)

// Common infrastructure errors that can occur during external service
// interactions.
var (
	// ErrRateLimited indicates that the service has rate limited the request.
	ErrRateLimited = errors.New("rate limited")
	// ErrServiceUnavailable indicates that the external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")
	// ErrInvalidResponse indicates that the service returned an invalid
	// response.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrAuthenticationFailed indicates that authentication with the
	// service failed.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrMissingField indicates that an expected field was absent from a
	// response body.
	ErrMissingField = errors.New("missing field")
	// ErrNoVerdict indicates that no YES/NO token was found in a judge reply.
	ErrNoVerdict = errors.New("no verdict token")
	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// ConfigError represents a fatal configuration problem detected before any
// network call is made.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string
	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}

// TransportError is returned when a call to a model endpoint could not
// complete: timeouts, DNS or connection failures, and non-2xx statuses.
type TransportError struct {
	// Model is the identifier of the model that was being called.
	Model string
	// Operation names the pipeline stage ("generate" or "judge").
	Operation string
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface for TransportError.
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("transport error: model=%s, operation=%s", e.Model, e.Operation)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(", status=%d", e.StatusCode)
	}
	return msg + fmt.Sprintf(", err=%v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func (e *TransportError) IsRetryable() bool {
	if e.StatusCode == 429 || e.StatusCode >= 500 {
		return true
	}
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewTransportError creates a new TransportError with the given details.
func NewTransportError(model, operation string, statusCode int, err error) *TransportError {
	return &TransportError{
		Model:      model,
		Operation:  operation,
		StatusCode: statusCode,
		Err:        err,
	}
}

// MalformedResponseError is returned when a response arrived but the
// expected answer field was absent.
type MalformedResponseError struct {
	// Model is the identifier of the model that produced the response.
	Model string
	// Field names the missing part of the response.
	Field string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface for MalformedResponseError.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: model=%s, field=%s, err=%v", e.Model, e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *MalformedResponseError) Unwrap() error { return e.Err }

// NewMalformedResponseError creates a new MalformedResponseError.
func NewMalformedResponseError(model, field string, err error) *MalformedResponseError {
	return &MalformedResponseError{Model: model, Field: field, Err: err}
}

// JudgeParseError is returned when the judge replied but its text carried no
// recognizable verdict token.
type JudgeParseError struct {
	// QuestionID identifies the question being judged.
	QuestionID string
	// Response is the judge text that could not be parsed.
	Response string
}

// Error implements the error interface for JudgeParseError.
func (e *JudgeParseError) Error() string {
	return fmt.Sprintf("judge parse error: question=%s, response=%q", e.QuestionID, truncate(e.Response, 80))
}

// Unwrap returns ErrNoVerdict so callers can use errors.Is.
func (e *JudgeParseError) Unwrap() error { return ErrNoVerdict }

// NewJudgeParseError creates a new JudgeParseError.
func NewJudgeParseError(questionID, response string) *JudgeParseError {
	return &JudgeParseError{QuestionID: questionID, Response: response}
}

// CacheError represents an error from cache operations.
// It includes the key and operation that failed.
type CacheError struct {
	// Key is the cache key that was involved in the failed operation.
	Key string
	// Operation is the name of the cache operation that failed.
	Operation string
	// Err is the underlying error that caused the cache operation to fail.
	Err error
}

// Error implements the error interface for CacheError.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache error: operation=%s, key=%s, err=%v", e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error { return e.Err }

// NewCacheError creates a new CacheError with the given details.
func NewCacheError(key, operation string, err error) *CacheError {
	return &CacheError{
		Key:       key,
		Operation: operation,
		Err:       err,
	}
}

// MetricsError represents an error from metrics collection operations.
type MetricsError struct {
	// Metric is the name of the metric that was being collected when the
	// error occurred.
	Metric string
	// Operation is the name of the metrics operation that failed.
	Operation string
	// Err is the underlying error that caused the metrics operation to fail.
	Err error
}

// Error implements the error interface for MetricsError.
func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics error: operation=%s, metric=%s, err=%v", e.Operation, e.Metric, e.Err)
}

// Unwrap returns the underlying error.
func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError creates a new MetricsError with the given details.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{
		Metric:    metric,
		Operation: operation,
		Err:       err,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
