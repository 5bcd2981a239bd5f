// Package errhandling provides error types, classification, and retry utilities.
// This file defines the error taxonomy shared by the filter evaluator, the
// Pipefy client and the submission orchestrator, plus helpers to classify
// arbitrary errors into retryable and fatal categories.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// Sentinel errors of the fundsync taxonomy. Every classified error unwraps to
// exactly one of these so callers can branch with errors.Is.
var (
	// ErrInvalidFilterSpec is returned for malformed "between"/"in" filter values.
	ErrInvalidFilterSpec = errors.New("invalid filter specification")
	// ErrInvalidOperator is returned for an operator outside the supported set.
	ErrInvalidOperator = errors.New("invalid filter operator")
	// ErrMissingRequiredField is returned when the request lacks file_name.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrInvalidPayloadShape is returned when the request or its filter is not an object.
	ErrInvalidPayloadShape = errors.New("invalid payload shape")
	// ErrAuthenticationUnavailable is returned when no credential could be obtained.
	ErrAuthenticationUnavailable = errors.New("authentication unavailable")
	// ErrRemoteRateLimited marks an HTML error page (rate limiting) returned by the remote service.
	ErrRemoteRateLimited = errors.New("remote service rate limited")
	// ErrRemoteTransport marks network failures, non-200 statuses and unparsable bodies.
	ErrRemoteTransport = errors.New("remote transport error")
	// ErrRemoteApplication marks a 200 response carrying a top-level error/errors field.
	ErrRemoteApplication = errors.New("remote application error")
	// ErrRemoteResponseMalformed marks a success response without the expected identifier.
	ErrRemoteResponseMalformed = errors.New("remote response malformed")
	// ErrRetriesExhausted wraps the last error once every attempt has failed.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// ErrorCategory represents the type/category of an error.
// Categories help determine the appropriate error handling strategy.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryNetwork represents transport failures (timeouts, refused connections,
	// non-200 statuses, unparsable bodies). Retryable.
	CategoryNetwork ErrorCategory = "network"

	// CategoryAuthentication represents the absence of any usable credential. Fatal.
	CategoryAuthentication ErrorCategory = "authentication"

	// CategoryValidation represents local request/filter validation errors. Fatal.
	CategoryValidation ErrorCategory = "validation"

	// CategoryRateLimit represents rate limiting by the remote service. Retryable.
	CategoryRateLimit ErrorCategory = "rate_limit"

	// CategoryApplication represents errors reported by the remote service inside
	// a successful transport call. Fatal.
	CategoryApplication ErrorCategory = "application"

	// CategoryMalformed represents success responses missing expected data. Fatal.
	CategoryMalformed ErrorCategory = "malformed"

	// CategoryNotFound represents a missing archive entry. Fatal.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryUnknown represents unclassified errors.
	// Unknown errors are retryable by default (transient more likely than permanent).
	CategoryUnknown ErrorCategory = "unknown"
)

// ClassifiedError wraps an error with classification metadata.
// It provides category, retryability status, and contextual information.
type ClassifiedError struct {
	// Category is the error classification category.
	Category ErrorCategory

	// Retryable indicates whether the error is transient and can be retried.
	Retryable bool

	// StatusCode is the HTTP status code of the remote response (0 if none).
	StatusCode int

	// Message is a human-readable error message.
	Message string

	// OriginalErr is the underlying error that was classified.
	OriginalErr error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// Unwrap returns the original error for use with errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

// wrapSentinel joins a sentinel with an optional cause so both remain visible to errors.Is.
func wrapSentinel(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// NewTransportError creates a retryable ClassifiedError for transport failures.
func NewTransportError(statusCode int, message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryNetwork,
		Retryable:   true,
		StatusCode:  statusCode,
		Message:     message,
		OriginalErr: wrapSentinel(ErrRemoteTransport, cause),
	}
}

// NewRateLimitError creates a retryable ClassifiedError for rate limit pages.
func NewRateLimitError(message string) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryRateLimit,
		Retryable:   true,
		StatusCode:  http.StatusTooManyRequests,
		Message:     message,
		OriginalErr: ErrRemoteRateLimited,
	}
}

// NewApplicationError creates a fatal ClassifiedError for remote application errors.
func NewApplicationError(message string) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryApplication,
		Retryable:   false,
		Message:     message,
		OriginalErr: ErrRemoteApplication,
	}
}

// NewMalformedResponseError creates a fatal ClassifiedError for responses missing data.
func NewMalformedResponseError(message string) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryMalformed,
		Retryable:   false,
		Message:     message,
		OriginalErr: ErrRemoteResponseMalformed,
	}
}

// NewAuthenticationError creates a fatal ClassifiedError when no credential is usable.
func NewAuthenticationError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryAuthentication,
		Retryable:   false,
		Message:     message,
		OriginalErr: wrapSentinel(ErrAuthenticationUnavailable, cause),
	}
}

// NewValidationError creates a fatal ClassifiedError for local validation failures.
// sentinel must be one of the validation sentinels (filter spec, operator, payload).
func NewValidationError(sentinel error, message string) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryValidation,
		Retryable:   false,
		Message:     message,
		OriginalErr: sentinel,
	}
}

// NewNotFoundError creates a fatal ClassifiedError for missing resources.
func NewNotFoundError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{
		Category:    CategoryNotFound,
		Retryable:   false,
		StatusCode:  http.StatusNotFound,
		Message:     message,
		OriginalErr: originalErr,
	}
}

// ClassifyNetworkError classifies an error returned by http.Client.Do.
//
// Classification rules:
//   - Context canceled: not retryable (caller initiated)
//   - Timeouts, net.OpError, DNS and URL errors: transport (retryable)
//   - Anything else: transport (retryable)
func ClassifyNetworkError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{
			Category:  CategoryUnknown,
			Retryable: false,
			Message:   "nil error",
		}
	}

	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Retryable:   false,
			Message:     "context canceled",
			OriginalErr: wrapSentinel(ErrRemoteTransport, err),
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransportError(0, "request timeout", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewTransportError(0, fmt.Sprintf("DNS error: %s", dnsErr.Name), err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewTransportError(0, fmt.Sprintf("network error: %s %s", opErr.Op, opErr.Net), err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return NewTransportError(0, "timeout", err)
		}
		return NewTransportError(0, fmt.Sprintf("URL error: %s %s", urlErr.Op, urlErr.URL), err)
	}

	return NewTransportError(0, err.Error(), err)
}

// ClassifyError classifies any error into a ClassifiedError.
// Already classified errors are returned as-is; validation sentinels become
// fatal validation errors; unknown errors are retryable by default.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{
			Category:  CategoryUnknown,
			Retryable: false,
			Message:   "nil error",
		}
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	for _, sentinel := range []error{ErrInvalidFilterSpec, ErrInvalidOperator, ErrMissingRequiredField, ErrInvalidPayloadShape} {
		if errors.Is(err, sentinel) {
			return &ClassifiedError{
				Category:    CategoryValidation,
				Retryable:   false,
				Message:     err.Error(),
				OriginalErr: err,
			}
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassifyNetworkError(err)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) {
		return ClassifyNetworkError(err)
	}

	return &ClassifiedError{
		Category:    CategoryUnknown,
		Retryable:   true,
		Message:     err.Error(),
		OriginalErr: err,
	}
}

// IsRetryable returns true if the error is classified as retryable.
// Nil errors return false.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Retryable
}

// IsFatal returns true if the error belongs to a category that must never be retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	switch GetErrorCategory(err) {
	case CategoryAuthentication, CategoryValidation, CategoryApplication, CategoryMalformed, CategoryNotFound:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the error category for a given error.
// Returns CategoryUnknown for nil or unclassified errors.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	return ClassifyError(err).Category
}

// HTTPStatus maps an error of the taxonomy to the status code returned by the
// front controller.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidFilterSpec),
		errors.Is(err, ErrInvalidOperator),
		errors.Is(err, ErrMissingRequiredField),
		errors.Is(err, ErrInvalidPayloadShape):
		return http.StatusBadRequest
	case GetErrorCategory(err) == CategoryNotFound:
		return http.StatusNotFound
	case errors.Is(err, ErrRemoteApplication), errors.Is(err, ErrRemoteResponseMalformed):
		return http.StatusBadGateway
	case errors.Is(err, ErrAuthenticationUnavailable),
		errors.Is(err, ErrRemoteRateLimited),
		errors.Is(err, ErrRemoteTransport),
		errors.Is(err, ErrRetriesExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
