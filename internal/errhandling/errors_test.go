// Package errhandling provides error types and classification for remote calls.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

// TestErrorCategory tests error category constants and their string values.
func TestErrorCategory(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		expected string
	}{
		{CategoryNetwork, "network"},
		{CategoryAuthentication, "authentication"},
		{CategoryValidation, "validation"},
		{CategoryRateLimit, "rate_limit"},
		{CategoryApplication, "application"},
		{CategoryMalformed, "malformed"},
		{CategoryNotFound, "not_found"},
		{CategoryUnknown, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if string(tt.category) != tt.expected {
				t.Errorf("ErrorCategory = %v, want %v", tt.category, tt.expected)
			}
		})
	}
}

// TestClassifiedError tests the ClassifiedError type.
func TestClassifiedError(t *testing.T) {
	t.Run("Error message includes status code", func(t *testing.T) {
		err := NewTransportError(502, "bad gateway", nil)
		if !strings.Contains(err.Error(), "status 502") || !strings.Contains(err.Error(), "bad gateway") {
			t.Errorf("Error() = %q, want status and message", err.Error())
		}
	})

	t.Run("Error message without status code", func(t *testing.T) {
		err := NewApplicationError("field not found")
		if err.Error() != "application error: field not found" {
			t.Errorf("Error() = %q", err.Error())
		}
	})

	t.Run("Sentinels are reachable with errors.Is", func(t *testing.T) {
		cause := errors.New("dial tcp: connection refused")
		tests := []struct {
			name     string
			err      error
			sentinel error
		}{
			{"transport", NewTransportError(0, "refused", cause), ErrRemoteTransport},
			{"transport cause", NewTransportError(0, "refused", cause), cause},
			{"rate limit", NewRateLimitError("html page"), ErrRemoteRateLimited},
			{"application", NewApplicationError("boom"), ErrRemoteApplication},
			{"malformed", NewMalformedResponseError("no id"), ErrRemoteResponseMalformed},
			{"authentication", NewAuthenticationError("no token", cause), ErrAuthenticationUnavailable},
			{"validation", NewValidationError(ErrInvalidFilterSpec, "between"), ErrInvalidFilterSpec},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if !errors.Is(tt.err, tt.sentinel) {
					t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
				}
			})
		}
	})
}

// TestClassifyNetworkError tests classification of errors returned by http.Client.Do.
func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantRetryable bool
		wantCategory  ErrorCategory
	}{
		{"nil", nil, false, CategoryUnknown},
		{"deadline", context.DeadlineExceeded, true, CategoryNetwork},
		{"canceled", context.Canceled, false, CategoryNetwork},
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, true, CategoryNetwork},
		{"dns error", &net.DNSError{Name: "api.pipefy.com", Err: "no such host"}, true, CategoryNetwork},
		{"url error", &url.Error{Op: "Post", URL: "https://x", Err: errors.New("eof")}, true, CategoryNetwork},
		{"plain error", errors.New("unexpected EOF"), true, CategoryNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNetworkError(tt.err)
			if got.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
			if got.Category != tt.wantCategory {
				t.Errorf("Category = %v, want %v", got.Category, tt.wantCategory)
			}
			if tt.err != nil && !errors.Is(got, ErrRemoteTransport) {
				t.Errorf("expected ErrRemoteTransport in chain of %v", got)
			}
		})
	}
}

// TestClassifyError tests classification of arbitrary errors.
func TestClassifyError(t *testing.T) {
	t.Run("already classified is returned as-is", func(t *testing.T) {
		original := NewApplicationError("boom")
		wrapped := fmt.Errorf("creating card: %w", original)
		if got := ClassifyError(wrapped); got != original {
			t.Errorf("ClassifyError() = %v, want original", got)
		}
	})

	t.Run("validation sentinels are fatal", func(t *testing.T) {
		for _, sentinel := range []error{ErrInvalidFilterSpec, ErrInvalidOperator, ErrMissingRequiredField, ErrInvalidPayloadShape} {
			err := fmt.Errorf("%w: details", sentinel)
			got := ClassifyError(err)
			if got.Retryable || got.Category != CategoryValidation {
				t.Errorf("ClassifyError(%v) = %+v, want fatal validation", err, got)
			}
		}
	})

	t.Run("unknown errors are retryable", func(t *testing.T) {
		if !IsRetryable(errors.New("something odd")) {
			t.Error("unknown errors should be retryable")
		}
	})
}

// TestIsFatal tests fatal categories.
func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"application", NewApplicationError("x"), true},
		{"malformed", NewMalformedResponseError("x"), true},
		{"authentication", NewAuthenticationError("x", nil), true},
		{"validation", NewValidationError(ErrInvalidOperator, "x"), true},
		{"not found", NewNotFoundError("x", nil), true},
		{"transport", NewTransportError(500, "x", nil), false},
		{"rate limit", NewRateLimitError("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestHTTPStatus tests the mapping used by the front controller.
func TestHTTPStatus(t *testing.T) {
	exhausted := fmt.Errorf("%w after 3 attempts: %w", ErrRetriesExhausted, NewTransportError(500, "x", nil))

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid filter", NewValidationError(ErrInvalidFilterSpec, "x"), http.StatusBadRequest},
		{"invalid operator", fmt.Errorf("%w: regex", ErrInvalidOperator), http.StatusBadRequest},
		{"missing field", fmt.Errorf("%w: file_name", ErrMissingRequiredField), http.StatusBadRequest},
		{"payload shape", ErrInvalidPayloadShape, http.StatusBadRequest},
		{"not found", NewNotFoundError("entry", nil), http.StatusNotFound},
		{"application", NewApplicationError("x"), http.StatusBadGateway},
		{"malformed", NewMalformedResponseError("x"), http.StatusBadGateway},
		{"auth", NewAuthenticationError("x", nil), http.StatusServiceUnavailable},
		{"exhausted", exhausted, http.StatusServiceUnavailable},
		{"rate limit", NewRateLimitError("x"), http.StatusServiceUnavailable},
		{"other", errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
