// Package pipefy provides the client for the Pipefy GraphQL API.
// A Client acquires its credential once at construction (OAuth client
// credentials, falling back to a static personal token) and then executes
// mutations with the shared fixed-delay retry policy.
package pipefy

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/expr-lang/expr/vm"

	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/internal/logger"
)

// Default configuration values for the client
const (
	defaultTimeout     = 30 * time.Second
	defaultUserAgent   = "Fundsync/1.0"
	defaultContentType = "application/json"
	bearerAuthPrefix   = "Bearer "

	// maxResponseBodySize bounds every response body read.
	maxResponseBodySize = 1 * 1024 * 1024
)

// Configuration errors
var (
	ErrMissingAPIEndpoint = errors.New("pipefy api endpoint is required")
	ErrInvalidRetryHint   = errors.New("invalid retry hint expression")
	ErrTokenExpired       = errors.New("oauth access token already expired")
)

// Credential sources
const (
	TokenSourceOAuth  = "oauth"
	TokenSourceStatic = "static"
)

// Config holds everything a Client needs. There is no package-level state:
// each execution builds its own Config and Client.
type Config struct {
	// APIEndpoint is the GraphQL endpoint (base url + api path)
	APIEndpoint string

	// OAuthEndpoint, ClientID and ClientSecret configure the client
	// credentials exchange. The exchange is skipped when any is empty.
	OAuthEndpoint string
	ClientID      string
	ClientSecret  string

	// StaticToken is the personal access token used when no OAuth token is obtained
	StaticToken string

	// MaxAttempts is the number of attempts per remote call (default 3)
	MaxAttempts int

	// RetryDelay is the fixed pause between attempts
	RetryDelay time.Duration

	// Timeout bounds every HTTP request (default 30s)
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification
	InsecureSkipVerify bool

	// RetryHintFromBody is an optional expression evaluated against the JSON
	// body of a non-200 response (variables: body, status). When it evaluates
	// to false, the failure is not retried.
	RetryHintFromBody string

	// UserAgent overrides the default User-Agent header
	UserAgent string

	// HTTPClient replaces the default HTTP client (tests)
	HTTPClient *http.Client
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.APIEndpoint == "" {
		return ErrMissingAPIEndpoint
	}
	return c.RetryPolicy().Validate()
}

// RetryPolicy returns the fixed-delay policy described by the configuration.
func (c Config) RetryPolicy() errhandling.RetryPolicy {
	policy := errhandling.RetryPolicy{
		MaxAttempts: c.MaxAttempts,
		Delay:       c.RetryDelay,
	}
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = errhandling.DefaultMaxAttempts
	}
	return policy
}

func (c Config) oauthConfigured() bool {
	return c.OAuthEndpoint != "" && c.ClientID != "" && c.ClientSecret != ""
}

// Client is an authenticated session against the Pipefy API.
// It is not safe for concurrent use; calls are executed one at a time.
type Client struct {
	cfg         Config
	client      *http.Client
	policy      errhandling.RetryPolicy
	headers     http.Header
	token       string
	tokenSource string
	retryHint   *vm.Program
}

// NewClient validates cfg and acquires a credential. It returns an error
// wrapping errhandling.ErrAuthenticationUnavailable when neither the OAuth
// exchange nor the static token yields one; no client is returned then.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipefy configuration: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	c := &Client{
		cfg:    cfg,
		client: cfg.HTTPClient,
		policy: cfg.RetryPolicy(),
	}
	if c.client == nil {
		c.client = createHTTPClient(cfg.Timeout, cfg.InsecureSkipVerify)
	}

	if cfg.RetryHintFromBody != "" {
		program, err := compileRetryHint(cfg.RetryHintFromBody)
		if err != nil {
			return nil, err
		}
		c.retryHint = program
	}

	if err := c.acquireCredential(ctx); err != nil {
		return nil, err
	}

	c.headers = http.Header{}
	c.headers.Set("Content-Type", defaultContentType)
	c.headers.Set("User-Agent", cfg.UserAgent)
	c.headers.Set("Authorization", bearerAuthPrefix+c.token)

	logger.Info("pipefy client ready",
		slog.String("endpoint", cfg.APIEndpoint),
		slog.String("token_source", c.tokenSource),
		slog.Int("max_attempts", c.policy.MaxAttempts),
		slog.Duration("retry_delay", c.policy.Delay),
	)

	return c, nil
}

// createHTTPClient creates an HTTP client with configured timeout and transport settings
func createHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via REQUESTS_SSL=false
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// TokenSource reports which credential the client uses ("oauth" or "static").
func (c *Client) TokenSource() string {
	return c.tokenSource
}

// Headers returns a fresh header set made of the default headers and
// overrides. The defaults are never modified.
func (c *Client) Headers(overrides map[string]string) http.Header {
	h := c.headers.Clone()
	for key, value := range overrides {
		h.Set(key, value)
	}
	return h
}

// Do executes a GraphQL document and returns the decoded response.
//
// Transport failures and rate-limit pages are retried with the fixed delay.
// A 200 response carrying a top-level "error" or "errors" is returned as a
// RemoteApplication error and never retried.
func (c *Client) Do(ctx context.Context, query string, overrides map[string]string) (map[string]interface{}, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("encoding graphql request: %w", err)
	}

	logger.Debug("executing graphql request",
		slog.String("endpoint", c.cfg.APIEndpoint),
		slog.Int("query_length", len(query)),
	)

	var response map[string]interface{}
	executor := errhandling.NewRetryExecutor(c.policy)
	err = executor.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		response, callErr = c.post(ctx, c.cfg.APIEndpoint, body, c.Headers(overrides))
		if callErr != nil {
			return callErr
		}
		return applicationError(response)
	}, c.logRetry("graphql request"))
	if err != nil {
		return nil, err
	}

	return response, nil
}

// logRetry returns a retry callback that logs each failed attempt.
func (c *Client) logRetry(operation string) errhandling.RetryCallback {
	return func(attempt int, err error, nextDelay time.Duration) {
		attrs := []any{
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
			slog.String("error_category", string(errhandling.GetErrorCategory(err))),
		}
		if retry, _ := c.policy.Decide(attempt, err); retry {
			attrs = append(attrs, slog.Duration("next_delay", nextDelay))
			logger.Warn("remote call failed, will retry", attrs...)
			return
		}
		logger.Error("remote call failed", attrs...)
	}
}

// post sends one JSON request and checks the response, without retry.
func (c *Client) post(ctx context.Context, endpoint string, body []byte, headers http.Header) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating http request: %w", err)
	}
	req.Header = headers

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errhandling.ClassifyNetworkError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close response body", slog.String("error", closeErr.Error()))
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, errhandling.NewTransportError(resp.StatusCode, "reading response body", err)
	}

	return c.checkResponse(resp.StatusCode, respBody)
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	logger.Debug("pipefy client closed", slog.String("endpoint", c.cfg.APIEndpoint))
	return nil
}
