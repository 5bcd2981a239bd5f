package pipefy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/internal/logger"
)

// acquireCredential obtains the bearer token: the OAuth access token when the
// exchange succeeds, the static token otherwise.
func (c *Client) acquireCredential(ctx context.Context) error {
	var exchangeErr error

	if c.cfg.oauthConfigured() {
		token, err := c.exchangeClientCredentials(ctx)
		if err == nil && token != "" {
			err = checkTokenClaims(token, time.Now())
		}
		if err == nil && token != "" {
			c.token = token
			c.tokenSource = TokenSourceOAuth
			return nil
		}
		exchangeErr = err
		logger.Warn("oauth token unavailable, falling back to static token",
			slog.Bool("static_token_configured", c.cfg.StaticToken != ""),
			slog.Any("error", err),
		)
	}

	if c.cfg.StaticToken != "" {
		c.token = c.cfg.StaticToken
		c.tokenSource = TokenSourceStatic
		return nil
	}

	return errhandling.NewAuthenticationError("no oauth token and no static token configured", exchangeErr)
}

// exchangeClientCredentials runs the client credentials grant with the
// shared retry policy. An empty access_token is returned as ("", nil).
func (c *Client) exchangeClientCredentials(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("encoding token request: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", defaultContentType)
	headers.Set("User-Agent", c.cfg.UserAgent)

	logger.Debug("requesting oauth token", slog.String("endpoint", c.cfg.OAuthEndpoint))

	var token string
	executor := errhandling.NewRetryExecutor(c.policy)
	err = executor.Execute(ctx, func(ctx context.Context) error {
		response, callErr := c.post(ctx, c.cfg.OAuthEndpoint, body, headers)
		if callErr != nil {
			return callErr
		}
		token, _ = response["access_token"].(string)
		token = strings.TrimSpace(token)
		return nil
	}, c.logRetry("oauth token"))
	if err != nil {
		return "", err
	}

	info := executor.GetRetryInfo()
	logger.Debug("oauth token exchange completed",
		slog.Int("attempts", info.TotalAttempts),
		slog.Bool("token_received", token != ""),
	)

	return token, nil
}

// checkTokenClaims rejects a JWT access token whose exp is not after now.
// The signature is not verified: the token is only forwarded, never trusted
// locally. Opaque tokens pass unchecked.
func checkTokenClaims(token string, now time.Time) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		logger.Debug("access token is not a jwt")
		return nil
	}

	attrs := []any{}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		attrs = append(attrs, slog.String("subject", sub))
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		logger.Debug("oauth token obtained", attrs...)
		return nil
	}

	if !exp.Time.After(now) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	attrs = append(attrs,
		slog.Time("expires_at", exp.Time),
		slog.Duration("expires_in", exp.Time.Sub(now).Round(time.Second)),
	)
	logger.Debug("oauth token obtained", attrs...)
	return nil
}
