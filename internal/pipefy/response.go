package pipefy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/internal/logger"
)

// htmlMarker identifies the HTML error page served when requests are throttled.
const htmlMarker = "DOCTYPE html"

// maxErrorBodyInMessage bounds the raw body echoed in error messages.
const maxErrorBodyInMessage = 512

// checkResponse turns a raw response into a decoded body or a classified error.
//
//   - HTML page: rate limited (retryable)
//   - unparsable JSON: transport (retryable)
//   - non-200: transport, retryable unless the retry hint says otherwise
func (c *Client) checkResponse(status int, body []byte) (map[string]interface{}, error) {
	if bytes.Contains(body, []byte(htmlMarker)) {
		return nil, errhandling.NewRateLimitError("Error Http 429 - Too Many Requests")
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, errhandling.NewTransportError(status, fmt.Sprintf("unparsable response: %s", truncate(string(body))), err)
	}

	if status != 200 {
		classified := errhandling.NewTransportError(status, fmt.Sprintf("Pipefy API error: %s", errorDescription(decoded)), nil)
		if c.retryHint != nil && !c.evaluateRetryHint(status, decoded) {
			classified.Retryable = false
		}
		return nil, classified
	}

	return decoded, nil
}

// applicationError reports a top-level "error" or "errors" in a 200 response.
func applicationError(response map[string]interface{}) error {
	if v, ok := response["error"]; ok && isPresent(v) {
		return errhandling.NewApplicationError(describeErrors(v))
	}
	if v, ok := response["errors"]; ok && isPresent(v) {
		return errhandling.NewApplicationError(describeErrors(v))
	}
	return nil
}

func isPresent(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	case bool:
		return t
	default:
		return true
	}
}

// describeErrors renders GraphQL errors as "msg1; msg2" when they carry
// messages, and as JSON otherwise.
func describeErrors(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if list, ok := v.([]interface{}); ok {
		messages := make([]string, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]interface{}); ok {
				if msg, ok := m["message"].(string); ok && msg != "" {
					messages = append(messages, msg)
					continue
				}
			}
			messages = nil
			break
		}
		if len(messages) > 0 {
			return strings.Join(messages, "; ")
		}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(encoded)
}

// errorDescription picks error_description, then error, then the whole body.
func errorDescription(body map[string]interface{}) string {
	for _, key := range []string{"error_description", "error"} {
		if v, ok := body[key]; ok && isPresent(v) {
			return describeErrors(v)
		}
	}
	encoded, _ := json.Marshal(body)
	return truncate(string(encoded))
}

func truncate(s string) string {
	if len(s) <= maxErrorBodyInMessage {
		return s
	}
	return s[:maxErrorBodyInMessage] + "..."
}

// compileRetryHint compiles the boolean retry hint expression.
func compileRetryHint(source string) (*vm.Program, error) {
	env := map[string]interface{}{
		"body":   map[string]interface{}{},
		"status": 0,
	}
	program, err := expr.Compile(source, expr.Env(env), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRetryHint, err)
	}
	return program, nil
}

// evaluateRetryHint runs the retry hint. Evaluation errors keep the failure retryable.
func (c *Client) evaluateRetryHint(status int, body map[string]interface{}) bool {
	output, err := expr.Run(c.retryHint, map[string]interface{}{
		"body":   body,
		"status": status,
	})
	if err != nil {
		logger.Warn("retry hint evaluation failed",
			slog.String("expression", c.cfg.RetryHintFromBody),
			slog.String("error", err.Error()),
		)
		return true
	}
	retry, ok := output.(bool)
	return !ok || retry
}
