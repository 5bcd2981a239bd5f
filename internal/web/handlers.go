package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/internal/logger"
)

// Status messages
const (
	MessageSuccess          = "success"
	MessageAlreadyProcessed = "request already processed"
)

// HeaderWebhookRetry marks a redelivered webhook.
const HeaderWebhookRetry = "Webhook-Retry"

// Status is the status block of the envelope. Code mirrors the HTTP status.
type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Envelope is the body of every /main response.
type Envelope struct {
	Function FunctionInfo `json:"function"`
	Status   Status       `json:"status"`
	Data     interface{}  `json:"data,omitempty"`
}

func (s *Server) handleMain(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	if strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderWebhookRetry)), "true") {
		logger.Info("webhook retry ignored", slog.String("request_id", requestID))
		s.respond(w, http.StatusOK, MessageAlreadyProcessed, nil)
		return
	}

	payload, err := decodePayload(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// A running batch is not abandoned when the caller goes away.
	ctx := context.WithoutCancel(r.Context())

	result, err := s.executor.ExecutePayload(ctx, payload)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var data interface{} = result.Submission
	if result.DryRun {
		data = result
	}
	s.respond(w, http.StatusOK, MessageSuccess, data)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, "ok", nil)
}

// decodePayload reads the JSON body. An empty body decodes to nil and is
// rejected by request validation.
func decodePayload(r *http.Request) (interface{}, error) {
	var payload interface{}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := decoder.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return nil, errhandling.NewValidationError(errhandling.ErrInvalidPayloadShape,
			"request body is not valid JSON: "+err.Error())
	}
	return payload, nil
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := errhandling.HTTPStatus(err)

	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	logger.Logger.Log(r.Context(), level, "request failed",
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("error_category", string(errhandling.GetErrorCategory(err))),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	s.respond(w, status, err.Error(), nil)
}

func (s *Server) respond(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	envelope := Envelope{
		Function: s.function,
		Status:   Status{Code: status, Message: message},
		Data:     data,
	}
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		logger.Warn("failed to write response", slog.String("error", err.Error()))
	}
}
