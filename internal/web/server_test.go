package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/internal/modules/input"
	"github.com/canectors/fundsync/internal/modules/output"
	"github.com/canectors/fundsync/internal/runtime"
	"github.com/canectors/fundsync/pkg/connector"
)

type stubSource struct {
	err error
}

func (s stubSource) Load(context.Context, string) (*input.Dataset, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &input.Dataset{Records: []connector.Record{
		{"Tipo_Fundo": "FII", "Denominacao_Social": "ALPHA FII"},
		{"Tipo_Fundo": "FIA", "Denominacao_Social": "BETA FIA"},
	}}, nil
}

func (stubSource) Close() error { return nil }

type stubSubmitter struct {
	err   error
	calls *int
}

func (s stubSubmitter) Submit(_ context.Context, _ string, records []connector.Record) (*connector.SubmissionResult, error) {
	*s.calls++
	if s.err != nil {
		return nil, s.err
	}
	result := &connector.SubmissionResult{}
	for range records {
		result.Cards = append(result.Cards, connector.CreatedCard{ID: "900", CreatedAt: "2024-01-02T03:04:05Z"})
	}
	result.Count = len(result.Cards)
	return result, nil
}

func (stubSubmitter) Close() error { return nil }

func newTestServer(sourceErr, submitErr error, opts ...runtime.Option) (*Server, *int) {
	calls := new(int)
	executor := runtime.NewExecutor(
		func() input.Module { return stubSource{err: sourceErr} },
		func(context.Context) (output.Module, error) {
			return stubSubmitter{err: submitErr, calls: calls}, nil
		},
		opts...,
	)
	return NewServer(executor, FunctionInfo{Name: "fundsync", Version: "1.2.3"}), calls
}

func post(t *testing.T, s *Server, body string, headers map[string]string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/main", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var envelope Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("response is not an envelope: %v (%s)", err, rec.Body.String())
	}
	return rec, envelope
}

func TestHandleMain_Success(t *testing.T) {
	s, calls := newTestServer(nil, nil)

	rec, envelope := post(t, s, `{"file_name":"registro_fundo.csv","filter":{"Tipo_Fundo":"fii"},"pipe_id":301}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if envelope.Status.Code != http.StatusOK || envelope.Status.Message != MessageSuccess {
		t.Errorf("status block = %+v", envelope.Status)
	}
	if envelope.Function.Name != "fundsync" || envelope.Function.Version != "1.2.3" {
		t.Errorf("function block = %+v", envelope.Function)
	}
	if *calls != 1 {
		t.Errorf("submit calls = %d, want 1", *calls)
	}

	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %#v", envelope.Data)
	}
	if data["count"] != float64(1) {
		t.Errorf("count = %v, want 1", data["count"])
	}
	cards, _ := data["cards"].([]interface{})
	if len(cards) != 1 || cards[0].(map[string]interface{})["id"] != "900" {
		t.Errorf("cards = %v", data["cards"])
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestHandleMain_WebhookRetry(t *testing.T) {
	s, calls := newTestServer(nil, nil)

	rec, envelope := post(t, s, `{"file_name":"registro_fundo.csv"}`, map[string]string{HeaderWebhookRetry: "TRUE"})

	if rec.Code != http.StatusOK || envelope.Status.Message != MessageAlreadyProcessed {
		t.Errorf("got %d %+v", rec.Code, envelope.Status)
	}
	if envelope.Data != nil {
		t.Errorf("data must be omitted, got %v", envelope.Data)
	}
	if *calls != 0 {
		t.Error("a retried webhook must not be processed")
	}
}

func TestHandleMain_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		sourceErr  error
		submitErr  error
		wantStatus int
	}{
		{"invalid json", `{"file_name":`, nil, nil, http.StatusBadRequest},
		{"empty body", ``, nil, nil, http.StatusBadRequest},
		{"array body", `[1,2]`, nil, nil, http.StatusBadRequest},
		{"missing file name", `{"filter":{"a":"b"}}`, nil, nil, http.StatusBadRequest},
		{"invalid operator", `{"file_name":"f.csv","pipe_id":"1","filter":{"a":"b","operator":"like"}}`, nil, nil, http.StatusBadRequest},
		{"invalid between", `{"file_name":"f.csv","pipe_id":"1","filter":{"a":"1,2,3","operator":"between"}}`, nil, nil, http.StatusBadRequest},
		{
			"entry not found",
			`{"file_name":"missing.csv","pipe_id":"1"}`,
			errhandling.NewNotFoundError("not in archive", input.ErrEntryNotFound), nil,
			http.StatusNotFound,
		},
		{
			"application error",
			`{"file_name":"f.csv","pipe_id":"1"}`,
			nil, errhandling.NewApplicationError("Pipe not found"),
			http.StatusBadGateway,
		},
		{
			"retries exhausted",
			`{"file_name":"f.csv","pipe_id":"1"}`,
			nil, errors.Join(errhandling.ErrRetriesExhausted, errhandling.NewTransportError(502, "bad gateway", nil)),
			http.StatusServiceUnavailable,
		},
		{
			"unclassified",
			`{"file_name":"f.csv","pipe_id":"1"}`,
			errors.New("disk on fire"), nil,
			http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(tt.sourceErr, tt.submitErr)

			rec, envelope := post(t, s, tt.body, nil)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if envelope.Status.Code != tt.wantStatus {
				t.Errorf("envelope code = %d, want %d", envelope.Status.Code, tt.wantStatus)
			}
			if envelope.Status.Message == "" || envelope.Data != nil {
				t.Errorf("expected message without data, got %+v", envelope)
			}
		})
	}
}

func TestHandleMain_DryRun(t *testing.T) {
	s, calls := newTestServer(nil, nil, runtime.WithDryRun(true))

	rec, envelope := post(t, s, `{"file_name":"f.csv","filter":{"Tipo_Fundo":"FIA"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if *calls != 0 {
		t.Error("dry run must not submit")
	}
	data := envelope.Data.(map[string]interface{})
	if data["records_matched"] != float64(1) {
		t.Errorf("records_matched = %v", data["records_matched"])
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(nil, nil)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/main", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /main status = %d, want 405", rec.Code)
	}
}

func TestServer_StartStops(t *testing.T) {
	s, _ := newTestServer(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Start(ctx, "127.0.0.1:0"); err != nil {
		t.Errorf("Start() error = %v", err)
	}
}
