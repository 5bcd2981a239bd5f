// Package web provides the HTTP front controller.
//
// POST /main accepts a request payload, runs it through a runtime.Executor
// and answers with the response envelope:
//
//	{"function": {"name": "...", "version": "..."}, "status": {"code": 200, "message": "success"}, "data": {...}}
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/canectors/fundsync/internal/logger"
	"github.com/canectors/fundsync/internal/runtime"
)

// Default server timeouts
const (
	defaultReadTimeout  = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
	defaultShutdownWait = 30 * time.Second
)

// maxBodySize bounds the request payload (1MB).
const maxBodySize = 1 << 20

// FunctionInfo identifies the deployed function in every response.
type FunctionInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server is the HTTP front controller.
type Server struct {
	executor *runtime.Executor
	function FunctionInfo
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a server executing requests with executor.
func NewServer(executor *runtime.Executor, function FunctionInfo) *Server {
	s := &Server{
		executor: executor,
		function: function,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Post("/main", s.handleMain)
	s.router.Get("/healthz", s.handleHealth)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: defaultReadTimeout,
		IdleTimeout: defaultIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			slog.String("addr", addr),
			slog.String("function", s.function.Name),
			slog.Bool("dry_run", s.executor.DryRun()),
		)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownWait)
	defer cancel()
	logger.Info("shutting down server", slog.String("addr", addr))
	return s.server.Shutdown(shutdownCtx)
}

// requestLogger logs one line per request with its status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
