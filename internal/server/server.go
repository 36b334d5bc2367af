// Package server adapts the HTTP transport to the enforcement pipeline. It
// decodes inbound requests, hands them to the orchestrator, and writes the
// orchestrator's encoded-ready response back to the wire. All enforcement
// lives in the pipeline; the server is deliberately thin.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

// Pipeline is the orchestrator surface the server needs.
type Pipeline interface {
	Process(ctx context.Context, req *domain.Request) *domain.Response
}

// maxBodyBytes caps request bodies before they reach the pipeline.
const maxBodyBytes = 10 << 20 // 10 MiB

type Server struct {
	router *chi.Mux
	port   int
	logger *slog.Logger
	srv    *http.Server
}

// New builds the server around the pipeline. Every non-operational route is
// handled by the pipeline itself, including 404s, so unknown paths still get
// the standard error envelope.
func New(port int, requestTimeout time.Duration, p Pipeline, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	r.Use(TimeoutMiddleware(requestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "portcullis")
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/*", pipelineHandler(p, logger))

	return &Server{router: r, port: port, logger: logger}
}

// Router exposes the mux for tests and embedding.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}
	s.logger.Info("server listening", slog.Int("port", s.port))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// pipelineHandler decodes the request, runs the pipeline, and writes the
// result.
func pipelineHandler(p Pipeline, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			logger.Error("read request body", slog.String("error", err.Error()))
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		req := &domain.Request{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   r.URL.RawQuery,
			Headers: r.Header,
			Body:    body,
		}

		resp := p.Process(r.Context(), req)
		writeResponse(w, resp)
	})
}

func writeResponse(w http.ResponseWriter, resp *domain.Response) {
	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
