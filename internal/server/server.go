// Package server exposes the quotation service over HTTP and gRPC.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/quotation/internal/core/domain"
	"github.com/vietddude/quotation/internal/health"
)

// QuotationService is what the HTTP API needs from the orchestrator.
type QuotationService interface {
	Generate(ctx context.Context, req domain.QuotationRequest) (*domain.Quotation, error)
	Fetch(ctx context.Context, code string) (*domain.Quotation, error)
}

// Server provides the quotation API plus health and metrics endpoints.
type Server struct {
	service QuotationService
	monitor *health.Monitor
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service QuotationService, monitor *health.Monitor, port int) *Server {
	s := &Server{
		service: service,
		monitor: monitor,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /quotations", s.handleGenerate)
	mux.HandleFunc("GET /quotations/{code}", s.handleFetch)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	status := http.StatusOK
	if report.SystemStatus == health.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
