package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/metergate/metergate/internal/domain"
	healthuc "github.com/metergate/metergate/internal/usecase/health"
	usageuc "github.com/metergate/metergate/internal/usecase/usage"
)

// Error codes returned to clients.
const (
	codeBadRequest    = "bad_request"
	codeUnauthorized  = "unauthorized"
	codeNoCredential  = "no_credential"
	codeUpstreamError = "upstream_error"
	codeInternalError = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// usageService is the consumer interface for the snapshot pipeline.
type usageService interface {
	Snapshot(ctx context.Context) (usageuc.Snapshot, error)
	Badge(ctx context.Context) (usageuc.Badge, error)
	ClearCache(ctx context.Context) error
}

// Server serves the usage API.
type Server struct {
	usage         usageService
	health        *healthuc.Service
	relay         *Relay
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. relay may be nil to disable the
// relay endpoint.
func NewServer(usage usageService, health *healthuc.Service, relay *Relay, logger *zap.Logger) *Server {
	s := &Server{
		usage:  usage,
		health: health,
		relay:  relay,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrUnauthorized, http.StatusUnauthorized, codeUnauthorized),
		sentinelHandler(domain.ErrNoCredential, http.StatusUnauthorized, codeNoCredential),
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusBadGateway, codeUpstreamError),
	}
	return s
}

// Register mounts every route on the router. Middleware must already be
// applied to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/usage/snapshot", s.GetSnapshot)
		r.Get("/usage/badge", s.GetBadge)
		r.Post("/cache/clear", s.ClearCache)
	})
	if s.relay != nil {
		r.HandleFunc("/relay/usage-events", s.relay.ServeHTTP)
	}
}

// GetSnapshot handles GET /v1/usage/snapshot.
func (s *Server) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.usage.Snapshot(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetBadge handles GET /v1/usage/badge.
func (s *Server) GetBadge(w http.ResponseWriter, r *http.Request) {
	badge, err := s.usage.Badge(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badge)
}

// ClearCache handles POST /v1/cache/clear.
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.usage.ClearCache(r.Context()); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	rep := s.health.Check(r.Context())
	status := http.StatusOK
	if rep.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": rep.Status,
		"checks": rep.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrUnauthorized,
		domain.ErrNoCredential,
		domain.ErrUpstreamUnavailable,
		domain.ErrNoUsage,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
