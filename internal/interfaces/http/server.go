// Package http serves the read-only monitoring and ranking API: health,
// Prometheus metrics, category plans and on-demand rankings.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fundrank/internal/config"
	"github.com/sawpanic/fundrank/internal/domain/fund"
	"github.com/sawpanic/fundrank/internal/match"
	"github.com/sawpanic/fundrank/internal/metrics"
	"github.com/sawpanic/fundrank/internal/net/client"
	"github.com/sawpanic/fundrank/internal/pipeline"
	"github.com/sawpanic/fundrank/internal/ranking"
)

// Ranker builds rankings and lists the category plans
type Ranker interface {
	Build(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Plans() []pipeline.Plan
}

// Deps are the collaborators behind the routes. Only Ranker is required.
type Deps struct {
	Ranker  Ranker
	Weights *config.WeightsLoader
	Health  HealthSource
	Metrics *metrics.Registry
	Version string
}

// Server represents the read-only HTTP server
type Server struct {
	router    *mux.Router
	server    *http.Server
	deps      Deps
	config    ServerConfig
	startTime time.Time
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	port := 8080
	if portStr := os.Getenv("FUNDRANK_HTTP_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	return ServerConfig{
		Host:           "127.0.0.1", // local-only by default
		Port:           port,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 45 * time.Second,
	}
}

// NewServer creates a new HTTP server instance
func NewServer(cfg ServerConfig, deps Deps) (*Server, error) {
	if deps.Ranker == nil {
		return nil, errors.New("ranker is required")
	}

	s := &Server{
		router:    mux.NewRouter(),
		deps:      deps,
		config:    cfg,
		startTime: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.GetAddress(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)

	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.categories).Methods(http.MethodGet)
	api.HandleFunc("/rank/{category}", s.rank).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeError(w, r, http.StatusNotFound, "endpoint_not_found", "The requested endpoint does not exist")
	})
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

type ctxKey int

const requestIDKey ctxKey = iota

func requestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLoggingMiddleware logs all requests with structured format
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("request_id", requestID(r)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// timeoutMiddleware enforces request timeouts
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.RequestTimeout <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// categories handles GET /categories
func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	plans := s.deps.Ranker.Plans()
	resp := CategoriesResponse{Categories: make([]CategoryInfo, 0, len(plans))}
	for _, p := range plans {
		info := CategoryInfo{
			Category:   p.Category,
			TieMode:    p.TieMode.String(),
			WeightKeys: p.WeightKeys(),
		}
		if s.deps.Weights != nil {
			if def, err := s.deps.Weights.GetWeights(string(p.Category)); err == nil {
				info.Defaults = def
			}
		}
		resp.Categories = append(resp.Categories, info)
	}
	writeJSON(w, http.StatusOK, resp)
}

// rank handles GET /rank/{category}?weights=k=v,...&rate_change=&policy=&risk_ceiling=
func (s *Server) rank(w http.ResponseWriter, r *http.Request) {
	category, err := fund.ParseCategory(mux.Vars(r)["category"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "unknown_category", err.Error())
		return
	}
	req, err := s.parseRankRequest(r, category)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ignored := s.ignoredWeightKeys(category, req.Weights)
	if len(ignored) > 0 {
		log.Warn().
			Str("request_id", requestID(r)).
			Strs("keys", ignored).
			Msg("Unknown weight keys ignored")
	}

	res, err := s.deps.Ranker.Build(r.Context(), req)
	if err != nil {
		status, code := classify(err)
		writeError(w, r, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, RankResponse{
		RunID:      res.RunID.String(),
		Category:   res.Category,
		Weights:    req.Weights,
		Ignored:    ignored,
		RateChange: req.RateChange,
		Funds:      res.Funds,
		Unmatched:  res.Unmatched,
		Malformed:  res.Malformed,
		Degraded:   res.Degraded,
		DurationMS: res.Duration.Milliseconds(),
		Generated:  time.Now().UTC(),
	})
}

func (s *Server) parseRankRequest(r *http.Request, category fund.Category) (pipeline.Request, error) {
	q := r.URL.Query()
	req := pipeline.Request{Category: category}

	var err error
	if raw := q.Get("weights"); raw != "" {
		req.Weights, err = ranking.ParseWeights(raw)
		if err != nil {
			return req, err
		}
	} else if s.deps.Weights != nil {
		def, err := s.deps.Weights.GetWeights(string(category))
		if err != nil {
			return req, err
		}
		req.Weights = def
	} else {
		return req, errors.New("weights are required")
	}

	if raw := q.Get("rate_change"); raw != "" {
		req.RateChange, err = strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(req.RateChange) || math.IsInf(req.RateChange, 0) {
			return req, fmt.Errorf("invalid rate_change %q", raw)
		}
	}
	if req.MatchPolicy, err = match.ParsePolicy(q.Get("policy")); err != nil {
		return req, err
	}
	if raw := q.Get("risk_ceiling"); raw != "" {
		req.RiskCeiling = fund.ParseRisk(raw)
		if req.RiskCeiling == fund.RiskUnknown {
			return req, fmt.Errorf("unknown risk class %q", raw)
		}
	}
	return req, nil
}

// ignoredWeightKeys lists the weight keys the category's plan does not read.
// They weigh nothing; the response reports them.
func (s *Server) ignoredWeightKeys(category fund.Category, weights ranking.Weights) []string {
	var unknown []string
	for _, p := range s.deps.Ranker.Plans() {
		if p.Category != category {
			continue
		}
		known := make(map[string]bool)
		for _, k := range p.WeightKeys() {
			known[k] = true
		}
		for k := range weights {
			if !known[k] {
				unknown = append(unknown, k)
			}
		}
	}
	sort.Strings(unknown)
	return unknown
}

// classify maps a pipeline error onto an HTTP status and error code
func classify(err error) (int, string) {
	var pe *client.ProviderError
	switch {
	case errors.Is(err, pipeline.ErrUnknownCategory):
		return http.StatusNotFound, "unknown_category"
	case errors.Is(err, pipeline.ErrInvalidRateChange), errors.Is(err, ranking.ErrInvalidWeight):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, match.ErrFundNotFound):
		return http.StatusUnprocessableEntity, "fund_not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &pe):
		return http.StatusBadGateway, "provider_" + pe.Type
	default:
		return http.StatusInternalServerError, "ranking_failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

// Start checks the port and serves until Shutdown
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.GetAddress())
	if err != nil {
		return fmt.Errorf("port %d is busy or unavailable: %w", s.config.Port, err)
	}
	log.Info().Str("addr", s.GetAddress()).Msg("Starting HTTP server (read-only)")
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// GetAddress returns the server address
func (s *Server) GetAddress() string {
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

// responseWrapper captures HTTP status codes for logging
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
