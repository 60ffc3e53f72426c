// Package server provides the HTTP API for MuninDB queries.
//
// Requests and responses are JSON records: a successful query returns
// {"count": n}, a failed one {"error": "..."}. Input errors (bad JSON,
// malformed patterns) map to 4xx; artifact or internal failures map to
// 5xx. Response buffers are allocated per request.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orneryd/munindb/pkg/auth"
	"github.com/orneryd/munindb/pkg/blockstore"
	"github.com/orneryd/munindb/pkg/log"
	"github.com/orneryd/munindb/pkg/query"
)

// ErrServerClosed names a server that has shut down. No function in this
// package returns it: Start returns only listen errors, and the serve
// loop logs its own errors.
var ErrServerClosed = fmt.Errorf("server closed")

// Config holds HTTP server configuration.
type Config struct {
	// Address to bind to (default "0.0.0.0")
	Address string
	// Port to listen on
	Port int
	// ReadTimeout for requests
	ReadTimeout time.Duration
	// WriteTimeout for responses; subgraph searches can run long
	WriteTimeout time.Duration
	// EnableCORS for cross-origin requests
	EnableCORS bool
	// CORSOrigins allowed (default: "*")
	CORSOrigins []string
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Address:      "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		EnableCORS:   true,
		CORSOrigins:  []string{"*"},
	}
}

// CacheStatsFunc reports hot block cache counters when the block
// backend is active.
type CacheStatsFunc func() blockstore.CacheStats

// Server serves analytic queries over HTTP.
type Server struct {
	engine *query.Engine
	config Config

	// optional collaborators
	authn      *auth.Authenticator
	cacheStats CacheStatsFunc

	httpServer *http.Server
	listener   net.Listener
	startTime  time.Time
	requests   atomic.Uint64
	active     atomic.Int64
}

// Option customizes a Server.
type Option func(*Server)

// WithAuth enables bearer-token authentication.
func WithAuth(a *auth.Authenticator) Option {
	return func(s *Server) { s.authn = a }
}

// WithCacheStats surfaces block cache counters on /status.
func WithCacheStats(fn CacheStatsFunc) Option {
	return func(s *Server) { s.cacheStats = fn }
}

// New creates an HTTP server over a query engine.
func New(engine *query.Engine, config Config, opts ...Option) *Server {
	s := &Server{engine: engine, config: config}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins listening. Non-blocking; errors from the serve loop are
// logged.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("http server: %v", err)
		}
	}()

	log.Info("http server listening on %s", addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address, useful when Port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// buildRouter wires endpoints and middleware.
func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/token", s.handleToken)

	mux.HandleFunc("/query/khop", s.withAuth(s.handleKHop))
	mux.HandleFunc("/query/common-neighbors", s.withAuth(s.handleCommonNeighbors))
	mux.HandleFunc("/query/subgraph", s.withAuth(s.handleSubgraph))
	mux.HandleFunc("/query/connected-components", s.withAuth(s.handleConnectedComponents))
	mux.HandleFunc("/query/reachable", s.withAuth(s.handleReachable))

	// Wrap with middleware
	handler := s.corsMiddleware(mux)
	handler = s.loggingMiddleware(handler)
	handler = s.recoveryMiddleware(handler)
	handler = s.metricsMiddleware(handler)
	return handler
}

// withAuth enforces bearer-token auth when configured.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	if s.authn == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !s.authn.Validate(token) {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		handler(w, r)
	}
}

// responseWriter captures the response status for logging and metrics.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// corsMiddleware answers cross-origin requests for configured origins
// and short-circuits preflight.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.EnableCORS {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}

			allowed := false
			for _, o := range s.config.CORSOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// Handle preflight
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request with its status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		if r.URL.Path != "/health" {
			log.Debug("%s %s %d (%v)", r.Method, r.URL.Path, wrapped.status, time.Since(start))
		}
	})
}

// recoveryMiddleware turns handler panics into 500 responses.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic serving %s: %v", r.URL.Path, rec)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware counts requests and records per-query-type
// prometheus metrics from the response status.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.active.Add(1)
		defer s.active.Add(-1)

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		if kind := queryKind(r.URL.Path); kind != "" {
			observeRequest(kind, time.Since(start), wrapped.status)
		}
	})
}

// countResponse is the uniform success payload.
type countResponse struct {
	Count uint64 `json:"count"`
}

// errorResponse is the uniform failure payload.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeCount(w http.ResponseWriter, count uint64) {
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody parses a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}
