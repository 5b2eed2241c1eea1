package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/metrics"
	"github.com/brojonat/bukeqi/service/oracle"
	"github.com/brojonat/bukeqi/service/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Oracle is the sequencer surface the HTTP layer drives.
type Oracle interface {
	Submit(ctx context.Context, text, intent string) (*ledger.Request, error)
	RunClosingRitual(ctx context.Context, confirm oracle.Confirmer) (*oracle.RitualResult, error)
	Dismiss() error
	Snapshot() oracle.Snapshot
	Ledger() []ledger.Request
	Subscribe(buffer int) (<-chan oracle.Snapshot, func())
	Notify()
}

// Identity is the wallet surface the HTTP layer drives.
type Identity interface {
	Current() wallet.Identity
	Connect(ctx context.Context) (wallet.Identity, error)
	RefreshBalance(ctx context.Context, address string) string
	Disconnect(ctx context.Context) error
}

// Server represents the HTTP server for the oracle service.
type Server struct {
	addr     string
	oracle   Oracle
	identity Identity
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, o Oracle, id Identity, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		oracle:   o,
		identity: id,
		metrics:  m,
		logger:   logger.With("component", "server"),
	}
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Oracle routes
	route("GET /api/v1/oracle", "/api/v1/oracle", handleGetOracle(s.oracle))
	route("GET /api/v1/oracle/stream", "/api/v1/oracle/stream", handleStreamOracle(s.oracle, s.metrics, s.logger))
	route("POST /api/v1/oracle/dismiss", "/api/v1/oracle/dismiss", handleDismiss(s.oracle, s.logger))
	route("GET /api/v1/intents", "/api/v1/intents", handleListIntents())

	// Ledger routes
	route("POST /api/v1/requests", "/api/v1/requests", handleSubmitRequest(s.oracle, s.logger))
	route("GET /api/v1/requests", "/api/v1/requests", handleListRequests(s.oracle))
	route("POST /api/v1/ritual", "/api/v1/ritual", handleRunRitual(s.oracle, s.logger))

	// Identity routes
	route("GET /api/v1/wallet", "/api/v1/wallet", handleGetWallet(s.identity))
	route("POST /api/v1/wallet", "/api/v1/wallet", handleConnectWallet(s.identity, s.oracle, s.logger))
	route("POST /api/v1/wallet/refresh", "/api/v1/wallet/refresh", handleRefreshWallet(s.identity, s.oracle))
	route("DELETE /api/v1/wallet", "/api/v1/wallet", handleDisconnectWallet(s.identity, s.oracle, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
