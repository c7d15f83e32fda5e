package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/simexchange/internal/domain"
	"github.com/alanyoungcy/simexchange/internal/metrics"
	"github.com/alanyoungcy/simexchange/internal/server/handler"
	"github.com/alanyoungcy/simexchange/internal/server/middleware"
	"github.com/alanyoungcy/simexchange/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per window and client; 0 disables limiting
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Wizard *handler.WizardHandler
	Market *handler.MarketHandler
	Wallet *handler.WalletHandler
}

// Server is the headless HTTP + WebSocket API server behind the dashboard.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, metrics, rate limiting, auth) and
// attaches the WebSocket hub. limiter and hub may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NopMetrics()
	}
	mux := http.NewServeMux()

	// Health and metrics (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Wizard sessions.
	mux.HandleFunc("POST /api/wizard/sessions", handlers.Wizard.Create)
	mux.HandleFunc("GET /api/wizard/sessions/{id}", handlers.Wizard.Get)
	mux.HandleFunc("POST /api/wizard/sessions/{id}/next", handlers.Wizard.Next)
	mux.HandleFunc("POST /api/wizard/sessions/{id}/back", handlers.Wizard.Back)
	mux.HandleFunc("DELETE /api/wizard/sessions/{id}", handlers.Wizard.Close)

	// Oracle suggestions, deployed contracts and order books.
	mux.HandleFunc("GET /api/oracle/suggestions", handlers.Market.Suggestions)
	mux.HandleFunc("GET /api/contracts", handlers.Market.ListContracts)
	mux.HandleFunc("GET /api/contracts/{address}/orderbook", handlers.Market.OrderBook)

	// Wallet header and collateral transfers.
	mux.HandleFunc("POST /api/wallet/select", handlers.Wallet.Select)
	mux.HandleFunc("GET /api/wallet", handlers.Wallet.Balances)
	mux.HandleFunc("POST /api/collateral/deposit", handlers.Wallet.Deposit)
	mux.HandleFunc("POST /api/collateral/withdraw", handlers.Wallet.Withdraw)

	// WebSocket endpoint.
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Metrics(m)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
