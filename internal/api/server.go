// Package api exposes the engine's selectors and operations over HTTP for
// dashboard clients.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"tradedesk/internal/engine"
	"tradedesk/internal/ledger"
)

// Config holds server configuration.
type Config struct {
	Port   int
	Engine *engine.Engine
	// Ledger is optional; nil disables the /ledger endpoint.
	Ledger ledger.Reader
	Log    zerolog.Logger
}

// Server represents the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	eng    *engine.Engine
	ledger ledger.Reader
	log    zerolog.Logger
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		eng:    cfg.Engine,
		ledger: cfg.Ledger,
		log:    cfg.Log.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/metrics", s.handleAccountMetrics)
		r.Get("/balance", s.handleBalance)
		r.Get("/positions/fx", s.handleFXPositions)
		r.Get("/positions/stock", s.handleStockPositions)
		r.Get("/positions/crypto", s.handleCryptoPositions)
		r.Get("/history", s.handleHistory)
		r.Get("/ledger", s.handleLedger)

		r.Post("/fx/open", s.handleOpenFX)
		r.Post("/fx/{id}/close", s.handleCloseFX)
		r.Post("/fx/{id}/risk", s.handleSetFXRisk)
		r.Post("/stock/buy", s.handleBuyStock)
		r.Post("/stock/{id}/sell", s.handleSellStock)
		r.Post("/crypto/buy", s.handleBuyCrypto)
		r.Post("/crypto/{id}/sell", s.handleSellCrypto)
		r.Post("/crypto/{id}/shield", s.handleToggleShield)
		r.Post("/balance/sync", s.handleSyncBalance)
	})
}

// loggingMiddleware logs each request with its status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying router, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
