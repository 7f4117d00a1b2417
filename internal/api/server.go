package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/predict"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, genCfg domain.GeneratorConfig, sink domain.Sink, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, processor *predict.Processor, tracker *velocity.Tracker, version string) *Server {
	handler := NewHandler(genCfg, sink, cache, bus, engine, processor, tracker, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Fraud scoring
		r.Post("/predict", handler.Predict)
		r.Post("/predict_batch", handler.BatchPredict)

		// Dataset generation. One run at a time keeps memory bounded.
		r.With(GenerateGuard(1)).Post("/generate", handler.Generate)

		// Run metadata
		r.Get("/runs/latest", handler.LatestRun)
		r.Get("/runs/{id}", handler.GetRun)

		// Override rule management
		r.Get("/overrides", handler.ListOverrides)
		r.Get("/overrides/{id}", handler.GetOverride)
		r.Post("/overrides", handler.CreateOverride)
		r.Put("/overrides/{id}", handler.UpdateOverride)
		r.Delete("/overrides/{id}", handler.DeleteOverride)
		r.Post("/overrides/reload", handler.ReloadOverrides)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
