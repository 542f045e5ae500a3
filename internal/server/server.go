// Package server provides the HTTP server and routing for Vigil.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/vigil/internal/config"
	"github.com/aristath/vigil/internal/database"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/modules/alerts"
	riskhandlers "github.com/aristath/vigil/internal/modules/risk/handlers"
	"github.com/aristath/vigil/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	PortfolioDB *database.DB
	CacheDB     *database.DB
	Config      *config.Config
	Port        int
	DevMode     bool
	RiskHandler *riskhandlers.Handler
	AlertsRepo  *alerts.Repository
	Bus         *events.Bus
	Scheduler   *scheduler.Scheduler
	// RequestTimeout bounds REST request handling. The alert stream is
	// exempt; websocket connections are long-lived. Zero means 60s.
	RequestTimeout time.Duration
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	portfolioDB    *database.DB
	cacheDB        *database.DB
	cfg            *config.Config
	riskHandler    *riskhandlers.Handler
	alertHandlers  *AlertHandlers
	systemHandlers *SystemHandlers
	requestTimeout time.Duration
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		portfolioDB:    cfg.PortfolioDB,
		cacheDB:        cfg.CacheDB,
		cfg:            cfg.Config,
		riskHandler:    cfg.RiskHandler,
		alertHandlers:  NewAlertHandlers(cfg.AlertsRepo, cfg.Bus, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.PortfolioDB, cfg.CacheDB, cfg.Scheduler),
		requestTimeout: cfg.RequestTimeout,
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = 60 * time.Second
	}

	s.setupMiddleware(cfg.DevMode)
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

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// The stream holds its connection open until the client leaves,
		// so it stays outside the timeout group below. CloseRead inherits
		// the request context, and a deadline there would cut every
		// client off.
		r.Get("/alerts/stream", s.alertHandlers.HandleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))

			r.Get("/alerts", s.alertHandlers.HandleList)
			r.Post("/alerts/{id}/ack", s.alertHandlers.HandleAcknowledge)

			r.Route("/system", func(r chi.Router) {
				r.Get("/health", s.systemHandlers.HandleSystemHealth)
				r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
			})

			s.riskHandler.RegisterRoutes(r)
		})
	})
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.portfolioDB.HealthCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		s.log.Error().Err(err).Msg("Failed to write health response")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
