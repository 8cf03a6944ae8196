// Package server provides the HTTP server and routing for invpanel.
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

	"github.com/tecnolok-2025/invpanel-pro/internal/config"
	"github.com/tecnolok-2025/invpanel-pro/internal/database"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/alerts"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/analytics"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/assets"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/audit"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/portfolio"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/recommendations"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/simulator"
)

// defaultOwner is used when the request carries no X-User header. There is no
// auth layer; the owner is an opaque partitioning key.
const defaultOwner = "local"

// Config holds server configuration
type Config struct {
	Log    zerolog.Logger
	DB     *database.DB
	Config *config.Config

	PortfolioRepo   *portfolio.PortfolioRepository
	TransactionRepo *portfolio.TransactionRepository
	PortfolioSvc    *portfolio.Service
	AssetRepo       *assets.AssetRepository
	PriceRepo       *assets.PriceRepository
	CSVIngestor     *assets.CSVIngestor
	RecoRepo        *recommendations.Repository
	RecoSvc         *recommendations.Service
	SimulatorSvc    *simulator.Service
	AnalyticsSvc    *analytics.Service
	AlertsSvc       *alerts.Service
	AuditRepo       *audit.Repository
	AuditRecorder   *audit.Recorder
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    *config.Config
	db     *database.DB

	portfolios *portfolio.PortfolioRepository
	txs        *portfolio.TransactionRepository
	snapshots  *portfolio.Service
	assets     *assets.AssetRepository
	prices     *assets.PriceRepository
	ingestor   *assets.CSVIngestor
	recoRepo   *recommendations.Repository
	reco       *recommendations.Service
	sims       *simulator.Service
	analytics  *analytics.Service
	alerts     *alerts.Service
	auditRepo  *audit.Repository
	audit      *audit.Recorder

	startedAt time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		cfg:        cfg.Config,
		db:         cfg.DB,
		portfolios: cfg.PortfolioRepo,
		txs:        cfg.TransactionRepo,
		snapshots:  cfg.PortfolioSvc,
		assets:     cfg.AssetRepo,
		prices:     cfg.PriceRepo,
		ingestor:   cfg.CSVIngestor,
		recoRepo:   cfg.RecoRepo,
		reco:       cfg.RecoSvc,
		sims:       cfg.SimulatorSvc,
		analytics:  cfg.AnalyticsSvc,
		alerts:     cfg.AlertsSvc,
		auditRepo:  cfg.AuditRepo,
		audit:      cfg.AuditRecorder,
		startedAt:  time.Now(),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived websocket; must not sit under the request timeout.
		r.Get("/badges/stream", s.handleBadgeStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			s.setupAPIRoutes(r)
		})
	})
}

func (s *Server) setupAPIRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Get("/", s.handleListPortfolios)
		r.Post("/", s.handleCreatePortfolio)
		r.Get("/default", s.handleDefaultPortfolio)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetPortfolio)
			r.Post("/rename", s.handleRenamePortfolio)
			r.Get("/transactions", s.handleListTransactions)
			r.Post("/transactions", s.handleCreateTransaction)
		})
	})

	r.Route("/assets", func(r chi.Router) {
		r.Get("/", s.handleListAssets)
		r.Post("/", s.handleCreateAsset)
	})

	r.Route("/prices", func(r chi.Router) {
		r.Get("/history", s.handlePriceHistory)
		r.Post("/upload", s.handlePriceUpload)
	})

	r.Route("/opportunities", func(r chi.Router) {
		r.Get("/", s.handleListOpenOpportunities)
		r.Get("/db", s.handleListOpportunitiesDB)
		r.Get("/last-run", s.handleOpportunitiesLastRun)
		r.Post("/generate", s.handleGenerateOpportunities)
		r.Post("/demo", s.handleSeedDemoOpportunities)
		r.Post("/ai-eval", s.handleEvaluateOpportunities)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/accept", s.handleAcceptOpportunity)
			r.Post("/ignore", s.handleIgnoreOpportunity)
			r.Post("/reopen", s.handleReopenOpportunity)
		})
	})

	r.Get("/badges", s.handleBadges)

	r.Route("/sims", func(r chi.Router) {
		r.Get("/", s.handleListSimulations)
		r.Post("/", s.handleCreateSimulation)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleSimulationDetail)
			r.Post("/trade", s.handleSimulationTrade)
			r.Post("/advance", s.handleSimulationAdvance)
		})
	})

	r.Get("/analytics/ranking", s.handleAnalyticsRanking)
	r.Post("/alerts/daily", s.handleDailyAlert)
	r.Get("/audit", s.handleListAuditEvents)
	r.Get("/system/status", s.handleSystemStatus)
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

// owner resolves the request's owner key.
func owner(r *http.Request) string {
	if u := r.Header.Get("X-User"); u != "" {
		return u
	}
	return defaultOwner
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
