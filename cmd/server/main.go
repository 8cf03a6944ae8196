// Package main is the entry point for the invpanel server: a personal
// investment panel with transaction logging, a rule-based opportunity
// engine with an AI governance gate, a paper-trading simulator and
// descriptive analytics over user-loaded price history.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tecnolok-2025/invpanel-pro/internal/config"
	"github.com/tecnolok-2025/invpanel-pro/internal/database"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/ai"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/alerts"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/analytics"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/assets"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/audit"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/portfolio"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/recommendations"
	"github.com/tecnolok-2025/invpanel-pro/internal/modules/simulator"
	"github.com/tecnolok-2025/invpanel-pro/internal/scheduler"
	"github.com/tecnolok-2025/invpanel-pro/internal/server"
	"github.com/tecnolok-2025/invpanel-pro/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("Starting invpanel")

	db, err := database.Open(cfg.DataDir, "invpanel.db")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	conn := db.Conn()

	// Repositories
	portfolioRepo := portfolio.NewPortfolioRepository(conn, log)
	txRepo := portfolio.NewTransactionRepository(conn, log)
	assetRepo := assets.NewAssetRepository(conn, log)
	priceRepo := assets.NewPriceRepository(conn, log)
	recoRepo := recommendations.NewRepository(conn, log)
	simRepo := simulator.NewRepository(conn, log)
	auditRepo := audit.NewRepository(conn, log)

	// Services
	portfolioSvc := portfolio.NewService(portfolioRepo, txRepo, log)
	priceLookup := assets.NewPriceLookup(priceRepo)
	ingestor := assets.NewCSVIngestor(assetRepo, priceRepo, log)

	engine := recommendations.NewEngine(portfolioSvc, priceLookup, assetRepo, recoRepo, log)
	lifecycle := recommendations.NewLifecycle(recoRepo, log)
	diagCache := recommendations.NewDiagCache(conn, log)
	evaluator := ai.NewEvaluator(cfg.AI, log)
	recoSvc := recommendations.NewService(
		engine, recoRepo, diagCache, lifecycle,
		portfolioSvc, priceLookup, evaluator, cfg.AI, log,
	)

	simSvc := simulator.NewService(conn, simRepo, priceRepo, log)
	analyticsSvc := analytics.NewService(priceRepo, assetRepo, log)
	alertsSvc := alerts.NewService(cfg.Alert, analyticsSvc, log)
	recorder := audit.NewRecorder(auditRepo, log)

	// Background jobs
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.Alert.CronSpec, alerts.NewDailyJob(alertsSvc, log)); err != nil {
		log.Error().Err(err).Str("spec", cfg.Alert.CronSpec).Msg("Failed to register daily alert job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:             log,
		DB:              db,
		Config:          cfg,
		PortfolioRepo:   portfolioRepo,
		TransactionRepo: txRepo,
		PortfolioSvc:    portfolioSvc,
		AssetRepo:       assetRepo,
		PriceRepo:       priceRepo,
		CSVIngestor:     ingestor,
		RecoRepo:        recoRepo,
		RecoSvc:         recoSvc,
		SimulatorSvc:    simSvc,
		AnalyticsSvc:    analyticsSvc,
		AlertsSvc:       alertsSvc,
		AuditRepo:       auditRepo,
		AuditRecorder:   recorder,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	if err := db.WALCheckpoint(""); err != nil {
		log.Warn().Err(err).Msg("WAL checkpoint on shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
