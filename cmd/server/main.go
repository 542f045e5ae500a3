// Package main is the entry point for the Vigil portfolio risk engine.
// The application computes risk metrics (VaR, volatility, drawdown), runs
// stress tests and Monte Carlo simulations, monitors risk limits, and
// serves everything over a REST API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/vigil/internal/config"
	"github.com/aristath/vigil/internal/database"
	"github.com/aristath/vigil/internal/events"
	"github.com/aristath/vigil/internal/modules/alerts"
	"github.com/aristath/vigil/internal/modules/backtest"
	"github.com/aristath/vigil/internal/modules/calculations"
	"github.com/aristath/vigil/internal/modules/limits"
	"github.com/aristath/vigil/internal/modules/liquidity"
	"github.com/aristath/vigil/internal/modules/montecarlo"
	"github.com/aristath/vigil/internal/modules/portfolio"
	"github.com/aristath/vigil/internal/modules/reports"
	"github.com/aristath/vigil/internal/modules/returns"
	"github.com/aristath/vigil/internal/modules/risk"
	riskhandlers "github.com/aristath/vigil/internal/modules/risk/handlers"
	"github.com/aristath/vigil/internal/modules/stress"
	"github.com/aristath/vigil/internal/scheduler"
	"github.com/aristath/vigil/internal/server"
	"github.com/aristath/vigil/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Vigil")

	// Portfolio data and risk limits share the durable database; the
	// correlation cache lives in a throwaway cache database.
	portfolioDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "portfolio.db"),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open portfolio database")
	}
	defer portfolioDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	// Repositories and schemas
	portfolioRepo := portfolio.NewRepository(portfolioDB.Conn(), log)
	if err := portfolioRepo.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize portfolio schema")
	}
	limitsRepo := limits.NewRepository(portfolioDB.Conn(), log)
	if err := limitsRepo.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize risk limits schema")
	}
	alertsRepo := alerts.NewRepository(portfolioDB.Conn(), log)
	if err := alertsRepo.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize alerts schema")
	}
	cache := calculations.NewCache(cacheDB.Conn(), calculations.DefaultTTL, log)
	if err := cache.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize calculation cache schema")
	}

	// Analytics components
	portfolioService := portfolio.NewService(portfolioRepo, log)
	builder := returns.NewBuilder(log)
	corr := risk.NewCorrelationEstimator(log)
	simulator := montecarlo.NewSimulator(builder, corr, cfg.SimWorkers, log)

	riskCfg := risk.DefaultConfig()
	riskCfg.RiskFreeRate = cfg.RiskFreeRate
	calculator := risk.NewCalculator(riskCfg, builder, simulator, log)

	stressEngine := stress.NewEngine(stress.DefaultConfig(), builder, corr, log)
	validator := backtest.NewValidator(backtest.DefaultSignificance, log)
	analyzer := liquidity.NewAnalyzer(liquidity.DefaultConfig(), log)
	monitor := limits.NewMonitor(log)
	composer := reports.NewComposer(calculator, stressEngine, validator, analyzer, log)

	// Events: alerts are persisted off the bus, and the websocket stream
	// forwards them live.
	bus := events.NewBus(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alerts.NewRecorder(alertsRepo, bus, log).Start(ctx)

	// Periodic risk limit sweep across all portfolios
	sched := scheduler.NewScheduler(log)
	if cfg.SweepEnabled {
		sweep := scheduler.NewLimitSweep(portfolioService, limitsRepo, calculator, monitor, bus, log)
		err := sched.AddJob(scheduler.ScheduledJob{
			Name:     "limit_sweep",
			Schedule: cfg.SweepSchedule,
			Handler:  sweep.Run,
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("Failed to register limit sweep job")
		}
	}
	sched.Start()

	riskHandler := riskhandlers.NewHandler(
		portfolioService,
		calculator,
		corr,
		stressEngine,
		simulator,
		analyzer,
		limitsRepo,
		monitor,
		composer,
		cache,
		bus,
		log,
	)

	srv := server.New(server.Config{
		Log:         log,
		PortfolioDB: portfolioDB,
		CacheDB:     cacheDB,
		Config:      cfg,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		RiskHandler: riskHandler,
		AlertsRepo:  alertsRepo,
		Bus:         bus,
		Scheduler:   sched,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
