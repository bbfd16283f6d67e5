package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"strategy-monitor/config"
	"strategy-monitor/internal/api"
	"strategy-monitor/internal/cache"
	"strategy-monitor/internal/database"
	"strategy-monitor/internal/engine"
	"strategy-monitor/internal/logging"
	"strategy-monitor/internal/market"
	"strategy-monitor/internal/providers"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		bootLogger := logging.New("info", true)
		bootLogger.Fatal().Err(err).Msg("configuration error")
	}

	logger := logging.New(cfg.LoggingConfig.Level, cfg.LoggingConfig.JSONFormat)
	logger.Info().Msg("starting strategy monitor")

	// Strategy store
	db, err := database.NewDB(cfg.StoreConfig.URL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.RunMigrations(ctx); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	cancel()

	repo := database.NewStrategyRepository(db)

	// Cache is optional: no URL means every request hits the providers.
	var cacheSvc *cache.Service
	if cfg.CacheConfig.URL != "" {
		cacheSvc, err = cache.NewService(cfg.CacheConfig.URL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid cache configuration")
		}
		defer cacheSvc.Close()
	} else {
		logger.Warn().Msg("no CACHE_URL configured, caching disabled")
	}

	// Provider chain, in configured order
	var provs []providers.Provider
	for _, name := range cfg.ProviderConfig.Order {
		switch name {
		case "binance":
			provs = append(provs, providers.NewBinanceClient(""))
		case "coingecko":
			provs = append(provs, providers.NewCoinGeckoClient(""))
		default:
			logger.Warn().Str("provider", name).Msg("unknown provider, skipping")
		}
	}
	if len(provs) == 0 {
		logger.Fatal().Msg("no usable providers configured")
	}

	prefetcher := market.NewPrefetcher(
		cacheSvc,
		provs,
		time.Duration(cfg.CacheConfig.PriceTTL)*time.Second,
		time.Duration(cfg.CacheConfig.CandleTTL)*time.Second,
		logger,
	)

	scheduler := engine.NewScheduler(
		repo,
		prefetcher,
		time.Duration(cfg.SchedulerConfig.Period)*time.Second,
		cfg.SchedulerConfig.Quote,
		logger,
	)
	if cfg.SchedulerConfig.Enabled {
		scheduler.Start()
	} else {
		logger.Info().Msg("scheduler disabled, serving control plane only")
	}

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
	}, repo, db, cacheSvc, scheduler, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api server exited")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown error")
	}

	logger.Info().Msg("shutdown complete")
}
