package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tokensentry/config"
	"tokensentry/internal/domain"
	"tokensentry/internal/infrastructure/logger"
	"tokensentry/internal/infrastructure/market"
	"tokensentry/internal/infrastructure/rpcpool"
	"tokensentry/internal/infrastructure/storage"
	"tokensentry/internal/usecase"
	"tokensentry/internal/web"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// Missing .env is fine; env vars may come from the environment itself.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	gateway := rpcpool.NewGateway(cfg.RPC, log)
	provider := market.NewClient(cfg.Provider, log)

	auditSvc := usecase.NewAuditService(store, log)
	alerter := usecase.NewLogAlerter(log)

	regime := usecase.NewRegimeDetector(provider, auditSvc, cfg.Regime, log)
	safety := usecase.NewSafetyScorer(provider, store, cfg.Safety, log)
	engine := usecase.NewConvictionEngine(cfg.Trading)
	risk := usecase.NewRiskGovernor(cfg.Risk, auditSvc, alerter, log)
	learning := usecase.NewLearningScheduler(store, store, auditSvc, cfg.Learning, log)

	var executor domain.TradeExecutor
	if cfg.Trading.Paper {
		executor = usecase.NewPaperExecutor(store, cfg.Exec, log)
	} else {
		executor = usecase.NewExecutionManager(gateway, store, cfg.Exec, log)
	}

	positions := usecase.NewPositionManager(
		store, store, executor, provider, auditSvc, alerter,
		cfg.Trading, cfg.Trading.Paper, log,
	)

	// Live trading can carry a paper shadow book alongside for comparison.
	var shadow *usecase.PaperShadow
	if !cfg.Trading.Paper && cfg.Trading.PaperShadow {
		paperExec := usecase.NewPaperExecutor(store, cfg.Exec, log)
		shadowBook := usecase.NewPositionManager(
			store, store, paperExec, provider, auditSvc, alerter,
			cfg.Trading, true, log,
		)
		shadow = usecase.NewPaperShadow(paperExec, shadowBook, log)
	}

	scanner := usecase.NewScanner(
		provider, provider, store, store,
		safety, engine, regime, risk, learning,
		executor, positions, auditSvc, cfg.Scanner, log,
	)

	bot := usecase.NewBotService(cfg, regime, scanner, positions, risk, learning, engine, shadow, auditSvc, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway.Start(ctx)

	// Streamed prices tighten stop and take-profit reaction between ticks.
	provider.OnPriceUpdate(positions.OnPriceTick)
	if err := provider.ConnectStream(); err != nil {
		log.Warn("price stream unavailable, polling only", zap.Error(err))
	}

	if err := bot.Start(ctx); err != nil {
		log.Fatal("Failed to start bot", zap.Error(err))
	}

	server := web.NewServer(
		cfg.Server.Port,
		bot, scanner, regime, learning, positions, gateway,
		store, store, store, store, store, store,
		auditSvc, log,
	)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Web server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Web server shutdown failed", zap.Error(err))
	}
	if bot.IsActive() {
		if err := bot.Stop(shutdownCtx); err != nil {
			log.Error("Bot stop failed", zap.Error(err))
		}
	}
	provider.CloseStream()
	cancel()
	log.Info("Shutdown complete")
}
