package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tickflow/config"
	"tickflow/logger"
	"tickflow/pipeline"
	"tickflow/reader/binance"
	"tickflow/reconcile"
	sig "tickflow/signal"
	"tickflow/trader"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tickflow.Name,
		"version": cfg.Tickflow.Version,
		"symbol":  cfg.Stream.Symbol,
		"policy":  cfg.Signal.Policy,
	}).Info("starting tickflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := reconcile.NewReconciler(cfg, cfg.Stream.Symbol, reconcile.NewBinanceSource(cfg))
	engine := sig.NewEngine(cfg)
	book := trader.New(ctx, cfg, engine, reconciler)
	pipe := pipeline.New(cfg, reconciler, book.OnUpdate)
	reader := binance.NewReader(cfg, pipe.HandleEvent)

	if err := reconciler.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start reconciler")
		os.Exit(1)
	}
	if err := reader.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start stream reader")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	streamLost := false
	select {
	case received := <-sigChan:
		log.WithFields(logger.Fields{"signal": received.String()}).Info("shutdown signal received")
	case <-reader.Done():
		streamLost = true
		log.Error("stream connection permanently lost, shutting down")
	}

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		reader.Stop()
		reconciler.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	pipeStats := pipe.Stats()
	traderStats := book.Stats()
	log.WithFields(logger.Fields{
		"trades":            pipeStats.ProcessedTrades,
		"orderbooks":        pipeStats.ProcessedOrderbooks,
		"validation_errors": pipeStats.ValidationErrors,
		"positions_opened":  traderStats.TradesOpened,
		"positions_closed":  traderStats.TradesClosed,
		"wins":              traderStats.Wins,
		"realized_pnl":      traderStats.RealizedPnL,
	}).Info("final stats")

	log.Info("tickflow stopped")
	if streamLost {
		os.Exit(1)
	}
}
