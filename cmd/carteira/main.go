package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"carteira/internal/amqp"
	"carteira/internal/cards"
	"carteira/internal/categories"
	"carteira/internal/config"
	apphttp "carteira/internal/http"
	"carteira/internal/ledger"
	"carteira/internal/log"
	"carteira/internal/notify"
	"carteira/internal/series"
)

func main() {
	// .env is for local development; absent in containers.
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	var store ledger.Store
	switch cfg.DataBackend {
	case config.BackendSQLite:
		sqliteStore, err := ledger.NewSQLiteStore(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to open SQLite store", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		store = sqliteStore
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
	default:
		store = ledger.NewMemoryStore()
		logger.Info("Initialized memory backend")
	}
	defer store.Close()

	hub := notify.NewHub(store)
	events := notify.Publisher(hub)

	// The change stream is optional: without a broker the API works,
	// only the spreadsheet export lags behind.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP broker", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		events = notify.Multi(hub, amqp.NewEventPublisher(amqpClient))
		logger.Info("Change events published to AMQP",
			"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, change events stay in-process")
	}

	registry := categories.NewRegistry(store, events)
	seriesEngine := series.NewEngine(store, registry, events)
	cardsEngine := cards.NewEngine(store, registry, events)

	srv := apphttp.NewServer(":"+cfg.Port, store, seriesEngine, cardsEngine, registry)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting carteira server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
