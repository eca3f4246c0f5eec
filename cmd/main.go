/**
 * @description
 * Entry point for the settlement service. Wires the Postgres repository,
 * the RabbitMQ producer, the engine components, the cron scheduler and the
 * internal HTTP API, then runs until a shutdown signal arrives.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/meridianfunds/settlement-service/internal/api"
	"github.com/meridianfunds/settlement-service/internal/app"
	"github.com/meridianfunds/settlement-service/internal/config"
	"github.com/meridianfunds/settlement-service/internal/store"
	settlementrabbit "github.com/meridianfunds/settlement-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 100
	pgConfig.MinConns = 20
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	repository := store.NewPostgresRepository(dbpool)

	var publisher app.EventPublisher = &settlementrabbit.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		if producer, err := settlementrabbit.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}

	settings, err := app.SettingsFromConfig(*cfg)
	if err != nil {
		logger.Error("invalid settlement settings", "error", err)
		os.Exit(1)
	}

	ledger := app.NewLedgerWriter(repository, logger)
	integrity := app.NewIntegrityValidator(repository, publisher, logger)
	referrals := app.NewReferralChainBuilder(repository, logger)
	fees := app.NewSignupFeeDistributor(repository, ledger, settings, logger)
	overrides := app.NewFounderOverrideCalculator(repository, ledger, settings, logger)
	distributor := app.NewCommissionDistributor(repository, ledger, overrides, publisher, settings, logger)
	withdrawals := app.NewWithdrawalStateMachine(repository, ledger, publisher, logger, cfg.ReleaseDayOfMonth)

	jobs := app.NewJobs(distributor, withdrawals, integrity, logger, *cfg)
	scheduler := app.NewScheduler(jobs, logger, *cfg)
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	handler := api.NewHandler(referrals, fees, distributor, integrity, withdrawals, logger)
	router := api.NewRouter(handler, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
