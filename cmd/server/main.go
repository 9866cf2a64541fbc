package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/etfolio/etfolio-backend/internal/adapter/feed/openfigi"
	"github.com/etfolio/etfolio-backend/internal/adapter/feed/twelvedata"
	"github.com/etfolio/etfolio-backend/internal/adapter/repository/postgres"
	"github.com/etfolio/etfolio-backend/internal/adapter/rest"
	"github.com/etfolio/etfolio-backend/internal/scheduler"
	"github.com/etfolio/etfolio-backend/internal/usecase/catalog"
	"github.com/etfolio/etfolio-backend/internal/usecase/etfsync"
	"github.com/etfolio/etfolio-backend/internal/usecase/ledger"
	"github.com/etfolio/etfolio-backend/internal/usecase/seeder"
	"github.com/etfolio/etfolio-backend/pkg/logger"
)

const (
	defaultPort         = 8080
	defaultSyncSchedule = "0 3 * * *" // daily at 03:00
)

func main() {
	// .env is optional; real deployments set environment variables directly
	_ = godotenv.Load()

	log := logger.New(logger.Config{
		Level:  envOr("LOG_LEVEL", "info"),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})
	logger.SetGlobalLogger(log)

	db, err := postgres.NewDB(dbConnString())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	exchangeRepo := postgres.NewExchangeRepository(db)
	instrumentRepo := postgres.NewInstrumentRepository(db)
	listingRepo := postgres.NewListingRepository(db)
	portfolioRepo := postgres.NewPortfolioRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)

	// Use cases
	catalogService := catalog.NewService(instrumentRepo, listingRepo, exchangeRepo)
	ledgerService := ledger.NewService(portfolioRepo, transactionRepo, listingRepo, catalogService)

	if err := seeder.NewExchangeSeeder(exchangeRepo).Seed(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to seed exchanges")
	}
	log.Info().Msg("exchange reference data seeded")

	// Feed clients + scheduled sync
	listingFeed := twelvedata.NewClient(envOr("TWELVE_DATA_API_KEY", "demo"), log)
	enrichmentFeed := openfigi.NewClient(os.Getenv("OPENFIGI_API_KEY"), log)

	syncService := etfsync.NewService(exchangeRepo, catalogService, listingFeed, enrichmentFeed, log)
	syncJob := etfsync.NewJob(syncService, etfsync.Config{
		RatePerMinute: envInt("ETF_SYNC_RATE_PER_MINUTE", 0),
	}, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(envOr("ETF_SYNC_SCHEDULE", defaultSyncSchedule), syncJob); err != nil {
		log.Fatal().Err(err).Msg("failed to register sync job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	server := rest.New(rest.Config{
		Port:         envInt("PORT", defaultPort),
		AuthToken:    os.Getenv("API_TOKEN"),
		Log:          log,
		Ledger:       ledgerService,
		ExchangeRepo: exchangeRepo,
		ListingRepo:  listingRepo,
		SyncJob:      syncJob,
	})

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	waitForShutdown(server, log)
}

// waitForShutdown blocks until SIGTERM or SIGINT, then drains the HTTP server
func waitForShutdown(server *rest.Server, log zerolog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func dbConnString() string {
	if connStr := os.Getenv("DB_CONN_STR"); connStr != "" {
		return connStr
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		envOr("DB_HOST", "localhost"),
		envOr("DB_PORT", "5432"),
		envOr("DB_USER", "postgres"),
		envOr("DB_PASSWORD", "postgres"),
		envOr("DB_NAME", "etfolio"),
	)
}
