package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/config"
	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/handler"
	"github.com/boddenberg/savings-ledger-go/internal/infra/cache"
	"github.com/boddenberg/savings-ledger-go/internal/infra/export"
	"github.com/boddenberg/savings-ledger-go/internal/infra/memstore"
	"github.com/boddenberg/savings-ledger-go/internal/infra/observability"
	"github.com/boddenberg/savings-ledger-go/internal/infra/postgres"
	"github.com/boddenberg/savings-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/savings-ledger-go/internal/port"
	"github.com/boddenberg/savings-ledger-go/internal/service"

	"go.uber.org/zap"
)

// backend is a store serving every ledger port.
type backend interface {
	port.TypeCatalog
	port.LedgerStore
	port.Directory
	port.ReportStore
}

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_database", cfg.UseDatabase()),
		zap.Duration("catalog_cache_ttl", cfg.CatalogCacheTTL),
		zap.Duration("db_query_timeout", cfg.DBQueryTimeout),
		zap.String("demand_rate_monthly", cfg.DemandRateMonthly.String()),
		zap.Int("report_max_concurrency", cfg.ReportMaxConcurrency),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "savings-ledger")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	ctx := context.Background()
	var store backend
	if cfg.UseDatabase() {
		db, err := postgres.Open(ctx, postgres.Options{
			DSN:            cfg.DatabaseURL,
			MaxOpenConns:   cfg.DBMaxOpenConns,
			ConnectRetries: cfg.DBConnectRetries,
			ConnectBackoff: cfg.DBConnectBackoff,
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("failed to apply schema", zap.Error(err))
		}
		store = postgres.NewStore(db, postgres.WithQueryTimeout(cfg.DBQueryTimeout))
		logger.Info("using PostgreSQL ledger store")
	} else {
		store = memstore.New()
		logger.Warn("DATABASE_URL not set, using in-memory ledger store")
	}

	// --- Cache ---
	typeCache := cache.New[domain.SavingType](cfg.CatalogCacheTTL)
	defer typeCache.Close()

	// --- Resilience ---
	reportBreaker := resilience.NewCircuitBreaker("report-store")
	exportBulkhead := resilience.NewBulkhead(cfg.ReportMaxConcurrency)

	// --- Services ---
	catalogSvc := service.NewCatalogService(store, typeCache, metrics, logger)
	ledgerSvc := service.NewLedgerService(catalogSvc, store, store, port.SystemClock{}, cfg.DemandRateMonthly, metrics, logger)
	reportSvc := service.NewReportService(store, catalogSvc, export.Exporter{}, port.SystemClock{}, reportBreaker, exportBulkhead, metrics, logger)

	if cfg.CatalogSeedFile != "" {
		seed, err := config.LoadCatalogSeed(cfg.CatalogSeedFile)
		if err != nil {
			logger.Fatal("failed to load catalog seed", zap.String("file", cfg.CatalogSeedFile), zap.Error(err))
		}
		if mem, ok := store.(*memstore.Store); ok {
			employees, customers := seed.Parties()
			for _, e := range employees {
				mem.AddEmployee(e)
			}
			for _, c := range customers {
				mem.AddCustomer(c)
			}
		}
		n, err := catalogSvc.Seed(ctx, seed.SavingTypes())
		if err != nil {
			logger.Fatal("failed to seed catalog", zap.Error(err))
		}
		logger.Info("catalog seed applied", zap.String("file", cfg.CatalogSeedFile), zap.Int("created", n))
	}

	// --- Router ---
	router := handler.NewRouter(ledgerSvc, catalogSvc, reportSvc, store, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
