package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/infra/observability"
	"github.com/boddenberg/savings-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(ledger *service.LedgerService, catalog *service.CatalogService, reports *service.ReportService, store Pinger, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(store, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {

		// =============================================
		// Saving books
		// =============================================
		r.Route("/savingbook", func(r chi.Router) {
			r.Post("/", openSavingBookHandler(ledger, logger))
			r.Get("/search", searchSavingBooksHandler(ledger, logger))
			r.Get("/{bookId}", getSavingBookHandler(ledger, logger))
			r.Post("/{bookId}/close", closeSavingBookHandler(ledger, logger))
		})

		// =============================================
		// Transactions
		// =============================================
		r.Route("/transaction", func(r chi.Router) {
			r.Get("/", listTransactionsHandler(ledger, logger))
			r.Post("/deposit", depositHandler(ledger, logger))
			r.Post("/withdraw", withdrawHandler(ledger, logger))
		})

		// =============================================
		// Reports & dashboard
		// =============================================
		r.Route("/report", func(r chi.Router) {
			r.Get("/daily", dailyReportHandler(reports, logger))
			r.Get("/daily/export", exportDailyHandler(reports, logger))
			r.Get("/monthly", monthlyReportHandler(reports, logger))
			r.Get("/monthly/export", exportMonthlyHandler(reports, logger))
		})
		r.Get("/dashboard/stats", dashboardStatsHandler(reports, logger))
		r.Get("/dashboard/recent-transactions", recentTransactionsHandler(reports, logger))

		// =============================================
		// Product catalog
		// =============================================
		r.Route("/typesaving", func(r chi.Router) {
			r.Get("/", listTypesHandler(catalog, logger))
			r.Post("/", createTypeHandler(catalog, logger))
			r.Get("/{typeId}", getTypeHandler(catalog, logger))
			r.Put("/{typeId}", updateTypeHandler(catalog, logger))
			r.Delete("/{typeId}", deactivateTypeHandler(catalog, logger))
		})
		r.Get("/regulation", regulationsHandler(catalog, logger))

		// =============================================
		// Metrics snapshot
		// =============================================
		r.Get("/metrics/ledger", ledgerMetricsHandler(metrics))
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "savings-ledger", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(ctx)
			latency := time.Since(start).Milliseconds()
			status := "healthy"
			if err != nil {
				logger.Warn("store ping failed", zap.Error(err))
				status = "unhealthy"
			}
			services = append(services, domain.ServiceHealth{
				Name: "ledger-store", Status: status, LatencyMs: latency, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
		}

		code := http.StatusOK
		if overallStatus != "healthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func ledgerMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetLedgerSnapshot())
	}
}
