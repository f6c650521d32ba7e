package handler

import (
	"net/http"

	"github.com/boddenberg/savings-ledger-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Report & Dashboard Handlers
// ============================================================

type monthlyQuery struct {
	typeID *int64
	month  int
	year   int
}

func parseMonthlyQuery(r *http.Request) (monthlyQuery, error) {
	var q monthlyQuery
	if raw := r.URL.Query().Get("typeSavingId"); raw != "" {
		id, err := parseID(raw, "typeSavingId")
		if err != nil {
			return q, err
		}
		q.typeID = &id
	}
	var err error
	if q.month, err = queryInt(r, "month", 0); err != nil {
		return q, err
	}
	if q.year, err = queryInt(r, "year", 0); err != nil {
		return q, err
	}
	return q, nil
}

func dailyReportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/report/daily")
		defer span.End()

		report, err := svc.DailyReport(ctx, r.URL.Query().Get("date"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func monthlyReportHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/report/monthly")
		defer span.End()

		q, err := parseMonthlyQuery(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		report, err := svc.MonthlyReport(ctx, q.typeID, q.month, q.year)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func exportDailyHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/report/daily/export")
		defer span.End()

		file, err := svc.ExportDaily(ctx, r.URL.Query().Get("date"), r.URL.Query().Get("format"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeFile(w, file)
	}
}

func exportMonthlyHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/report/monthly/export")
		defer span.End()

		q, err := parseMonthlyQuery(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		file, err := svc.ExportMonthly(ctx, q.typeID, q.month, q.year, r.URL.Query().Get("format"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeFile(w, file)
	}
}

func dashboardStatsHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/dashboard/stats")
		defer span.End()

		stats, err := svc.DashboardStats(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func recentTransactionsHandler(svc *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/dashboard/recent-transactions")
		defer span.End()

		limit, err := queryInt(r, "limit", 0)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		rows, err := svc.RecentTransactions(ctx, limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}
