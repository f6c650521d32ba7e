package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/infra/observability"
	"github.com/boddenberg/savings-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/savings-ledger-go/internal/port"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var reportTracer = otel.Tracer("service/report")

const (
	dateLayout          = "2006-01-02"
	weeklyLabelLayout   = "02.01"
	clockLayout         = "15:04"
	defaultRecentLimit  = 5
	maxRecentLimit      = 100
	dashboardWindowDays = 7
	allTypesName        = "All"
)

// ReportService builds read-only aggregates over the ledger. Store reads
// go through a circuit breaker; rendering of exports is bounded by a
// bulkhead.
type ReportService struct {
	store    port.ReportStore
	catalog  *CatalogService
	exporter port.ReportExporter
	clock    port.Clock
	breaker  *gobreaker.CircuitBreaker
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewReportService creates a new report service.
func NewReportService(store port.ReportStore, catalog *CatalogService, exporter port.ReportExporter, clock port.Clock, breaker *gobreaker.CircuitBreaker, bulkhead *resilience.Bulkhead, metrics *observability.Metrics, logger *zap.Logger) *ReportService {
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &ReportService{
		store:    store,
		catalog:  catalog,
		exporter: exporter,
		clock:    clock,
		breaker:  breaker,
		bulkhead: bulkhead,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *ReportService) location() *time.Location {
	return s.clock.Now().Location()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ============================================================
// Daily report
// ============================================================

// DailyReport totals one day's deposits and withdrawals per product.
func (s *ReportService) DailyReport(ctx context.Context, date string) (*domain.DailyReport, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.DailyReport")
	defer span.End()
	span.SetAttributes(attribute.String("report.date", date))

	day, err := time.ParseInLocation(dateLayout, date, s.location())
	if err != nil {
		return nil, &domain.ErrValidation{Field: "date", Message: domain.MsgBadDate}
	}

	types, err := s.catalog.ListTypes(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := resilience.Call(s.breaker, func() ([]domain.LedgerRow, error) {
		return s.store.TransactionsBetween(ctx, day, day.AddDate(0, 0, 1))
	})
	if err != nil {
		return nil, err
	}

	return buildDailyReport(date, types, rows), nil
}

func buildDailyReport(date string, types []domain.SavingType, rows []domain.LedgerRow) *domain.DailyReport {
	buckets := make([]domain.DailyTypeTotals, len(types))
	index := make(map[int64]int, len(types))
	for i, t := range types {
		buckets[i] = domain.DailyTypeTotals{
			TypeID:           t.TypeID,
			TypeName:         t.TypeName,
			TotalDeposits:    decimal.Zero,
			TotalWithdrawals: decimal.Zero,
		}
		index[t.TypeID] = i
	}

	for _, r := range rows {
		if r.TypeID == nil {
			continue
		}
		i, ok := index[*r.TypeID]
		if !ok {
			continue
		}
		switch r.Type {
		case domain.TxDeposit:
			buckets[i].TotalDeposits = buckets[i].TotalDeposits.Add(r.AmountOrZero())
		case domain.TxWithdraw:
			buckets[i].TotalWithdrawals = buckets[i].TotalWithdrawals.Add(r.AmountOrZero())
		}
	}

	summary := domain.DailySummary{
		TotalDeposits:    decimal.Zero,
		TotalWithdrawals: decimal.Zero,
		TransactionCount: len(rows),
	}
	for i := range buckets {
		buckets[i].Difference = buckets[i].TotalDeposits.Sub(buckets[i].TotalWithdrawals)
		summary.TotalDeposits = summary.TotalDeposits.Add(buckets[i].TotalDeposits)
		summary.TotalWithdrawals = summary.TotalWithdrawals.Add(buckets[i].TotalWithdrawals)
	}
	summary.Difference = summary.TotalDeposits.Sub(summary.TotalWithdrawals)

	return &domain.DailyReport{Date: date, ByTypeSaving: buckets, Summary: summary}
}

// ============================================================
// Monthly report
// ============================================================

// MonthlyReport counts books opened and closed in a month, for one
// product or for all of them.
func (s *ReportService) MonthlyReport(ctx context.Context, typeID *int64, month, year int) (*domain.MonthlyReport, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.MonthlyReport")
	defer span.End()
	span.SetAttributes(attribute.Int("report.month", month), attribute.Int("report.year", year))

	if month < 1 || month > 12 {
		return nil, &domain.ErrValidation{Field: "month", Message: "month must be between 1 and 12"}
	}
	if year < 1 || year > 9999 {
		return nil, &domain.ErrValidation{Field: "year", Message: "year must be between 1 and 9999"}
	}

	var types []domain.SavingType
	if typeID != nil {
		t, err := s.catalog.GetType(ctx, *typeID)
		if err != nil {
			var nf *domain.ErrNotFound
			if errors.As(err, &nf) {
				return nil, &domain.ErrValidation{Field: "typeSavingId", Message: domain.MsgUnknownType}
			}
			return nil, err
		}
		types = []domain.SavingType{*t}
	} else {
		all, err := s.catalog.ListTypes(ctx)
		if err != nil {
			return nil, err
		}
		types = all
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.location())
	to := from.AddDate(0, 1, 0)

	g, gctx := errgroup.WithContext(ctx)
	var opened, closed []domain.BookEvent
	g.Go(func() error {
		var err error
		opened, err = resilience.Call(s.breaker, func() ([]domain.BookEvent, error) {
			return s.store.BooksOpenedBetween(gctx, typeID, from, to)
		})
		return err
	})
	g.Go(func() error {
		var err error
		closed, err = resilience.Call(s.breaker, func() ([]domain.BookEvent, error) {
			return s.store.BooksClosedBetween(gctx, typeID, from, to)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return buildMonthlyReport(typeID, month, year, from, types, opened, closed), nil
}

func buildMonthlyReport(typeID *int64, month, year int, from time.Time, types []domain.SavingType, opened, closed []domain.BookEvent) *domain.MonthlyReport {
	daysInMonth := from.AddDate(0, 1, -1).Day()
	loc := from.Location()

	report := &domain.MonthlyReport{
		Month:    month,
		Year:     year,
		TypeID:   typeID,
		TypeName: allTypesName,
		ByDay:    make([]domain.MonthlyDay, daysInMonth),
	}
	if typeID != nil && len(types) == 1 {
		report.TypeName = types[0].TypeName
	}
	for i := range report.ByDay {
		report.ByDay[i].Day = i + 1
	}

	byType := map[int64]*domain.MonthlyType{}
	if typeID == nil {
		report.ByType = make([]domain.MonthlyType, len(types))
		for i, t := range types {
			report.ByType[i] = domain.MonthlyType{TypeID: t.TypeID, TypeName: t.TypeName}
			byType[t.TypeID] = &report.ByType[i]
		}
	}

	count := func(events []domain.BookEvent, add func(*domain.BookCounts)) {
		for _, e := range events {
			if e.At == nil {
				continue
			}
			at := e.At.In(loc)
			if at.Year() != year || int(at.Month()) != month {
				continue
			}
			add(&report.ByDay[at.Day()-1].BookCounts)
			add(&report.Summary)
			if bt, ok := byType[e.TypeID]; ok {
				add(&bt.BookCounts)
			}
		}
	}
	count(opened, func(c *domain.BookCounts) { c.NewSavingBooks++ })
	count(closed, func(c *domain.BookCounts) { c.ClosedSavingBooks++ })

	fill := func(c *domain.BookCounts) { c.Difference = c.NewSavingBooks - c.ClosedSavingBooks }
	for i := range report.ByDay {
		fill(&report.ByDay[i].BookCounts)
	}
	for i := range report.ByType {
		fill(&report.ByType[i].BookCounts)
	}
	fill(&report.Summary)
	return report
}

// ============================================================
// Dashboard
// ============================================================

// DashboardStats compares the trailing 7 days with the 7 days before.
func (s *ReportService) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.DashboardStats")
	defer span.End()

	now := s.clock.Now()
	currentFrom := startOfDay(now).AddDate(0, 0, -(dashboardWindowDays - 1))
	currentTo := startOfDay(now).AddDate(0, 0, 1)
	previousFrom := currentFrom.AddDate(0, 0, -dashboardWindowDays)

	var (
		current, previous []domain.LedgerRow
		active            []domain.ActiveBook
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = resilience.Call(s.breaker, func() ([]domain.LedgerRow, error) {
			return s.store.TransactionsBetween(gctx, currentFrom, currentTo)
		})
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = resilience.Call(s.breaker, func() ([]domain.LedgerRow, error) {
			return s.store.TransactionsBetween(gctx, previousFrom, currentFrom)
		})
		return err
	})
	g.Go(func() error {
		var err error
		active, err = resilience.Call(s.breaker, func() ([]domain.ActiveBook, error) {
			return s.store.ActiveBooks(gctx)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("dashboard stats failed", zap.Error(err))
		return nil, err
	}

	return buildDashboard(currentFrom, current, previous, active), nil
}

func sumByType(rows []domain.LedgerRow) (deposits, withdrawals domain.Money) {
	deposits, withdrawals = decimal.Zero, decimal.Zero
	for _, r := range rows {
		switch r.Type {
		case domain.TxDeposit:
			deposits = deposits.Add(r.AmountOrZero())
		case domain.TxWithdraw:
			withdrawals = withdrawals.Add(r.AmountOrZero())
		}
	}
	return deposits, withdrawals
}

func buildDashboard(currentFrom time.Time, current, previous []domain.LedgerRow, active []domain.ActiveBook) *domain.DashboardStats {
	loc := currentFrom.Location()
	curDep, curWd := sumByType(current)
	prevDep, prevWd := sumByType(previous)

	openedInWindow := 0
	shares := map[string]int{}
	for _, b := range active {
		if !b.RegisterTime.Before(currentFrom) {
			openedInWindow++
		}
		shares[b.TypeName]++
	}
	activeNow := len(active)
	activeBefore := activeNow - openedInWindow

	weekly := make([]domain.DayVolume, dashboardWindowDays)
	dayIndex := map[string]int{}
	for i := range weekly {
		d := currentFrom.AddDate(0, 0, i)
		key := d.Format(dateLayout)
		weekly[i] = domain.DayVolume{Date: key, Label: d.Format(weeklyLabelLayout), Deposits: decimal.Zero, Withdrawals: decimal.Zero}
		dayIndex[key] = i
	}
	for _, r := range current {
		i, ok := dayIndex[r.TransactionDate.In(loc).Format(dateLayout)]
		if !ok {
			continue
		}
		switch r.Type {
		case domain.TxDeposit:
			weekly[i].Deposits = weekly[i].Deposits.Add(r.AmountOrZero())
		case domain.TxWithdraw:
			weekly[i].Withdrawals = weekly[i].Withdrawals.Add(r.AmountOrZero())
		}
	}

	distribution := make([]domain.TypeShare, 0, len(shares))
	for name, n := range shares {
		distribution = append(distribution, domain.TypeShare{Name: name, Value: n})
	}
	sort.Slice(distribution, func(i, j int) bool { return distribution[i].Name < distribution[j].Name })

	return &domain.DashboardStats{
		Stats: domain.DashboardTotals{
			ActiveSavingBooks:  activeNow,
			CurrentDeposits:    curDep,
			CurrentWithdrawals: curWd,
			Changes: domain.DashboardChanges{
				ActiveSavingBooks:  growth(decimal.NewFromInt(int64(activeNow)), decimal.NewFromInt(int64(activeBefore))),
				CurrentDeposits:    growth(curDep, prevDep),
				CurrentWithdrawals: growth(curWd, prevWd),
			},
		},
		WeeklyTransactions:      weekly,
		AccountTypeDistribution: distribution,
	}
}

// growth formats the relative change from previous to current as a signed
// percentage with one decimal.
func growth(current, previous domain.Money) string {
	if previous.IsZero() {
		if current.IsPositive() {
			return "+100%"
		}
		return "0%"
	}
	pct := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100))
	sign := ""
	if pct.IsPositive() {
		sign = "+"
	}
	return sign + pct.Round(1).StringFixed(1) + "%"
}

// RecentTransactions returns the newest ledger rows for the activity feed.
func (s *ReportService) RecentTransactions(ctx context.Context, limit int) ([]domain.RecentTransaction, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.RecentTransactions")
	defer span.End()

	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = min(limit, maxRecentLimit)

	rows, err := resilience.Call(s.breaker, func() ([]domain.LedgerRow, error) {
		return s.store.RecentTransactions(ctx, limit)
	})
	if err != nil {
		return nil, err
	}

	loc := s.location()
	out := make([]domain.RecentTransaction, 0, len(rows))
	for _, r := range rows {
		at := r.TransactionDate.In(loc)
		out = append(out, domain.RecentTransaction{
			ID:           r.TransactionID,
			Date:         at.Format(dateLayout),
			Time:         at.Format(clockLayout),
			CustomerName: r.CustomerName,
			Type:         string(r.Type),
			Amount:       r.AmountOrZero(),
			BookID:       r.BookID,
		})
	}
	return out, nil
}

// ============================================================
// Exports
// ============================================================

func checkFormat(format string) error {
	if format != domain.FormatXLSX && format != domain.FormatPDF {
		return &domain.ErrValidation{Field: "format", Message: fmt.Sprintf("unsupported export format %q, expected xlsx or pdf", format)}
	}
	return nil
}

func (s *ReportService) render(ctx context.Context, report, format string, fn func() (*domain.ExportFile, error)) (*domain.ExportFile, error) {
	var out *domain.ExportFile
	err := s.bulkhead.Do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	if err != nil {
		s.logger.Error("report export failed", zap.String("report", report), zap.String("format", format), zap.Error(err))
		return nil, err
	}
	s.metrics.IncrExport(report, format)
	return out, nil
}

// ExportDaily renders the daily report as xlsx or pdf.
func (s *ReportService) ExportDaily(ctx context.Context, date, format string) (*domain.ExportFile, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.ExportDaily")
	defer span.End()

	if err := checkFormat(format); err != nil {
		return nil, err
	}
	report, err := s.DailyReport(ctx, date)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, "daily", format, func() (*domain.ExportFile, error) {
		return s.exporter.Daily(report, format)
	})
}

// ExportMonthly renders the monthly report as xlsx or pdf.
func (s *ReportService) ExportMonthly(ctx context.Context, typeID *int64, month, year int, format string) (*domain.ExportFile, error) {
	ctx, span := reportTracer.Start(ctx, "ReportService.ExportMonthly")
	defer span.End()

	if err := checkFormat(format); err != nil {
		return nil, err
	}
	report, err := s.MonthlyReport(ctx, typeID, month, year)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, "monthly", format, func() (*domain.ExportFile, error) {
		return s.exporter.Monthly(report, format)
	})
}
