package observability

import (
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Outcome labels for ledger_operations_total.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeNoop     = "noop"
)

// Metrics holds all Prometheus metrics for the ledger service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	amountTotal       *prometheus.CounterVec
	storeErrors       *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	exportsTotal      *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Ledger operations by outcome.",
			},
			[]string{"operation", "outcome"},
		),
		amountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_amount_total",
				Help: "Sum of booked amounts by transaction type.",
			},
			[]string{"type"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_store_errors_total",
				Help: "Total errors returned by the persistence layer.",
			},
			[]string{"store"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		exportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_report_exports_total",
				Help: "Report exports by format.",
			},
			[]string{"report", "format"},
		),
	}
}

// RecordOperation records the duration and outcome of a ledger operation.
func (m *Metrics) RecordOperation(operation, outcome string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
}

// AddAmount adds a booked amount to the per-type total.
func (m *Metrics) AddAmount(txType domain.TransactionType, amount domain.Money) {
	m.amountTotal.WithLabelValues(string(txType)).Add(amount.Abs().InexactFloat64())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(store string) {
	m.storeErrors.WithLabelValues(store).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrExport increments the export counter.
func (m *Metrics) IncrExport(report, format string) {
	m.exportsTotal.WithLabelValues(report, format).Inc()
}

// GetLedgerSnapshot returns a snapshot of the ledger counters suitable for
// the GET /api/metrics/ledger endpoint.
func (m *Metrics) GetLedgerSnapshot() *domain.LedgerMetrics {
	rejections := float64(0)
	failures := float64(0)
	for _, op := range []string{"open", "deposit", "withdraw", "close"} {
		rejections += getCounterValue(m.operationsTotal, op, OutcomeRejected)
		failures += getCounterValue(m.operationsTotal, op, OutcomeFailed)
	}

	hits := getCounterValue(m.cacheHits, "saving_type")
	misses := getCounterValue(m.cacheMisses, "saving_type")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.LedgerMetrics{
		Deposits:         int64(getCounterValue(m.operationsTotal, "deposit", OutcomeSuccess)),
		Withdrawals:      int64(getCounterValue(m.operationsTotal, "withdraw", OutcomeSuccess)),
		Openings:         int64(getCounterValue(m.operationsTotal, "open", OutcomeSuccess)),
		Settlements:      int64(getCounterValue(m.operationsTotal, "close", OutcomeSuccess)),
		Rejections:       int64(rejections),
		Failures:         int64(failures),
		DepositedAmount:  getCounterValue(m.amountTotal, string(domain.TxDeposit)),
		WithdrawnAmount:  getCounterValue(m.amountTotal, string(domain.TxWithdraw)),
		CatalogCacheRate: hitRate,
		Period:           "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
