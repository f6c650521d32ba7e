package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// LedgerMetrics is returned by GET /api/metrics/ledger.
type LedgerMetrics struct {
	Deposits         int64   `json:"deposits"`
	Withdrawals      int64   `json:"withdrawals"`
	Openings         int64   `json:"openings"`
	Settlements      int64   `json:"settlements"`
	Rejections       int64   `json:"rejections"`
	Failures         int64   `json:"failures"`
	DepositedAmount  float64 `json:"depositedAmount"`
	WithdrawnAmount  float64 `json:"withdrawnAmount"`
	CatalogCacheRate float64 `json:"catalogCacheHitRate"`
	Period           string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
