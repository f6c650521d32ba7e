package domain

import "time"

// ============================================================
// Report inputs (rows read by the reporting store)
// ============================================================

// LedgerRow is a transaction as seen by reports. TypeID is nil when the
// book or its product could not be resolved; Amount is nil for legacy rows.
type LedgerRow struct {
	TransactionID   int64           `json:"id"`
	BookID          int64           `json:"bookId"`
	TypeID          *int64          `json:"typeSavingId,omitempty"`
	Type            TransactionType `json:"type"`
	Amount          *Money          `json:"amount"`
	TransactionDate time.Time       `json:"transactionDate"`
	CustomerName    string          `json:"customerName,omitempty"`
}

// AmountOrZero returns the amount, treating a missing value as zero.
func (r LedgerRow) AmountOrZero() Money {
	if r.Amount == nil {
		return Money{}
	}
	return *r.Amount
}

// BookEvent is a book opening or closing used by the monthly report.
type BookEvent struct {
	BookID int64      `json:"bookId"`
	TypeID int64      `json:"typeSavingId"`
	At     *time.Time `json:"at"`
}

// ActiveBook is an open book with its product name, used by the dashboard.
type ActiveBook struct {
	BookID       int64     `json:"bookId"`
	TypeID       int64     `json:"typeSavingId"`
	TypeName     string    `json:"typeName"`
	RegisterTime time.Time `json:"registerTime"`
}

// ============================================================
// Daily report
// ============================================================

// DailyTypeTotals are the totals of one product for one day.
type DailyTypeTotals struct {
	TypeID           int64  `json:"typeSavingId"`
	TypeName         string `json:"typeName"`
	TotalDeposits    Money  `json:"totalDeposits"`
	TotalWithdrawals Money  `json:"totalWithdrawals"`
	Difference       Money  `json:"difference"`
}

// DailySummary is the grand total of a daily report.
type DailySummary struct {
	TotalDeposits    Money `json:"totalDeposits"`
	TotalWithdrawals Money `json:"totalWithdrawals"`
	Difference       Money `json:"difference"`
	TransactionCount int   `json:"transactionCount"`
}

// DailyReport groups one day's transactions by product.
type DailyReport struct {
	Date         string            `json:"date"`
	ByTypeSaving []DailyTypeTotals `json:"byTypeSaving"`
	Summary      DailySummary      `json:"summary"`
}

// ============================================================
// Monthly report
// ============================================================

// BookCounts counts opened and closed books.
type BookCounts struct {
	NewSavingBooks    int `json:"newSavingBooks"`
	ClosedSavingBooks int `json:"closedSavingBooks"`
	Difference        int `json:"difference"`
}

// MonthlyDay is one day bucket of a monthly report.
type MonthlyDay struct {
	Day int `json:"day"`
	BookCounts
}

// MonthlyType is one product bucket of a monthly report.
type MonthlyType struct {
	TypeID   int64  `json:"typeSavingId"`
	TypeName string `json:"typeName"`
	BookCounts
}

// MonthlyReport counts books opened and closed in a month.
type MonthlyReport struct {
	Month    int           `json:"month"`
	Year     int           `json:"year"`
	TypeID   *int64        `json:"typeSavingId"`
	TypeName string        `json:"typeName"`
	ByDay    []MonthlyDay  `json:"byDay"`
	ByType   []MonthlyType `json:"byType,omitempty"`
	Summary  BookCounts    `json:"summary"`
}

// ============================================================
// Dashboard
// ============================================================

// DashboardChanges are week-over-week growth strings.
type DashboardChanges struct {
	ActiveSavingBooks  string `json:"activeSavingBooks"`
	CurrentDeposits    string `json:"currentDeposits"`
	CurrentWithdrawals string `json:"currentWithdrawals"`
}

// DashboardTotals are the current-window figures.
type DashboardTotals struct {
	ActiveSavingBooks  int              `json:"activeSavingBooks"`
	CurrentDeposits    Money            `json:"currentDeposits"`
	CurrentWithdrawals Money            `json:"currentWithdrawals"`
	Changes            DashboardChanges `json:"changes"`
}

// DayVolume is one day of the weekly series.
type DayVolume struct {
	Date        string `json:"date"`
	Label       string `json:"name"`
	Deposits    Money  `json:"deposits"`
	Withdrawals Money  `json:"withdrawals"`
}

// TypeShare is the number of active books of one product.
type TypeShare struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// DashboardStats is the dashboard payload.
type DashboardStats struct {
	Stats                   DashboardTotals `json:"stats"`
	WeeklyTransactions      []DayVolume     `json:"weeklyTransactions"`
	AccountTypeDistribution []TypeShare     `json:"accountTypeDistribution"`
}

// RecentTransaction is a row of the dashboard activity feed.
type RecentTransaction struct {
	ID           int64  `json:"id"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	CustomerName string `json:"customerName"`
	Type         string `json:"type"`
	Amount       Money  `json:"amount"`
	BookID       int64  `json:"bookId"`
}

// Regulations summarises the rules the engine enforces.
type Regulations struct {
	MinimumDeposit     Money `json:"minimumDeposit"`
	CoolingOffDays     int   `json:"minimumWithdrawDays"`
	InterestWindowDays int   `json:"minimumInterestDays"`
	ActiveSavingTypes  int   `json:"activeSavingTypes"`
}

// ============================================================
// Exports
// ============================================================

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ExportFile is a rendered report ready for download.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}
