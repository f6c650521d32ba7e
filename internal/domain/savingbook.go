package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is an amount in whole currency units (no minor unit).
type Money = decimal.Decimal

// ============================================================
// Saving types (product catalog)
// ============================================================

// SavingType is a savings product definition.
type SavingType struct {
	TypeID              int64     `json:"typeSavingId"`
	TypeName            string    `json:"typeName"`
	TermMonths          int       `json:"term"` // 0 = no term
	InterestRatePercent Money     `json:"interestRate"`
	MinimumDeposit      Money     `json:"minimumDeposit"`
	IsActive            bool      `json:"isActive"`
	CreatedAt           time.Time `json:"createdAt,omitempty"`
}

// IsTerm reports whether the product has a fixed maturity period.
func (t SavingType) IsTerm() bool {
	return t.TermMonths > 0
}

// Rate returns the fractional interest rate (5.5% → 0.055).
func (t SavingType) Rate() Money {
	return t.InterestRatePercent.Div(decimal.NewFromInt(100))
}

// SavingTypePatch carries the editable fields of a saving type.
// Nil fields are left unchanged.
type SavingTypePatch struct {
	TypeName            *string `json:"typeName,omitempty"`
	TermMonths          *int    `json:"term,omitempty"`
	InterestRatePercent *Money  `json:"interestRate,omitempty"`
	MinimumDeposit      *Money  `json:"minimumDeposit,omitempty"`
	IsActive            *bool   `json:"isActive,omitempty"`
}

// ============================================================
// Saving books
// ============================================================

// BookStatus is the lifecycle state of a saving book.
type BookStatus string

const (
	BookOpen  BookStatus = "Open"
	BookClose BookStatus = "Close"
)

// SavingBook is one customer's savings account.
type SavingBook struct {
	BookID         int64      `json:"bookId"`
	CustomerID     string     `json:"customerId"`
	TypeID         int64      `json:"typeSavingId"`
	CurrentBalance Money      `json:"balance"`
	Status         BookStatus `json:"status"`
	RegisterTime   time.Time  `json:"openDate"`
	MaturityDate   *time.Time `json:"maturityDate,omitempty"`
	CloseTime      *time.Time `json:"closeTime,omitempty"`
}

// IsOpen reports whether the book still accepts transactions.
func (b SavingBook) IsOpen() bool {
	return b.Status == BookOpen
}

// AgeDays returns the fractional number of days since the book was opened.
func (b SavingBook) AgeDays(now time.Time) float64 {
	return now.Sub(b.RegisterTime).Hours() / 24
}

// OpenBookRequest is the input of the open-account operation.
type OpenBookRequest struct {
	TypeID         int64  `json:"typeSavingId"`
	InitialDeposit Money  `json:"initialDeposit"`
	TellerID       string `json:"employeeId"`
	CitizenID      string `json:"citizenId"`
}

// OpenedBook is returned after a book is opened.
type OpenedBook struct {
	Book         SavingBook  `json:"savingBook"`
	CitizenID    string      `json:"citizenId"`
	CustomerName string      `json:"customerName"`
	Type         SavingType  `json:"typeSaving"`
	Opening      Transaction `json:"openingTransaction"`
}

// BookDetail is the full read view of a book.
type BookDetail struct {
	Book         SavingBook    `json:"savingBook"`
	CitizenID    string        `json:"citizenId"`
	CustomerName string        `json:"customerName"`
	Type         SavingType    `json:"typeSaving"`
	Transactions []Transaction `json:"transactions"`
}

// BookSearchFilter narrows a book search. At most one criterion is set.
type BookSearchFilter struct {
	BookID       *int64
	CitizenID    string
	CustomerName string
	Offset       int
	Limit        int
}

// BookSearchRow is one search hit joined with customer and type names.
type BookSearchRow struct {
	BookID       int64      `json:"bookId"`
	CitizenID    string     `json:"citizenId"`
	CustomerName string     `json:"customerName"`
	TypeID       int64      `json:"typeSavingId"`
	TypeName     string     `json:"typeName"`
	Balance      Money      `json:"balance"`
	Status       BookStatus `json:"status"`
	OpenDate     time.Time  `json:"openDate"`
	MaturityDate *time.Time `json:"maturityDate,omitempty"`
}

// BookSearchResult is a page of search hits.
type BookSearchResult struct {
	Total int             `json:"total"`
	Data  []BookSearchRow `json:"data"`
}

// ============================================================
// Parties (read-only lookups)
// ============================================================

// Customer is the owner of saving books.
type Customer struct {
	CustomerID string `json:"customerId"`
	FullName   string `json:"fullName"`
	CitizenID  string `json:"citizenId"`
}

// Employee is a teller who performs ledger operations.
type Employee struct {
	EmployeeID string `json:"employeeId"`
	FullName   string `json:"fullName"`
}
