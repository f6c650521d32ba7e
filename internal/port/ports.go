// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Clock returns the current time. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// TypeCatalog persists savings product definitions.
//
// When frozen is set, UpdateType must reject the write with
// domain.MsgTypeReferenced if any open book references the type, checked
// atomically with the write so no book can open in between.
type TypeCatalog interface {
	ListTypes(ctx context.Context) ([]domain.SavingType, error)
	GetType(ctx context.Context, typeID int64) (*domain.SavingType, error)
	CreateType(ctx context.Context, t *domain.SavingType) (*domain.SavingType, error)
	UpdateType(ctx context.Context, t *domain.SavingType, frozen bool) (*domain.SavingType, error)
}

// MutateFunc receives a locked snapshot of a book and returns the new
// state plus the ledger row that explains it. Returning an error aborts
// the mutation without writing anything.
type MutateFunc func(book domain.SavingBook) (*domain.BookMutation, error)

// LedgerStore persists saving books and their append-only ledger.
//
// MutateBook is the only path that changes a balance: the implementation
// must hold exclusive access to the book for the duration of fn and
// persist the book update together with the ledger row, or neither.
type LedgerStore interface {
	CreateBook(ctx context.Context, book *domain.SavingBook, opening *domain.Transaction) (*domain.SavingBook, *domain.Transaction, error)
	GetBook(ctx context.Context, bookID int64) (*domain.SavingBook, error)
	ListTransactionsByBook(ctx context.Context, bookID int64) ([]domain.Transaction, error)
	SearchBooks(ctx context.Context, filter domain.BookSearchFilter) (*domain.BookSearchResult, error)
	MutateBook(ctx context.Context, bookID int64, fn MutateFunc) (*domain.BookMutation, error)
	Ping(ctx context.Context) error
}

// Directory resolves customers and tellers. Their lifecycle is owned elsewhere.
type Directory interface {
	GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error)
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	FindCustomerByCitizenID(ctx context.Context, citizenID string) (*domain.Customer, error)
}

// ReportStore serves the read-only queries behind reports and the dashboard.
// Time ranges are half-open: [from, to).
type ReportStore interface {
	TransactionsBetween(ctx context.Context, from, to time.Time) ([]domain.LedgerRow, error)
	BooksOpenedBetween(ctx context.Context, typeID *int64, from, to time.Time) ([]domain.BookEvent, error)
	BooksClosedBetween(ctx context.Context, typeID *int64, from, to time.Time) ([]domain.BookEvent, error)
	ActiveBooks(ctx context.Context) ([]domain.ActiveBook, error)
	RecentTransactions(ctx context.Context, limit int) ([]domain.LedgerRow, error)
}

// ReportExporter renders finished reports into downloadable documents.
type ReportExporter interface {
	Daily(r *domain.DailyReport, format string) (*domain.ExportFile, error)
	Monthly(r *domain.MonthlyReport, format string) (*domain.ExportFile, error)
}
