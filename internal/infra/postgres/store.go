package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var pgTracer = otel.Tracer("infra/postgres")

var (
	_ port.TypeCatalog = (*Store)(nil)
	_ port.LedgerStore = (*Store)(nil)
	_ port.Directory   = (*Store)(nil)
	_ port.ReportStore = (*Store)(nil)
)

// Store is the PostgreSQL adapter for every ledger port.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithQueryTimeout bounds each statement. Zero disables the bound.
func WithQueryTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.timeout = d
	}
}

// NewStore wraps an open pool.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	ctx, span := pgTracer.Start(ctx, "Postgres."+name)
	span.SetAttributes(attrs...)
	return ctx, func() { span.End() }
}

type rowScanner interface {
	Scan(dest ...any) error
}

const typeColumns = `typeid, typename, term, interestrate, minimumdeposit, isactive, createdat`

func scanType(row rowScanner) (*domain.SavingType, error) {
	var t domain.SavingType
	if err := row.Scan(&t.TypeID, &t.TypeName, &t.TermMonths, &t.InterestRatePercent, &t.MinimumDeposit, &t.IsActive, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

const bookColumns = `bookid, customerid, typeid, currentbalance, status, registertime, maturitydate, closetime`

func scanBook(row rowScanner) (*domain.SavingBook, error) {
	var (
		b        domain.SavingBook
		status   string
		maturity sql.NullTime
		closed   sql.NullTime
	)
	if err := row.Scan(&b.BookID, &b.CustomerID, &b.TypeID, &b.CurrentBalance, &status, &b.RegisterTime, &maturity, &closed); err != nil {
		return nil, err
	}
	b.Status = domain.BookStatus(status)
	if maturity.Valid {
		t := maturity.Time
		b.MaturityDate = &t
	}
	if closed.Valid {
		t := closed.Time
		b.CloseTime = &t
	}
	return &b, nil
}

const txColumns = `transactionid, bookid, type, amount, balancebefore, balanceafter, transactiondate, tellerid, note, reference`

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx     domain.Transaction
		txType string
		amount decimal.NullDecimal
	)
	if err := row.Scan(&tx.TransactionID, &tx.BookID, &txType, &amount, &tx.BalanceBefore, &tx.BalanceAfter, &tx.TransactionDate, &tx.TellerID, &tx.Note, &tx.Reference); err != nil {
		return nil, err
	}
	tx.Type = domain.TransactionType(txType)
	if amount.Valid {
		tx.Amount = amount.Decimal
	}
	return &tx, nil
}

func notFound(resource string, id int64) error {
	return &domain.ErrNotFound{Resource: resource, ID: strconv.FormatInt(id, 10)}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
