// Package service provides the business logic layer (use cases).
// LedgerService owns every balance change: opening a book, deposits,
// withdrawals and the closing settlement.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/infra/observability"
	"github.com/boddenberg/savings-ledger-go/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var ledgerTracer = otel.Tracer("service/ledger")

var errAlreadyClosed = errors.New("book already closed")

// LedgerService applies the savings rules on top of a LedgerStore.
// All rule checks that depend on the book run inside MutateBook so they
// see the locked state.
type LedgerService struct {
	catalog    *CatalogService
	store      port.LedgerStore
	directory  port.Directory
	clock      port.Clock
	demandRate domain.Money
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewLedgerService creates a new ledger service. demandRate is the monthly
// rate paid on surplus months when a term book is closed.
func NewLedgerService(catalog *CatalogService, store port.LedgerStore, directory port.Directory, clock port.Clock, demandRate decimal.Decimal, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &LedgerService{
		catalog:    catalog,
		store:      store,
		directory:  directory,
		clock:      clock,
		demandRate: demandRate,
		metrics:    metrics,
		logger:     logger,
	}
}

// finish records metrics and logs the outcome of a mutation.
func (s *LedgerService) finish(op string, start time.Time, err error, fields ...zap.Field) {
	outcome := outcomeOf(err)
	s.metrics.RecordOperation(op, outcome, time.Since(start))

	switch outcome {
	case observability.OutcomeSuccess:
		s.logger.Info("ledger "+op, fields...)
	case observability.OutcomeRejected:
		s.logger.Warn("ledger "+op+" rejected", append(fields, zap.String("reason", err.Error()))...)
	default:
		s.metrics.IncrStoreError("ledger")
		s.logger.Error("ledger "+op+" failed", append(fields, zap.Error(err))...)
	}
}

func (s *LedgerService) customerOrID(ctx context.Context, customerID string) domain.Customer {
	c, err := s.directory.GetCustomer(ctx, customerID)
	if err != nil {
		s.logger.Warn("customer lookup failed", zap.String("customer_id", customerID), zap.Error(err))
		return domain.Customer{CustomerID: customerID}
	}
	return *c
}

// bookLookups holds the directory and catalog reads a mutation needs.
// They are resolved before the book is locked; the errors are reported
// from inside the mutation so the check order stays the same.
type bookLookups struct {
	teller    *domain.Employee
	tellerErr error
	typ       *domain.SavingType
	typeErr   error
}

// resolve reads the book once without the lock to learn its type, then
// fetches the teller and the type. A book's type never changes.
func (s *LedgerService) resolve(ctx context.Context, bookID int64, tellerID string) (*bookLookups, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	l := &bookLookups{}
	l.teller, l.tellerErr = s.directory.GetEmployee(ctx, tellerID)
	l.typ, l.typeErr = s.catalog.GetType(ctx, book.TypeID)
	return l, nil
}

// ============================================================
// Open
// ============================================================

// OpenSavingBook opens a book with its initial deposit.
func (s *LedgerService) OpenSavingBook(ctx context.Context, req domain.OpenBookRequest) (_ *domain.OpenedBook, err error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.OpenSavingBook")
	defer span.End()
	span.SetAttributes(attribute.Int64("type.id", req.TypeID), attribute.String("teller.id", req.TellerID))

	start := time.Now()
	fields := []zap.Field{
		zap.Int64("type_id", req.TypeID),
		zap.String("teller_id", req.TellerID),
		zap.String("amount", req.InitialDeposit.String()),
	}
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		s.finish("open", start, err, fields...)
	}()

	typ, err := s.catalog.GetType(ctx, req.TypeID)
	if err != nil {
		return nil, err
	}
	if !typ.IsActive {
		return nil, &domain.ErrInvalidState{Message: domain.MsgTypeInactive}
	}
	customer, err := s.directory.FindCustomerByCitizenID(ctx, req.CitizenID)
	if err != nil {
		return nil, err
	}
	teller, err := s.directory.GetEmployee(ctx, req.TellerID)
	if err != nil {
		return nil, err
	}
	if !req.InitialDeposit.IsPositive() {
		return nil, invalidAmount()
	}
	if req.InitialDeposit.LessThan(typ.MinimumDeposit) {
		return nil, belowMinimum(typ.MinimumDeposit)
	}

	now := s.clock.Now()
	book := &domain.SavingBook{
		CustomerID:     customer.CustomerID,
		TypeID:         typ.TypeID,
		CurrentBalance: req.InitialDeposit,
		Status:         domain.BookOpen,
		RegisterTime:   now,
	}
	if typ.IsTerm() {
		maturity := now.AddDate(0, typ.TermMonths, 0)
		book.MaturityDate = &maturity
	}
	opening := &domain.Transaction{
		Type:            domain.TxDeposit,
		Amount:          req.InitialDeposit,
		BalanceBefore:   decimal.Zero,
		BalanceAfter:    req.InitialDeposit,
		TransactionDate: now,
		TellerID:        teller.EmployeeID,
		Note:            "open",
		Reference:       uuid.NewString(),
	}

	created, entry, err := s.store.CreateBook(ctx, book, opening)
	if err != nil {
		return nil, err
	}
	s.metrics.AddAmount(domain.TxDeposit, entry.Amount)
	fields = append(fields, zap.Int64("book_id", created.BookID))

	return &domain.OpenedBook{
		Book:         *created,
		CitizenID:    customer.CitizenID,
		CustomerName: customer.FullName,
		Type:         *typ,
		Opening:      *entry,
	}, nil
}

// ============================================================
// Deposit
// ============================================================

// Deposit adds amount to a no-term book.
func (s *LedgerService) Deposit(ctx context.Context, bookID int64, amount domain.Money, tellerID string) (_ *domain.Receipt, err error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Deposit")
	defer span.End()
	span.SetAttributes(attribute.Int64("book.id", bookID), attribute.String("teller.id", tellerID))

	start := time.Now()
	fields := []zap.Field{
		zap.Int64("book_id", bookID),
		zap.String("teller_id", tellerID),
		zap.String("amount", amount.String()),
	}
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		s.finish("deposit", start, err, fields...)
	}()

	look, err := s.resolve(ctx, bookID, tellerID)
	if err != nil {
		return nil, err
	}
	mut, err := s.store.MutateBook(ctx, bookID, func(book domain.SavingBook) (*domain.BookMutation, error) {
		if !book.IsOpen() {
			return nil, &domain.ErrInvalidState{Message: domain.MsgClosedDeposit}
		}
		if look.typeErr != nil {
			return nil, look.typeErr
		}
		typ := look.typ
		if typ.IsTerm() {
			return nil, &domain.ErrInvalidState{Message: domain.MsgTermDeposit}
		}
		if !amount.IsPositive() {
			return nil, invalidAmount()
		}
		if amount.LessThan(typ.MinimumDeposit) {
			return nil, belowMinimum(typ.MinimumDeposit)
		}
		if look.tellerErr != nil {
			return nil, look.tellerErr
		}

		before := book.CurrentBalance
		book.CurrentBalance = before.Add(amount)
		return &domain.BookMutation{
			Book: book,
			Entry: domain.Transaction{
				Type:            domain.TxDeposit,
				Amount:          amount,
				BalanceBefore:   before,
				BalanceAfter:    book.CurrentBalance,
				TransactionDate: s.clock.Now(),
				TellerID:        tellerID,
				Reference:       uuid.NewString(),
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddAmount(domain.TxDeposit, amount)
	fields = append(fields, zap.String("balance_after", mut.Entry.BalanceAfter.String()))

	return &domain.Receipt{
		Transaction:   mut.Entry,
		BalanceBefore: mut.Entry.BalanceBefore,
		BalanceAfter:  mut.Entry.BalanceAfter,
		Status:        mut.Book.Status,
		Customer:      s.customerOrID(ctx, mut.Book.CustomerID),
		Teller:        *look.teller,
	}, nil
}

// ============================================================
// Withdraw
// ============================================================

// Withdraw takes amount plus the product surcharge from a book. A
// withdrawal that empties the book closes it.
func (s *LedgerService) Withdraw(ctx context.Context, bookID int64, amount domain.Money, tellerID string) (_ *domain.Receipt, err error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Withdraw")
	defer span.End()
	span.SetAttributes(attribute.Int64("book.id", bookID), attribute.String("teller.id", tellerID))

	start := time.Now()
	fields := []zap.Field{
		zap.Int64("book_id", bookID),
		zap.String("teller_id", tellerID),
		zap.String("amount", amount.String()),
	}
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		s.finish("withdraw", start, err, fields...)
	}()

	look, err := s.resolve(ctx, bookID, tellerID)
	if err != nil {
		return nil, err
	}
	mut, err := s.store.MutateBook(ctx, bookID, func(book domain.SavingBook) (*domain.BookMutation, error) {
		if !book.IsOpen() {
			return nil, &domain.ErrInvalidState{Message: domain.MsgClosedWithdraw}
		}
		now := s.clock.Now()
		if err := checkWithdrawWindow(book.AgeDays(now)); err != nil {
			return nil, err
		}
		if !amount.IsPositive() {
			return nil, invalidAmount()
		}
		if look.tellerErr != nil {
			return nil, look.tellerErr
		}
		if look.typeErr != nil {
			return nil, look.typeErr
		}
		typ := look.typ

		before := book.CurrentBalance
		gross, rawAfter := withdrawalDebit(before, amount, typ.Rate())
		if typ.IsTerm() && rawAfter.IsPositive() {
			return nil, &domain.ErrInvalidState{Message: domain.MsgTermFullWithdrawal}
		}
		if before.LessThan(gross) {
			return nil, &domain.ErrInsufficientFunds{Available: before, Required: gross}
		}

		after := decimal.Max(rawAfter, decimal.Zero)
		entry := domain.Transaction{
			Type:            domain.TxWithdraw,
			Amount:          amount,
			BalanceBefore:   before,
			BalanceAfter:    after,
			TransactionDate: now,
			TellerID:        tellerID,
			Reference:       uuid.NewString(),
		}
		book.CurrentBalance = after
		if after.IsZero() {
			book.Status = domain.BookClose
			book.CloseTime = &now
			entry.Note = "settled by withdrawal, principal " + before.String()
		}
		return &domain.BookMutation{Book: book, Entry: entry}, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddAmount(domain.TxWithdraw, mut.Entry.BalanceBefore.Sub(mut.Entry.BalanceAfter))
	fields = append(fields,
		zap.String("balance_after", mut.Entry.BalanceAfter.String()),
		zap.String("status", string(mut.Book.Status)),
	)

	return &domain.Receipt{
		Transaction:   mut.Entry,
		BalanceBefore: mut.Entry.BalanceBefore,
		BalanceAfter:  mut.Entry.BalanceAfter,
		Status:        mut.Book.Status,
		Customer:      s.customerOrID(ctx, mut.Book.CustomerID),
		Teller:        *look.teller,
	}, nil
}

// ============================================================
// Close
// ============================================================

// CloseSavingBook settles a book: the balance plus earned interest is paid
// out and the book is closed. A missing or already closed book is a no-op
// and returns (nil, nil).
func (s *LedgerService) CloseSavingBook(ctx context.Context, bookID int64, tellerID string) (_ *domain.Settlement, err error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CloseSavingBook")
	defer span.End()
	span.SetAttributes(attribute.Int64("book.id", bookID), attribute.String("teller.id", tellerID))

	start := time.Now()
	fields := []zap.Field{
		zap.Int64("book_id", bookID),
		zap.String("teller_id", tellerID),
	}

	var mut *domain.BookMutation
	look, err := s.resolve(ctx, bookID, tellerID)
	if err == nil {
		mut, err = s.store.MutateBook(ctx, bookID, func(book domain.SavingBook) (*domain.BookMutation, error) {
			return s.settle(book, look, tellerID)
		})
	}

	var notFound *domain.ErrNotFound
	if errors.Is(err, errAlreadyClosed) || (errors.As(err, &notFound) && notFound.Resource == "account") {
		s.metrics.RecordOperation("close", observability.OutcomeNoop, time.Since(start))
		s.logger.Info("ledger close skipped", fields...)
		return nil, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.finish("close", start, err, fields...)
		return nil, err
	}

	principal := mut.Entry.BalanceBefore
	interest := mut.Entry.Amount.Sub(principal)
	s.metrics.AddAmount(domain.TxWithdraw, principal)
	s.finish("close", start, nil, append(fields,
		zap.String("principal", principal.String()),
		zap.String("interest", interest.String()),
	)...)

	return &domain.Settlement{
		Transaction: mut.Entry,
		Principal:   principal,
		Interest:    interest,
		FinalAmount: mut.Entry.Amount,
		Status:      mut.Book.Status,
	}, nil
}

// settle builds the closing settlement for the locked book. The ledger row
// carries principal as balanceBefore and principal plus interest as amount.
func (s *LedgerService) settle(book domain.SavingBook, look *bookLookups, tellerID string) (*domain.BookMutation, error) {
	if !book.IsOpen() {
		return nil, errAlreadyClosed
	}
	if look.tellerErr != nil {
		return nil, look.tellerErr
	}
	now := s.clock.Now()
	if age := book.AgeDays(now); age < coolingOffDays {
		return nil, &domain.ErrEligibility{Message: domain.MsgWithin15Days, AgeDays: age}
	}
	if look.typeErr != nil {
		return nil, look.typeErr
	}
	typ := look.typ

	principal := book.CurrentBalance
	interest := settlementInterest(principal, *typ, s.demandRate, monthsBetween(book.RegisterTime, now))
	final := principal.Add(interest)

	book.CurrentBalance = decimal.Zero
	book.Status = domain.BookClose
	book.CloseTime = &now
	return &domain.BookMutation{
		Book: book,
		Entry: domain.Transaction{
			Type:            domain.TxWithdraw,
			Amount:          final,
			BalanceBefore:   principal,
			BalanceAfter:    decimal.Zero,
			TransactionDate: now,
			TellerID:        tellerID,
			Note:            fmt.Sprintf("settlement: principal %s, interest %s", principal, interest),
			Reference:       uuid.NewString(),
		},
	}, nil
}
