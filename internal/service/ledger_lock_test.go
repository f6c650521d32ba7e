package service_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/infra/memstore"
	"github.com/boddenberg/savings-ledger-go/internal/infra/observability"
	"github.com/boddenberg/savings-ledger-go/internal/port"
	"github.com/boddenberg/savings-ledger-go/internal/service"

	"go.uber.org/zap"
)

// lockWatchStore counts directory and catalog reads made while a book is
// locked. On PostgreSQL such a read needs a second pooled connection.
type lockWatchStore struct {
	*memstore.Store
	held    atomic.Bool
	inLock  atomic.Int32
	lookups atomic.Int32
}

func (s *lockWatchStore) MutateBook(ctx context.Context, bookID int64, fn port.MutateFunc) (*domain.BookMutation, error) {
	return s.Store.MutateBook(ctx, bookID, func(b domain.SavingBook) (*domain.BookMutation, error) {
		s.held.Store(true)
		defer s.held.Store(false)
		return fn(b)
	})
}

func (s *lockWatchStore) observe() {
	s.lookups.Add(1)
	if s.held.Load() {
		s.inLock.Add(1)
	}
}

func (s *lockWatchStore) GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error) {
	s.observe()
	return s.Store.GetEmployee(ctx, employeeID)
}

func (s *lockWatchStore) GetType(ctx context.Context, typeID int64) (*domain.SavingType, error) {
	s.observe()
	return s.Store.GetType(ctx, typeID)
}

func TestLedger_LookupsRunOutsideBookLock(t *testing.T) {
	store := &lockWatchStore{Store: memstore.New()}
	store.AddEmployee(domain.Employee{EmployeeID: tellerID, FullName: "Le Thi Teller"})
	store.AddCustomer(domain.Customer{CustomerID: "C001", FullName: "Nguyen Van An", CitizenID: citizenID})

	clock := newClock(t0)
	metrics := observability.NewMetrics()
	// no cache, so every type read reaches the store
	catalog := service.NewCatalogService(store, nil, metrics, zap.NewNop())
	ledger := service.NewLedgerService(catalog, store, store, clock, mustDec("0.0015"), metrics, zap.NewNop())

	ctx := context.Background()
	typ, err := catalog.CreateType(ctx, domain.SavingType{TypeName: "No term", InterestRatePercent: mustDec("0.5"), MinimumDeposit: dec(100)})
	if err != nil {
		t.Fatal(err)
	}
	opened, err := ledger.OpenSavingBook(ctx, domain.OpenBookRequest{TypeID: typ.TypeID, InitialDeposit: dec(5000), TellerID: tellerID, CitizenID: citizenID})
	if err != nil {
		t.Fatal(err)
	}
	bookID := opened.Book.BookID

	if _, err := ledger.Deposit(ctx, bookID, dec(500), tellerID); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	clock.Advance(30 * day)
	if _, err := ledger.Withdraw(ctx, bookID, dec(1000), tellerID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// rejected inside the lock, still no lookup under it
	if _, err := ledger.Withdraw(ctx, bookID, dec(1000), "E404"); err == nil {
		t.Fatal("expected unknown teller to be rejected")
	}
	if _, err := ledger.CloseSavingBook(ctx, bookID, tellerID); err != nil {
		t.Fatalf("close: %v", err)
	}

	if store.lookups.Load() == 0 {
		t.Fatal("expected teller and type lookups")
	}
	if n := store.inLock.Load(); n != 0 {
		t.Errorf("expected no lookups while the book is locked, got %d", n)
	}
}
