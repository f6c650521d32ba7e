package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/infra/cache"
	"github.com/boddenberg/savings-ledger-go/internal/infra/memstore"
	"github.com/boddenberg/savings-ledger-go/internal/infra/observability"
	"github.com/boddenberg/savings-ledger-go/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- Fakes ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const day = 24 * time.Hour

var t0 = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func mustDec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fixture wires the services over one in-memory store with a teller,
// a customer, a no-term product (0.5 %) and a 3-month product (5.5 %).
type fixture struct {
	store   *memstore.Store
	clock   *fakeClock
	metrics *observability.Metrics
	catalog *service.CatalogService
	ledger  *service.LedgerService

	noTerm domain.SavingType
	term   domain.SavingType
}

const (
	tellerID  = "E001"
	citizenID = "012345678901"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	store.AddEmployee(domain.Employee{EmployeeID: tellerID, FullName: "Le Thi Teller"})
	store.AddCustomer(domain.Customer{CustomerID: "C001", FullName: "Nguyen Van An", CitizenID: citizenID})

	clock := newClock(t0)
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	typeCache := cache.New[domain.SavingType](time.Minute)
	t.Cleanup(typeCache.Close)

	catalog := service.NewCatalogService(store, typeCache, metrics, logger)
	ledger := service.NewLedgerService(catalog, store, store, clock, mustDec("0.0015"), metrics, logger)

	ctx := context.Background()
	noTerm, err := catalog.CreateType(ctx, domain.SavingType{
		TypeName: "No term", InterestRatePercent: mustDec("0.5"), MinimumDeposit: dec(100),
	})
	if err != nil {
		t.Fatalf("create no-term type: %v", err)
	}
	term, err := catalog.CreateType(ctx, domain.SavingType{
		TypeName: "3 months", TermMonths: 3, InterestRatePercent: mustDec("5.5"), MinimumDeposit: dec(1000),
	})
	if err != nil {
		t.Fatalf("create term type: %v", err)
	}

	return &fixture{
		store: store, clock: clock, metrics: metrics,
		catalog: catalog, ledger: ledger,
		noTerm: *noTerm, term: *term,
	}
}

func (f *fixture) open(t *testing.T, typeID int64, amount int64) domain.SavingBook {
	t.Helper()
	return f.openWith(t, typeID, dec(amount))
}

func (f *fixture) openWith(t *testing.T, typeID int64, amount decimal.Decimal) domain.SavingBook {
	t.Helper()
	opened, err := f.ledger.OpenSavingBook(context.Background(), domain.OpenBookRequest{
		TypeID: typeID, InitialDeposit: amount, TellerID: tellerID, CitizenID: citizenID,
	})
	if err != nil {
		t.Fatalf("open book: %v", err)
	}
	return opened.Book
}

func (f *fixture) balance(t *testing.T, bookID int64) decimal.Decimal {
	t.Helper()
	b, err := f.store.GetBook(context.Background(), bookID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	return b.CurrentBalance
}

func (f *fixture) txCount(t *testing.T, bookID int64) int {
	t.Helper()
	txs, err := f.store.ListTransactionsByBook(context.Background(), bookID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	return len(txs)
}

func newEmptyCatalog(t *testing.T) *service.CatalogService {
	t.Helper()
	return service.NewCatalogService(memstore.New(), nil, observability.NewMetrics(), zap.NewNop())
}
