package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/infra/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, postgres.Options{DSN: dsn, MaxOpenConns: 8, ConnectRetries: 1, ConnectBackoff: 100 * time.Millisecond}, zap.NewNop())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// seed inserts a customer, a teller, a type and an open book, returning the book.
func seed(t *testing.T, db *sql.DB, store *postgres.Store, balance int64) *domain.SavingBook {
	t.Helper()
	ctx := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())

	if _, err := db.ExecContext(ctx, `INSERT INTO customer (customerid, fullname, citizenid) VALUES ($1, $2, $3)`,
		"it-c-"+suffix, "Integration Customer", "0"+suffix); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO employee (employeeid, fullname) VALUES ($1, $2)`,
		"it-e-"+suffix, "Integration Teller"); err != nil {
		t.Fatalf("seed employee: %v", err)
	}

	typ, err := store.CreateType(ctx, &domain.SavingType{
		TypeName:            "it-no-term-" + suffix,
		InterestRatePercent: decimal.NewFromFloat(0.15),
		MinimumDeposit:      decimal.NewFromInt(100000),
		IsActive:            true,
	})
	if err != nil {
		t.Fatalf("create type: %v", err)
	}

	amount := decimal.NewFromInt(balance)
	now := time.Now().UTC().Truncate(time.Microsecond)
	book, opening, err := store.CreateBook(ctx,
		&domain.SavingBook{CustomerID: "it-c-" + suffix, TypeID: typ.TypeID, CurrentBalance: amount, Status: domain.BookOpen, RegisterTime: now},
		&domain.Transaction{Type: domain.TxDeposit, Amount: amount, BalanceAfter: amount, TransactionDate: now, TellerID: "it-e-" + suffix, Note: "open"},
	)
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if opening.TransactionID == 0 || opening.BookID != book.BookID {
		t.Fatalf("opening row not linked: %+v", opening)
	}
	return book
}

func debit(amount int64, teller string) func(domain.SavingBook) (*domain.BookMutation, error) {
	return func(b domain.SavingBook) (*domain.BookMutation, error) {
		d := decimal.NewFromInt(amount)
		if b.CurrentBalance.LessThan(d) {
			return nil, &domain.ErrInsufficientFunds{Available: b.CurrentBalance, Required: d}
		}
		before := b.CurrentBalance
		b.CurrentBalance = b.CurrentBalance.Sub(d)
		return &domain.BookMutation{Book: b, Entry: domain.Transaction{
			Type: domain.TxWithdraw, Amount: d, BalanceBefore: before, BalanceAfter: b.CurrentBalance,
			TransactionDate: time.Now().UTC(), TellerID: teller,
		}}, nil
	}
}

func TestMutateBook_Postgres(t *testing.T) {
	db := openTestDB(t)
	store := postgres.NewStore(db, postgres.WithQueryTimeout(5*time.Second))
	ctx := context.Background()
	book := seed(t, db, store, 1000)

	txs, err := store.ListTransactionsByBook(ctx, book.BookID)
	if err != nil || len(txs) != 1 {
		t.Fatalf("expected opening row, got %d (%v)", len(txs), err)
	}
	teller := txs[0].TellerID

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.MutateBook(ctx, book.BookID, debit(400, teller)); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 2 {
		t.Errorf("expected 2 successful debits, got %d", ok)
	}
	got, err := store.GetBook(ctx, book.BookID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if !got.CurrentBalance.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected balance 200, got %s", got.CurrentBalance)
	}
}

func TestMutateBook_Postgres_ConstraintIsConsistencyError(t *testing.T) {
	db := openTestDB(t)
	store := postgres.NewStore(db)
	ctx := context.Background()
	book := seed(t, db, store, 100)

	_, err := store.MutateBook(ctx, book.BookID, func(b domain.SavingBook) (*domain.BookMutation, error) {
		b.Status = domain.BookClose // balance still 100: violates savingbook_closed_check
		return &domain.BookMutation{Book: b, Entry: domain.Transaction{Type: domain.TxWithdraw, TellerID: "missing"}}, nil
	})

	var ce *domain.ErrConsistency
	if !errors.As(err, &ce) {
		t.Fatalf("expected consistency error, got %v", err)
	}

	got, _ := store.GetBook(ctx, book.BookID)
	if got.Status != domain.BookOpen {
		t.Errorf("expected rollback, book is %s", got.Status)
	}
}

func TestMutateBook_Postgres_MissingBook(t *testing.T) {
	db := openTestDB(t)
	store := postgres.NewStore(db)

	_, err := store.MutateBook(context.Background(), -1, debit(1, "x"))
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMutateBook_Postgres_LockWaitIsBounded(t *testing.T) {
	db := openTestDB(t)
	store := postgres.NewStore(db, postgres.WithQueryTimeout(300*time.Millisecond))
	ctx := context.Background()
	book := seed(t, db, store, 1000)

	// the holder keeps the row lock past the waiter's timeout
	slow := postgres.NewStore(db, postgres.WithQueryTimeout(5*time.Second))
	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := slow.MutateBook(ctx, book.BookID, func(b domain.SavingBook) (*domain.BookMutation, error) {
			close(locked)
			<-release
			return nil, errors.New("abort")
		})
		done <- err
	}()
	<-locked

	start := time.Now()
	_, err := store.MutateBook(ctx, book.BookID, debit(1, "x"))
	elapsed := time.Since(start)
	close(release)
	<-done

	var ce *domain.ErrConsistency
	if !errors.As(err, &ce) {
		t.Fatalf("expected the lock wait to fail, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("lock wait took %s", elapsed)
	}
}

func TestUpdateType_Postgres_FrozenWhileBookOpen(t *testing.T) {
	db := openTestDB(t)
	store := postgres.NewStore(db, postgres.WithQueryTimeout(5*time.Second))
	ctx := context.Background()
	book := seed(t, db, store, 1000)

	typ, err := store.GetType(ctx, book.TypeID)
	if err != nil {
		t.Fatal(err)
	}
	next := *typ
	next.InterestRatePercent = decimal.NewFromInt(4)

	_, err = store.UpdateType(ctx, &next, true)
	var invalid *domain.ErrInvalidState
	if !errors.As(err, &invalid) || invalid.Message != domain.MsgTypeReferenced {
		t.Fatalf("expected referenced type rejection, got %v", err)
	}
	got, _ := store.GetType(ctx, typ.TypeID)
	if !got.InterestRatePercent.Equal(typ.InterestRatePercent) {
		t.Errorf("rate must be unchanged, got %s", got.InterestRatePercent)
	}

	next.InterestRatePercent = typ.InterestRatePercent
	next.MinimumDeposit = decimal.NewFromInt(200000)
	updated, err := store.UpdateType(ctx, &next, false)
	if err != nil {
		t.Fatalf("unfrozen update: %v", err)
	}
	if !updated.MinimumDeposit.Equal(decimal.NewFromInt(200000)) {
		t.Errorf("expected new minimum, got %s", updated.MinimumDeposit)
	}
}

func TestReportQueries_Postgres(t *testing.T) {
	db := openTestDB(t)
	store := postgres.NewStore(db)
	ctx := context.Background()
	book := seed(t, db, store, 500)

	from := book.RegisterTime.Add(-time.Minute)
	to := book.RegisterTime.Add(time.Minute)

	rows, err := store.TransactionsBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("transactions between: %v", err)
	}
	found := false
	for _, r := range rows {
		if r.BookID == book.BookID {
			found = true
			if r.TypeID == nil || *r.TypeID != book.TypeID {
				t.Errorf("expected type id %d, got %v", book.TypeID, r.TypeID)
			}
		}
	}
	if !found {
		t.Error("opening row missing from TransactionsBetween")
	}

	typeID := book.TypeID
	opened, err := store.BooksOpenedBetween(ctx, &typeID, from, to)
	if err != nil || len(opened) != 1 {
		t.Errorf("expected 1 opened book, got %d (%v)", len(opened), err)
	}
	closed, err := store.BooksClosedBetween(ctx, &typeID, from, to)
	if err != nil || len(closed) != 0 {
		t.Errorf("expected no closed books, got %d (%v)", len(closed), err)
	}
}
