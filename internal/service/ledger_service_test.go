package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
)

func assertInvalidState(t *testing.T, err error, msg string) {
	t.Helper()
	var e *domain.ErrInvalidState
	if !errors.As(err, &e) || e.Message != msg {
		t.Fatalf("expected invalid state %q, got %v", msg, err)
	}
}

func assertEligibility(t *testing.T, err error, msg string) {
	t.Helper()
	var e *domain.ErrEligibility
	if !errors.As(err, &e) || e.Message != msg {
		t.Fatalf("expected eligibility %q, got %v", msg, err)
	}
}

func assertNotFound(t *testing.T, err error, resource string) {
	t.Helper()
	var e *domain.ErrNotFound
	if !errors.As(err, &e) || e.Resource != resource {
		t.Fatalf("expected %s not found, got %v", resource, err)
	}
}

func assertValidation(t *testing.T, err error, msg string) {
	t.Helper()
	var e *domain.ErrValidation
	if !errors.As(err, &e) || e.Message != msg {
		t.Fatalf("expected validation %q, got %v", msg, err)
	}
}

// ============================================================
// Open
// ============================================================

func TestOpenSavingBook_NoTerm(t *testing.T) {
	f := newFixture(t)

	opened, err := f.ledger.OpenSavingBook(context.Background(), domain.OpenBookRequest{
		TypeID: f.noTerm.TypeID, InitialDeposit: dec(500), TellerID: tellerID, CitizenID: citizenID,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if opened.Book.Status != domain.BookOpen {
		t.Errorf("expected Open, got %s", opened.Book.Status)
	}
	if !opened.Book.CurrentBalance.Equal(dec(500)) {
		t.Errorf("expected balance 500, got %s", opened.Book.CurrentBalance)
	}
	if opened.Book.MaturityDate != nil {
		t.Error("no-term book must not have a maturity date")
	}
	if opened.CustomerName != "Nguyen Van An" || opened.Type.TypeName != "No term" {
		t.Errorf("unexpected echo: %+v", opened)
	}
	if opened.Opening.Type != domain.TxDeposit || !opened.Opening.BalanceBefore.IsZero() ||
		!opened.Opening.BalanceAfter.Equal(dec(500)) || opened.Opening.Note != "open" {
		t.Errorf("unexpected opening row: %+v", opened.Opening)
	}
	if opened.Opening.Reference == "" {
		t.Error("expected a reference on the opening row")
	}
	if n := f.txCount(t, opened.Book.BookID); n != 1 {
		t.Errorf("expected 1 ledger row, got %d", n)
	}
}

func TestOpenSavingBook_TermHasMaturity(t *testing.T) {
	f := newFixture(t)

	book := f.open(t, f.term.TypeID, 5000)
	if book.MaturityDate == nil {
		t.Fatal("expected maturity date")
	}
	if want := t0.AddDate(0, 3, 0); !book.MaturityDate.Equal(want) {
		t.Errorf("expected maturity %s, got %s", want, book.MaturityDate)
	}
}

func TestOpenSavingBook_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inactive, err := f.catalog.CreateType(ctx, domain.SavingType{TypeName: "Retired", InterestRatePercent: dec(1)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.catalog.DeactivateType(ctx, inactive.TypeID); err != nil {
		t.Fatal(err)
	}

	req := func(typeID, amount int64, teller, citizen string) domain.OpenBookRequest {
		return domain.OpenBookRequest{TypeID: typeID, InitialDeposit: dec(amount), TellerID: teller, CitizenID: citizen}
	}

	_, err = f.ledger.OpenSavingBook(ctx, req(999, 500, tellerID, citizenID))
	assertNotFound(t, err, "saving type")

	_, err = f.ledger.OpenSavingBook(ctx, req(inactive.TypeID, 500, tellerID, citizenID))
	assertInvalidState(t, err, domain.MsgTypeInactive)

	_, err = f.ledger.OpenSavingBook(ctx, req(f.noTerm.TypeID, 500, tellerID, "099999999999"))
	assertNotFound(t, err, "customer")

	_, err = f.ledger.OpenSavingBook(ctx, req(f.noTerm.TypeID, 500, "E404", citizenID))
	assertNotFound(t, err, "teller")

	_, err = f.ledger.OpenSavingBook(ctx, req(f.noTerm.TypeID, 0, tellerID, citizenID))
	assertValidation(t, err, domain.MsgInvalidAmount)

	_, err = f.ledger.OpenSavingBook(ctx, req(f.noTerm.TypeID, 99, tellerID, citizenID))
	assertValidation(t, err, "deposit amount must be at least 100")

	if snap := f.metrics.GetLedgerSnapshot(); snap.Rejections != 6 || snap.Openings != 0 {
		t.Errorf("expected 6 rejections and no openings, got %+v", snap)
	}
}

// ============================================================
// Deposit
// ============================================================

func TestDeposit_Success(t *testing.T) {
	f := newFixture(t)
	book := f.open(t, f.noTerm.TypeID, 500)

	r, err := f.ledger.Deposit(context.Background(), book.BookID, dec(250), tellerID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !r.BalanceBefore.Equal(dec(500)) || !r.BalanceAfter.Equal(dec(750)) {
		t.Errorf("expected 500 -> 750, got %s -> %s", r.BalanceBefore, r.BalanceAfter)
	}
	if r.Teller.FullName != "Le Thi Teller" || r.Customer.FullName != "Nguyen Van An" {
		t.Errorf("unexpected receipt parties: %+v / %+v", r.Teller, r.Customer)
	}
	if got := f.balance(t, book.BookID); !got.Equal(dec(750)) {
		t.Errorf("expected stored balance 750, got %s", got)
	}
}

func TestDeposit_CheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	noTerm := f.open(t, f.noTerm.TypeID, 500)
	term := f.open(t, f.term.TypeID, 5000)

	_, err := f.ledger.Deposit(ctx, 999, dec(500), tellerID)
	assertNotFound(t, err, "account")

	// term check comes before amount checks
	_, err = f.ledger.Deposit(ctx, term.BookID, dec(0), tellerID)
	assertInvalidState(t, err, domain.MsgTermDeposit)

	// amount checks come before the teller lookup
	_, err = f.ledger.Deposit(ctx, noTerm.BookID, dec(-5), "E404")
	assertValidation(t, err, domain.MsgInvalidAmount)

	_, err = f.ledger.Deposit(ctx, noTerm.BookID, dec(50), "E404")
	assertValidation(t, err, "deposit amount must be at least 100")

	_, err = f.ledger.Deposit(ctx, noTerm.BookID, dec(100), "E404")
	assertNotFound(t, err, "teller")

	if got := f.balance(t, noTerm.BookID); !got.Equal(dec(500)) {
		t.Errorf("rejected deposits must not change the balance, got %s", got)
	}
	if n := f.txCount(t, noTerm.BookID); n != 1 {
		t.Errorf("rejected deposits must not write rows, got %d", n)
	}
}

func TestDeposit_ClosedBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.noTerm.TypeID, 500)

	f.clock.Advance(20 * day)
	if _, err := f.ledger.CloseSavingBook(ctx, book.BookID, tellerID); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err := f.ledger.Deposit(ctx, book.BookID, dec(0), "E404")
	assertInvalidState(t, err, domain.MsgClosedDeposit)
}

func TestDeposit_WriteFailureIsConsistencyError(t *testing.T) {
	f := newFixture(t)
	book := f.open(t, f.noTerm.TypeID, 500)

	f.store.FailNextWrite(errors.New("connection reset"))
	_, err := f.ledger.Deposit(context.Background(), book.BookID, dec(200), tellerID)

	var ce *domain.ErrConsistency
	if !errors.As(err, &ce) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if got := f.balance(t, book.BookID); !got.Equal(dec(500)) {
		t.Errorf("balance must be unchanged, got %s", got)
	}
	if n := f.txCount(t, book.BookID); n != 1 {
		t.Errorf("no row may be written, got %d", n)
	}
	if snap := f.metrics.GetLedgerSnapshot(); snap.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", snap.Failures)
	}
}

// ============================================================
// Withdraw
// ============================================================

func TestWithdraw_Windows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.noTerm.TypeID, 10000)

	f.clock.Advance(14 * day)
	_, err := f.ledger.Withdraw(ctx, book.BookID, dec(1000), tellerID)
	assertEligibility(t, err, domain.MsgWithin15Days)

	f.clock.Advance(day) // exactly 15.0 days
	_, err = f.ledger.Withdraw(ctx, book.BookID, dec(1000), tellerID)
	assertEligibility(t, err, domain.MsgBeforeOneMonth)

	f.clock.Advance(15*day - time.Second)
	_, err = f.ledger.Withdraw(ctx, book.BookID, dec(1000), tellerID)
	assertEligibility(t, err, domain.MsgBeforeOneMonth)

	f.clock.Advance(time.Second) // exactly 30.0 days
	r, err := f.ledger.Withdraw(ctx, book.BookID, dec(1000), tellerID)
	if err != nil {
		t.Fatalf("expected withdrawal at 30 days, got %v", err)
	}
	if !r.BalanceAfter.Equal(dec(8995)) {
		t.Errorf("expected 10000 - 1000*1.005 = 8995, got %s", r.BalanceAfter)
	}
	if r.Status != domain.BookOpen {
		t.Errorf("expected book to stay open, got %s", r.Status)
	}
}

func TestWithdraw_CheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.noTerm.TypeID, 10000)

	_, err := f.ledger.Withdraw(ctx, 999, dec(100), tellerID)
	assertNotFound(t, err, "account")

	// window check comes before amount and teller
	_, err = f.ledger.Withdraw(ctx, book.BookID, dec(0), "E404")
	assertEligibility(t, err, domain.MsgWithin15Days)

	f.clock.Advance(31 * day)
	_, err = f.ledger.Withdraw(ctx, book.BookID, dec(0), "E404")
	assertValidation(t, err, domain.MsgInvalidAmount)

	_, err = f.ledger.Withdraw(ctx, book.BookID, dec(100), "E404")
	assertNotFound(t, err, "teller")

	_, err = f.ledger.Withdraw(ctx, book.BookID, dec(10000), tellerID)
	var insufficient *domain.ErrInsufficientFunds
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if !insufficient.Required.Equal(dec(10050)) {
		t.Errorf("expected required 10050, got %s", insufficient.Required)
	}
	if n := f.txCount(t, book.BookID); n != 1 {
		t.Errorf("rejected withdrawals must not write rows, got %d", n)
	}
}

func TestWithdraw_EmptyingClosesBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.noTerm.TypeID, 1005)
	f.clock.Advance(30 * day)

	r, err := f.ledger.Withdraw(ctx, book.BookID, dec(1000), tellerID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if r.Status != domain.BookClose || !r.BalanceAfter.IsZero() {
		t.Errorf("expected closed book with zero balance, got %s %s", r.Status, r.BalanceAfter)
	}
	if r.Transaction.Note != "settled by withdrawal, principal 1005" {
		t.Errorf("unexpected note %q", r.Transaction.Note)
	}

	stored, _ := f.store.GetBook(ctx, book.BookID)
	if stored.CloseTime == nil || !stored.CloseTime.Equal(f.clock.Now()) {
		t.Errorf("expected close time to be set, got %v", stored.CloseTime)
	}

	_, err = f.ledger.Withdraw(ctx, book.BookID, dec(1), tellerID)
	assertInvalidState(t, err, domain.MsgClosedWithdraw)
}

func TestWithdraw_TermMustBeFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.term.TypeID, 10000)
	f.clock.Advance(45 * day)

	_, err := f.ledger.Withdraw(ctx, book.BookID, dec(1000), tellerID)
	assertInvalidState(t, err, domain.MsgTermFullWithdrawal)

	// 9479 * 1.055 = 10000.345 exceeds the balance even though it rounds to it
	_, err = f.ledger.Withdraw(ctx, book.BookID, dec(9479), tellerID)
	var insufficient *domain.ErrInsufficientFunds
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	// 9478.67 * 1.055 = 9999.99685, leaving 0.00315 which rounds to 0
	r, err := f.ledger.Withdraw(ctx, book.BookID, mustDec("9478.67"), tellerID)
	if err != nil {
		t.Fatalf("expected full withdrawal, got %v", err)
	}
	if r.Status != domain.BookClose || !r.BalanceAfter.IsZero() {
		t.Errorf("expected closed book, got %s %s", r.Status, r.BalanceAfter)
	}
}

func TestWithdraw_GrossAboveBalanceIsInsufficient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.noTerm.TypeID, 1000)
	f.clock.Advance(30 * day)

	// 995.5 * 1.005 = 1000.4775
	_, err := f.ledger.Withdraw(ctx, book.BookID, mustDec("995.5"), tellerID)
	var insufficient *domain.ErrInsufficientFunds
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if !insufficient.Required.Equal(mustDec("1000.4775")) {
		t.Errorf("expected required 1000.4775, got %s", insufficient.Required)
	}

	stored, _ := f.store.GetBook(ctx, book.BookID)
	if stored.Status != domain.BookOpen || !stored.CurrentBalance.Equal(dec(1000)) {
		t.Errorf("book must stay open at 1000, got %s %s", stored.Status, stored.CurrentBalance)
	}
	if n := f.txCount(t, book.BookID); n != 1 {
		t.Errorf("rejected withdrawal must not write rows, got %d", n)
	}
}

func TestWithdraw_RoundingNearZero(t *testing.T) {
	tests := []struct {
		name       string
		balance    string
		wantAfter  int64
		wantStatus domain.BookStatus
	}{
		{"exact", "1005", 0, domain.BookClose},
		{"residual 0.4 rounds down and closes", "1005.4", 0, domain.BookClose},
		{"residual 0.5 rounds up and stays open", "1005.5", 1, domain.BookOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			book := f.openWith(t, f.noTerm.TypeID, mustDec(tt.balance))
			f.clock.Advance(30 * day)

			// 1000 * 1.005 = 1005
			r, err := f.ledger.Withdraw(ctx, book.BookID, dec(1000), tellerID)
			if err != nil {
				t.Fatalf("withdraw: %v", err)
			}
			if !r.BalanceAfter.Equal(dec(tt.wantAfter)) || r.Status != tt.wantStatus {
				t.Errorf("expected %d %s, got %s %s", tt.wantAfter, tt.wantStatus, r.BalanceAfter, r.Status)
			}
			stored, _ := f.store.GetBook(ctx, book.BookID)
			if stored.Status != tt.wantStatus || !stored.CurrentBalance.Equal(dec(tt.wantAfter)) {
				t.Errorf("stored book: expected %d %s, got %s %s", tt.wantAfter, tt.wantStatus, stored.CurrentBalance, stored.Status)
			}
		})
	}
}

func TestWithdraw_ConcurrentDebitsCannotOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.noTerm.TypeID, 1000)
	f.clock.Advance(30 * day)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Withdraw(ctx, book.BookID, dec(600), tellerID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one withdrawal to succeed, got %d", successes)
	}
	if got := f.balance(t, book.BookID); !got.Equal(dec(397)) {
		t.Errorf("expected 1000 - 603 = 397, got %s", got)
	}
	if n := f.txCount(t, book.BookID); n != 2 {
		t.Errorf("expected opening plus one withdrawal, got %d rows", n)
	}
}

// ============================================================
// Close
// ============================================================

func TestCloseSavingBook_TermInterest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.term.TypeID, 10000)

	// two completed 3-month terms plus one surplus month
	f.clock.Advance(t0.AddDate(0, 7, 1).Sub(t0))

	s, err := f.ledger.CloseSavingBook(ctx, book.BookID, tellerID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if s == nil {
		t.Fatal("expected a settlement")
	}
	if !s.Principal.Equal(dec(10000)) || !s.Interest.Equal(dec(1115)) || !s.FinalAmount.Equal(dec(11115)) {
		t.Errorf("unexpected settlement %s + %s = %s", s.Principal, s.Interest, s.FinalAmount)
	}
	if s.Transaction.Type != domain.TxWithdraw || !s.Transaction.Amount.Equal(dec(11115)) ||
		!s.Transaction.BalanceBefore.Equal(dec(10000)) || !s.Transaction.BalanceAfter.IsZero() {
		t.Errorf("unexpected settlement row: %+v", s.Transaction)
	}
	if s.Transaction.Note != "settlement: principal 10000, interest 1115" {
		t.Errorf("unexpected note %q", s.Transaction.Note)
	}

	stored, _ := f.store.GetBook(ctx, book.BookID)
	if stored.Status != domain.BookClose || !stored.CurrentBalance.IsZero() || stored.CloseTime == nil {
		t.Errorf("unexpected stored book: %+v", stored)
	}
}

func TestCloseSavingBook_NoTermEarnsNothing(t *testing.T) {
	f := newFixture(t)
	book := f.open(t, f.noTerm.TypeID, 800)
	f.clock.Advance(90 * day)

	s, err := f.ledger.CloseSavingBook(context.Background(), book.BookID, tellerID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !s.Interest.IsZero() || !s.FinalAmount.Equal(dec(800)) {
		t.Errorf("expected 800 with no interest, got %s + %s", s.Principal, s.Interest)
	}
}

func TestCloseSavingBook_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.noTerm.TypeID, 800)
	f.clock.Advance(20 * day)

	if s, err := f.ledger.CloseSavingBook(ctx, book.BookID, tellerID); err != nil || s == nil {
		t.Fatalf("first close: %v %v", s, err)
	}
	s, err := f.ledger.CloseSavingBook(ctx, book.BookID, tellerID)
	if err != nil || s != nil {
		t.Fatalf("second close must be a no-op, got %v %v", s, err)
	}
	s, err = f.ledger.CloseSavingBook(ctx, 999, tellerID)
	if err != nil || s != nil {
		t.Fatalf("missing book must be a no-op, got %v %v", s, err)
	}
	if n := f.txCount(t, book.BookID); n != 2 {
		t.Errorf("expected opening plus one settlement, got %d rows", n)
	}
}

func TestCloseSavingBook_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.noTerm.TypeID, 800)

	_, err := f.ledger.CloseSavingBook(ctx, book.BookID, "E404")
	assertNotFound(t, err, "teller")

	f.clock.Advance(10 * day)
	_, err = f.ledger.CloseSavingBook(ctx, book.BookID, tellerID)
	assertEligibility(t, err, domain.MsgWithin15Days)

	if got := f.balance(t, book.BookID); !got.Equal(dec(800)) {
		t.Errorf("balance must be unchanged, got %s", got)
	}
}

// ============================================================
// Reads
// ============================================================

func TestGetSavingBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.open(t, f.noTerm.TypeID, 500)
	if _, err := f.ledger.Deposit(ctx, book.BookID, dec(100), tellerID); err != nil {
		t.Fatal(err)
	}

	detail, err := f.ledger.GetSavingBook(ctx, book.BookID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if detail.CitizenID != citizenID || detail.Type.TypeID != f.noTerm.TypeID {
		t.Errorf("unexpected detail: %+v", detail)
	}
	if len(detail.Transactions) != 2 || !detail.Transactions[0].Amount.Equal(dec(100)) {
		t.Errorf("expected newest-first ledger, got %+v", detail.Transactions)
	}

	_, err = f.ledger.GetSavingBook(ctx, 999)
	assertNotFound(t, err, "account")

	_, err = f.ledger.ListTransactions(ctx, 999)
	assertNotFound(t, err, "account")
}

func TestSearchSavingBooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.open(t, f.noTerm.TypeID, 500)
	f.open(t, f.term.TypeID, 5000)

	res, err := f.ledger.SearchSavingBooks(ctx, "", 0, 0)
	if err != nil || res.Total != 2 {
		t.Fatalf("expected all books, got %+v %v", res, err)
	}

	res, err = f.ledger.SearchSavingBooks(ctx, citizenID, 10, 1)
	if err != nil || res.Total != 2 {
		t.Errorf("citizen id search: %+v %v", res, err)
	}

	res, err = f.ledger.SearchSavingBooks(ctx, "1", 10, 1)
	if err != nil || res.Total != 1 || res.Data[0].BookID != first.BookID {
		t.Errorf("book id search: %+v %v", res, err)
	}

	res, err = f.ledger.SearchSavingBooks(ctx, "van an", 1, 2)
	if err != nil || res.Total != 2 || len(res.Data) != 1 {
		t.Errorf("name search with paging: %+v %v", res, err)
	}

	_, err = f.ledger.SearchSavingBooks(ctx, "an#1", 10, 1)
	assertValidation(t, err, "keyword must contain only digits or letters")
}
