// Package memstore is an in-memory implementation of the ledger ports.
// It backs local development (no DATABASE_URL) and the service and
// handler tests. Exclusive access per book is a per-book mutex.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/port"
)

var (
	_ port.TypeCatalog = (*Store)(nil)
	_ port.LedgerStore = (*Store)(nil)
	_ port.Directory   = (*Store)(nil)
	_ port.ReportStore = (*Store)(nil)
)

// Store keeps every table in maps guarded by mu. Book locks are held
// across the MutateBook callback; mu is only held for map access.
type Store struct {
	mu        sync.RWMutex
	types     map[int64]domain.SavingType
	books     map[int64]domain.SavingBook
	txs       []domain.Transaction
	customers map[string]domain.Customer
	employees map[string]domain.Employee

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	nextType int64
	nextBook int64
	nextTx   int64

	writeErr error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		types:     make(map[int64]domain.SavingType),
		books:     make(map[int64]domain.SavingBook),
		customers: make(map[string]domain.Customer),
		employees: make(map[string]domain.Employee),
		locks:     make(map[int64]*sync.Mutex),
	}
}

// AddCustomer registers a customer for lookups.
func (s *Store) AddCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.CustomerID] = c
}

// AddEmployee registers a teller for lookups.
func (s *Store) AddEmployee(e domain.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.EmployeeID] = e
}

// FailNextWrite makes the next persisted write fail with err, the way a
// lost connection or a violated constraint would.
func (s *Store) FailNextWrite(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *Store) takeWriteErr() error {
	err := s.writeErr
	s.writeErr = nil
	return err
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ============================================================
// Type catalog
// ============================================================

func (s *Store) ListTypes(ctx context.Context) ([]domain.SavingType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SavingType, 0, len(s.types))
	for _, t := range s.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out, nil
}

func (s *Store) GetType(ctx context.Context, typeID int64) (*domain.SavingType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.types[typeID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "saving type", ID: strconv.FormatInt(typeID, 10)}
	}
	return &t, nil
}

func (s *Store) CreateType(ctx context.Context, t *domain.SavingType) (*domain.SavingType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeWriteErr(); err != nil {
		return nil, err
	}
	s.nextType++
	created := *t
	created.TypeID = s.nextType
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	s.types[created.TypeID] = created
	return &created, nil
}

// UpdateType replaces a type. CreateBook takes the same lock, so the
// open-book check and the write cannot interleave with a new book.
func (s *Store) UpdateType(ctx context.Context, t *domain.SavingType, frozen bool) (*domain.SavingType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.types[t.TypeID]; !ok {
		return nil, &domain.ErrNotFound{Resource: "saving type", ID: strconv.FormatInt(t.TypeID, 10)}
	}
	if frozen && s.countOpenBooks(t.TypeID) > 0 {
		return nil, &domain.ErrInvalidState{Message: domain.MsgTypeReferenced}
	}
	if err := s.takeWriteErr(); err != nil {
		return nil, err
	}
	s.types[t.TypeID] = *t
	updated := *t
	return &updated, nil
}

// countOpenBooks expects s.mu to be held.
func (s *Store) countOpenBooks(typeID int64) int {
	n := 0
	for _, b := range s.books {
		if b.TypeID == typeID && b.IsOpen() {
			n++
		}
	}
	return n
}

// ============================================================
// Directory
// ============================================================

func (s *Store) GetEmployee(ctx context.Context, employeeID string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[employeeID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "teller", ID: employeeID}
	}
	return &e, nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "customer", ID: customerID}
	}
	return &c, nil
}

func (s *Store) FindCustomerByCitizenID(ctx context.Context, citizenID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if c.CitizenID == citizenID {
			found := c
			return &found, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "customer", ID: citizenID}
}

// ============================================================
// Ledger
// ============================================================

func (s *Store) bookLock(bookID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[bookID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[bookID] = l
	}
	return l
}

func (s *Store) CreateBook(ctx context.Context, book *domain.SavingBook, opening *domain.Transaction) (*domain.SavingBook, *domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.types[book.TypeID]; !ok {
		return nil, nil, &domain.ErrNotFound{Resource: "saving type", ID: strconv.FormatInt(book.TypeID, 10)}
	}
	if err := s.takeWriteErr(); err != nil {
		return nil, nil, &domain.ErrConsistency{Operation: "create book", Err: err}
	}

	s.nextBook++
	created := *book
	created.BookID = s.nextBook
	s.books[created.BookID] = created

	s.nextTx++
	entry := *opening
	entry.TransactionID = s.nextTx
	entry.BookID = created.BookID
	s.txs = append(s.txs, entry)

	return &created, &entry, nil
}

func (s *Store) GetBook(ctx context.Context, bookID int64) (*domain.SavingBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[bookID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(bookID, 10)}
	}
	return &b, nil
}

// ListTransactionsByBook returns the book's rows, newest first.
func (s *Store) ListTransactionsByBook(ctx context.Context, bookID int64) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Transaction{}
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].BookID == bookID {
			out = append(out, s.txs[i])
		}
	}
	return out, nil
}

// MutateBook holds the book lock while fn runs and commits the book state
// and its ledger row together.
func (s *Store) MutateBook(ctx context.Context, bookID int64, fn port.MutateFunc) (*domain.BookMutation, error) {
	lock := s.bookLock(bookID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	book, ok := s.books[bookID]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: strconv.FormatInt(bookID, 10)}
	}

	mut, err := fn(book)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeWriteErr(); err != nil {
		return nil, &domain.ErrConsistency{Operation: "mutate book", Err: err}
	}
	if err := checkBookConstraints(mut.Book); err != nil {
		return nil, &domain.ErrConsistency{Operation: "mutate book", Err: err}
	}

	updated := mut.Book
	updated.BookID = bookID
	s.books[bookID] = updated

	s.nextTx++
	entry := mut.Entry
	entry.TransactionID = s.nextTx
	entry.BookID = bookID
	s.txs = append(s.txs, entry)

	return &domain.BookMutation{Book: updated, Entry: entry}, nil
}

// checkBookConstraints mirrors the CHECK constraints of the savingbook table.
func checkBookConstraints(b domain.SavingBook) error {
	if b.CurrentBalance.IsNegative() {
		return errors.New("savingbook_balance_check: balance must not be negative")
	}
	if b.Status == domain.BookClose && !b.CurrentBalance.IsZero() {
		return errors.New("savingbook_closed_check: closed book must have zero balance")
	}
	return nil
}

func (s *Store) SearchBooks(ctx context.Context, filter domain.BookSearchFilter) (*domain.BookSearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := strings.ToLower(filter.CustomerName)
	rows := []domain.BookSearchRow{}
	for _, b := range s.books {
		c := s.customers[b.CustomerID]
		switch {
		case filter.BookID != nil && b.BookID != *filter.BookID:
			continue
		case filter.CitizenID != "" && c.CitizenID != filter.CitizenID:
			continue
		case name != "" && !strings.Contains(strings.ToLower(c.FullName), name):
			continue
		}
		rows = append(rows, domain.BookSearchRow{
			BookID:       b.BookID,
			CitizenID:    c.CitizenID,
			CustomerName: c.FullName,
			TypeID:       b.TypeID,
			TypeName:     s.types[b.TypeID].TypeName,
			Balance:      b.CurrentBalance,
			Status:       b.Status,
			OpenDate:     b.RegisterTime,
			MaturityDate: b.MaturityDate,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].BookID < rows[j].BookID })

	total := len(rows)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return &domain.BookSearchResult{Total: total, Data: rows[start:end]}, nil
}

// ============================================================
// Reports
// ============================================================

func (s *Store) ledgerRow(tx domain.Transaction) domain.LedgerRow {
	row := domain.LedgerRow{
		TransactionID:   tx.TransactionID,
		BookID:          tx.BookID,
		Type:            tx.Type,
		TransactionDate: tx.TransactionDate,
	}
	amount := tx.Amount
	row.Amount = &amount
	if b, ok := s.books[tx.BookID]; ok {
		if _, ok := s.types[b.TypeID]; ok {
			typeID := b.TypeID
			row.TypeID = &typeID
		}
		row.CustomerName = s.customers[b.CustomerID].FullName
	}
	return row
}

func (s *Store) TransactionsBetween(ctx context.Context, from, to time.Time) ([]domain.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.LedgerRow{}
	for _, tx := range s.txs {
		if !tx.TransactionDate.Before(from) && tx.TransactionDate.Before(to) {
			out = append(out, s.ledgerRow(tx))
		}
	}
	return out, nil
}

func (s *Store) BooksOpenedBetween(ctx context.Context, typeID *int64, from, to time.Time) ([]domain.BookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.BookEvent{}
	for _, b := range s.books {
		if typeID != nil && b.TypeID != *typeID {
			continue
		}
		if !b.RegisterTime.Before(from) && b.RegisterTime.Before(to) {
			at := b.RegisterTime
			out = append(out, domain.BookEvent{BookID: b.BookID, TypeID: b.TypeID, At: &at})
		}
	}
	return out, nil
}

func (s *Store) BooksClosedBetween(ctx context.Context, typeID *int64, from, to time.Time) ([]domain.BookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.BookEvent{}
	for _, b := range s.books {
		if typeID != nil && b.TypeID != *typeID {
			continue
		}
		if b.CloseTime == nil {
			continue
		}
		if !b.CloseTime.Before(from) && b.CloseTime.Before(to) {
			at := *b.CloseTime
			out = append(out, domain.BookEvent{BookID: b.BookID, TypeID: b.TypeID, At: &at})
		}
	}
	return out, nil
}

func (s *Store) ActiveBooks(ctx context.Context) ([]domain.ActiveBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.ActiveBook{}
	for _, b := range s.books {
		if !b.IsOpen() {
			continue
		}
		out = append(out, domain.ActiveBook{
			BookID:       b.BookID,
			TypeID:       b.TypeID,
			TypeName:     s.types[b.TypeID].TypeName,
			RegisterTime: b.RegisterTime,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out, nil
}

func (s *Store) RecentTransactions(ctx context.Context, limit int) ([]domain.LedgerRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := make([]domain.Transaction, len(s.txs))
	copy(ordered, s.txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].TransactionDate.Equal(ordered[j].TransactionDate) {
			return ordered[i].TransactionID > ordered[j].TransactionID
		}
		return ordered[i].TransactionDate.After(ordered[j].TransactionDate)
	})

	out := []domain.LedgerRow{}
	for _, tx := range ordered {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.ledgerRow(tx))
	}
	return out, nil
}
