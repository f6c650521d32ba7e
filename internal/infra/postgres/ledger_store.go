package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
)

const insertTransactionSQL = `
INSERT INTO "transaction" (bookid, type, amount, balancebefore, balanceafter, transactiondate, tellerid, note, reference)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING transactionid`

func insertTransaction(ctx context.Context, tx *sql.Tx, bookID int64, e *domain.Transaction) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, insertTransactionSQL,
		bookID, string(e.Type), e.Amount, e.BalanceBefore, e.BalanceAfter,
		e.TransactionDate, e.TellerID, e.Note, e.Reference,
	).Scan(&id)
	return id, err
}

// CreateBook inserts the book and its opening ledger row in one transaction.
func (s *Store) CreateBook(ctx context.Context, book *domain.SavingBook, opening *domain.Transaction) (*domain.SavingBook, *domain.Transaction, error) {
	ctx, end := s.span(ctx, "CreateBook", attribute.Int64("type.id", book.TypeID))
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, &domain.ErrConsistency{Operation: "create book", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	created, err := scanBook(tx.QueryRowContext(ctx, `
INSERT INTO savingbook (customerid, typeid, currentbalance, status, registertime, maturitydate)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+bookColumns,
		book.CustomerID, book.TypeID, book.CurrentBalance, string(book.Status), book.RegisterTime, nullTime(book.MaturityDate)))
	if err != nil {
		return nil, nil, &domain.ErrConsistency{Operation: "create book", Err: err}
	}

	entry := *opening
	entry.BookID = created.BookID
	if entry.TransactionID, err = insertTransaction(ctx, tx, created.BookID, &entry); err != nil {
		return nil, nil, &domain.ErrConsistency{Operation: "create book", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, &domain.ErrConsistency{Operation: "create book", Err: err}
	}
	return created, &entry, nil
}

func (s *Store) GetBook(ctx context.Context, bookID int64) (*domain.SavingBook, error) {
	ctx, end := s.span(ctx, "GetBook", attribute.Int64("book.id", bookID))
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	b, err := scanBook(s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM savingbook WHERE bookid = $1`, bookID))
	if isNoRows(err) {
		return nil, notFound("account", bookID)
	}
	return b, err
}

// ListTransactionsByBook returns the book's rows, newest first.
func (s *Store) ListTransactionsByBook(ctx context.Context, bookID int64) ([]domain.Transaction, error) {
	ctx, end := s.span(ctx, "ListTransactionsByBook", attribute.Int64("book.id", bookID))
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT `+txColumns+` FROM "transaction"
WHERE bookid = $1
ORDER BY transactiondate DESC, transactionid DESC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// MutateBook locks the book row with SELECT ... FOR UPDATE, runs fn on the
// locked snapshot and writes the new book state plus the ledger row before
// committing. Concurrent callers on the same book queue on the row lock,
// bounded by the query timeout. fn must not use the pool: the transaction
// already holds one connection.
func (s *Store) MutateBook(ctx context.Context, bookID int64, fn port.MutateFunc) (*domain.BookMutation, error) {
	ctx, end := s.span(ctx, "MutateBook", attribute.Int64("book.id", bookID))
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.ErrConsistency{Operation: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	book, err := scanBook(tx.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM savingbook WHERE bookid = $1 FOR UPDATE`, bookID))
	if isNoRows(err) {
		return nil, notFound("account", bookID)
	}
	if err != nil {
		return nil, &domain.ErrConsistency{Operation: "lock book", Err: err}
	}

	mut, err := fn(*book)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
UPDATE savingbook SET currentbalance = $2, status = $3, closetime = $4
WHERE bookid = $1`,
		bookID, mut.Book.CurrentBalance, string(mut.Book.Status), nullTime(mut.Book.CloseTime))
	if err != nil {
		return nil, &domain.ErrConsistency{Operation: "update book", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return nil, &domain.ErrConsistency{Operation: "update book", Err: fmt.Errorf("%d rows affected", n)}
	}

	entry := mut.Entry
	entry.BookID = bookID
	if entry.TransactionID, err = insertTransaction(ctx, tx, bookID, &entry); err != nil {
		return nil, &domain.ErrConsistency{Operation: "append transaction", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &domain.ErrConsistency{Operation: "commit", Err: err}
	}

	updated := mut.Book
	updated.BookID = bookID
	return &domain.BookMutation{Book: updated, Entry: entry}, nil
}

// SearchBooks filters by at most one criterion and pages by bookid.
func (s *Store) SearchBooks(ctx context.Context, filter domain.BookSearchFilter) (*domain.BookSearchResult, error) {
	ctx, end := s.span(ctx, "SearchBooks")
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	switch {
	case filter.BookID != nil:
		args = append(args, *filter.BookID)
		conds = append(conds, fmt.Sprintf("b.bookid = $%d", len(args)))
	case filter.CitizenID != "":
		args = append(args, filter.CitizenID)
		conds = append(conds, fmt.Sprintf("c.citizenid = $%d", len(args)))
	case filter.CustomerName != "":
		args = append(args, "%"+strings.ToLower(filter.CustomerName)+"%")
		conds = append(conds, fmt.Sprintf("LOWER(c.fullname) LIKE $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	from := `
FROM savingbook b
JOIN customer c ON c.customerid = b.customerid
JOIN typesaving t ON t.typeid = b.typeid
` + where

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = total
	}
	pageArgs := append(append([]any{}, args...), limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT b.bookid, c.citizenid, c.fullname, b.typeid, t.typename, b.currentbalance, b.status, b.registertime, b.maturitydate`+
		from+`
ORDER BY b.bookid
LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &domain.BookSearchResult{Total: total, Data: []domain.BookSearchRow{}}
	for rows.Next() {
		var (
			r        domain.BookSearchRow
			status   string
			maturity sql.NullTime
		)
		if err := rows.Scan(&r.BookID, &r.CitizenID, &r.CustomerName, &r.TypeID, &r.TypeName, &r.Balance, &status, &r.OpenDate, &maturity); err != nil {
			return nil, err
		}
		r.Status = domain.BookStatus(status)
		if maturity.Valid {
			t := maturity.Time
			r.MaturityDate = &t
		}
		result.Data = append(result.Data, r)
	}
	return result, rows.Err()
}
