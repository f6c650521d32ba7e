package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"

	"github.com/shopspring/decimal"
)

const ledgerRowSelect = `
SELECT t.transactionid, t.bookid, ts.typeid, t.type, t.amount, t.transactiondate, COALESCE(c.fullname, '')
FROM "transaction" t
LEFT JOIN savingbook b ON b.bookid = t.bookid
LEFT JOIN typesaving ts ON ts.typeid = b.typeid
LEFT JOIN customer c ON c.customerid = b.customerid`

func scanLedgerRows(rows *sql.Rows) ([]domain.LedgerRow, error) {
	defer rows.Close()

	out := []domain.LedgerRow{}
	for rows.Next() {
		var (
			r      domain.LedgerRow
			typeID sql.NullInt64
			txType string
			amount decimal.NullDecimal
		)
		if err := rows.Scan(&r.TransactionID, &r.BookID, &typeID, &txType, &amount, &r.TransactionDate, &r.CustomerName); err != nil {
			return nil, err
		}
		r.Type = domain.TransactionType(txType)
		if typeID.Valid {
			id := typeID.Int64
			r.TypeID = &id
		}
		if amount.Valid {
			a := amount.Decimal
			r.Amount = &a
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) TransactionsBetween(ctx context.Context, from, to time.Time) ([]domain.LedgerRow, error) {
	ctx, end := s.span(ctx, "TransactionsBetween")
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, ledgerRowSelect+`
WHERE t.transactiondate >= $1 AND t.transactiondate < $2
ORDER BY t.transactiondate, t.transactionid`, from, to)
	if err != nil {
		return nil, err
	}
	return scanLedgerRows(rows)
}

func (s *Store) RecentTransactions(ctx context.Context, limit int) ([]domain.LedgerRow, error) {
	ctx, end := s.span(ctx, "RecentTransactions")
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, ledgerRowSelect+`
ORDER BY t.transactiondate DESC, t.transactionid DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanLedgerRows(rows)
}

func (s *Store) bookEvents(ctx context.Context, column string, typeID *int64, from, to time.Time) ([]domain.BookEvent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT bookid, typeid, `+column+`
FROM savingbook
WHERE `+column+` >= $1 AND `+column+` < $2
  AND ($3::BIGINT IS NULL OR typeid = $3)
ORDER BY `+column,
		from, to, nullInt64(typeID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.BookEvent{}
	for rows.Next() {
		var (
			e  domain.BookEvent
			at sql.NullTime
		)
		if err := rows.Scan(&e.BookID, &e.TypeID, &at); err != nil {
			return nil, err
		}
		if at.Valid {
			t := at.Time
			e.At = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) BooksOpenedBetween(ctx context.Context, typeID *int64, from, to time.Time) ([]domain.BookEvent, error) {
	ctx, end := s.span(ctx, "BooksOpenedBetween")
	defer end()
	return s.bookEvents(ctx, "registertime", typeID, from, to)
}

// BooksClosedBetween never returns books without a close time: NULL fails
// the range predicate.
func (s *Store) BooksClosedBetween(ctx context.Context, typeID *int64, from, to time.Time) ([]domain.BookEvent, error) {
	ctx, end := s.span(ctx, "BooksClosedBetween")
	defer end()
	return s.bookEvents(ctx, "closetime", typeID, from, to)
}

func (s *Store) ActiveBooks(ctx context.Context) ([]domain.ActiveBook, error) {
	ctx, end := s.span(ctx, "ActiveBooks")
	defer end()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
SELECT b.bookid, b.typeid, t.typename, b.registertime
FROM savingbook b
JOIN typesaving t ON t.typeid = b.typeid
WHERE b.status = 'Open'
ORDER BY b.bookid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ActiveBook{}
	for rows.Next() {
		var a domain.ActiveBook
		if err := rows.Scan(&a.BookID, &a.TypeID, &a.TypeName, &a.RegisterTime); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
