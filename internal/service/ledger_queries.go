package service

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/boddenberg/savings-ledger-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

const defaultSearchPageSize = 10

// GetSavingBook returns a book with its owner, product and ledger rows.
// Reads never change the book.
func (s *LedgerService) GetSavingBook(ctx context.Context, bookID int64) (*domain.BookDetail, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetSavingBook")
	defer span.End()
	span.SetAttributes(attribute.Int64("book.id", bookID))

	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	typ, err := s.catalog.GetType(ctx, book.TypeID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactionsByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	customer := s.customerOrID(ctx, book.CustomerID)

	return &domain.BookDetail{
		Book:         *book,
		CitizenID:    customer.CitizenID,
		CustomerName: customer.FullName,
		Type:         *typ,
		Transactions: txs,
	}, nil
}

// ListTransactions returns the ledger of one book, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, bookID int64) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListTransactions")
	defer span.End()
	span.SetAttributes(attribute.Int64("book.id", bookID))

	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.store.ListTransactionsByBook(ctx, bookID)
}

// SearchSavingBooks finds books by a free keyword: a citizen id (digits
// with a leading zero), a book id (other digits) or part of the customer
// name (letters and spaces). An empty keyword lists every book.
func (s *LedgerService) SearchSavingBooks(ctx context.Context, keyword string, pageSize, pageNumber int) (*domain.BookSearchResult, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.SearchSavingBooks")
	defer span.End()

	filter, err := parseKeyword(keyword)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = defaultSearchPageSize
	}
	if pageNumber <= 0 {
		pageNumber = 1
	}
	filter.Limit = pageSize
	filter.Offset = (pageNumber - 1) * pageSize

	return s.store.SearchBooks(ctx, filter)
}

func parseKeyword(keyword string) (domain.BookSearchFilter, error) {
	kw := strings.TrimSpace(keyword)
	if kw == "" {
		return domain.BookSearchFilter{}, nil
	}

	if isDigits(kw) {
		if kw[0] == '0' {
			return domain.BookSearchFilter{CitizenID: kw}, nil
		}
		id, err := strconv.ParseInt(kw, 10, 64)
		if err != nil {
			return domain.BookSearchFilter{}, &domain.ErrValidation{Field: "keyword", Message: "keyword is out of range"}
		}
		return domain.BookSearchFilter{BookID: &id}, nil
	}

	for _, r := range kw {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return domain.BookSearchFilter{}, &domain.ErrValidation{Field: "keyword", Message: "keyword must contain only digits or letters"}
		}
	}
	return domain.BookSearchFilter{CustomerName: kw}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
