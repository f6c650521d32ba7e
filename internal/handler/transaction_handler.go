package handler

import (
	"net/http"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Transaction Handlers
// ============================================================

type transactionRequest struct {
	BookID   int64        `json:"bookId"`
	Amount   domain.Money `json:"amount"`
	TellerID string       `json:"employeeId"`
}

func depositHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/transaction/deposit")
		defer span.End()

		var req transactionRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		receipt, err := svc.Deposit(ctx, req.BookID, req.Amount, req.TellerID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}

func withdrawHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/transaction/withdraw")
		defer span.End()

		var req transactionRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		receipt, err := svc.Withdraw(ctx, req.BookID, req.Amount, req.TellerID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, receipt)
	}
}

func listTransactionsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/transaction")
		defer span.End()

		bookID, err := parseID(r.URL.Query().Get("bookId"), "bookId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		txs, err := svc.ListTransactions(ctx, bookID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, txs)
	}
}
