package handler

import (
	"net/http"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Saving Book Handlers
// ============================================================

const msgCloseNoop = "saving book not found or already closed"

type closeRequest struct {
	TellerID string `json:"employeeId"`
}

func openSavingBookHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/savingbook")
		defer span.End()

		var req domain.OpenBookRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int64("type.id", req.TypeID))

		opened, err := svc.OpenSavingBook(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, opened)
	}
}

func getSavingBookHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/savingbook/{bookId}")
		defer span.End()

		bookID, err := parseID(chi.URLParam(r, "bookId"), "bookId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		detail, err := svc.GetSavingBook(ctx, bookID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func searchSavingBooksHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /api/savingbook/search")
		defer span.End()

		pageSize, err := queryInt(r, "pageSize", 0)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		pageNumber, err := queryInt(r, "pageNumber", 0)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		res, err := svc.SearchSavingBooks(ctx, r.URL.Query().Get("keyword"), pageSize, pageNumber)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func closeSavingBookHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /api/savingbook/{bookId}/close")
		defer span.End()

		bookID, err := parseID(chi.URLParam(r, "bookId"), "bookId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		var req closeRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		settlement, err := svc.CloseSavingBook(ctx, bookID, req.TellerID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if settlement == nil {
			writeError(w, http.StatusNotFound, msgCloseNoop)
			return
		}
		writeJSON(w, http.StatusOK, settlement)
	}
}
