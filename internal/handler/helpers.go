package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/boddenberg/savings-ledger-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeFile(w http.ResponseWriter, f *domain.ExportFile) {
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
	}
	return nil
}

// parseID parses a positive integer identifier from a path or query value.
func parseID(raw, field string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ErrValidation{Field: field, Message: "invalid " + field}
	}
	return id, nil
}

// queryInt returns the integer query value, or fallback when absent.
func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &domain.ErrValidation{Field: key, Message: "invalid " + key}
	}
	return n, nil
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var invalidState *domain.ErrInvalidState
	var validation *domain.ErrValidation
	var eligibility *domain.ErrEligibility
	var insufficientFunds *domain.ErrInsufficientFunds
	var consistency *domain.ErrConsistency
	var circuitOpen *domain.ErrCircuitOpen

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalidState):
		logger.Debug("invalid state", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("field", validation.Field), zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &eligibility):
		logger.Debug("withdrawal window not reached", zap.Float64("age_days", eligibility.AgeDays))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &insufficientFunds):
		logger.Warn("insufficient funds",
			zap.String("available", insufficientFunds.Available.String()),
			zap.String("required", insufficientFunds.Required.String()),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &consistency):
		logger.Error("ledger consistency error", zap.String("operation", consistency.Operation), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "ledger update failed: "+consistency.Operation)
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
