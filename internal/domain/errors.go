package domain

import "fmt"

// Error types for consistent error handling across the ledger.
// Messages are part of the API contract: callers match on them.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// ErrInvalidState indicates the operation is not allowed for the current
// state of the book or the shape of its product.
type ErrInvalidState struct {
	Message string
}

func (e *ErrInvalidState) Error() string {
	return e.Message
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Message
}

// ErrEligibility indicates a time-based withdrawal window was not reached.
type ErrEligibility struct {
	Message string
	AgeDays float64
}

func (e *ErrEligibility) Error() string {
	return e.Message
}

// ErrInsufficientFunds indicates not enough balance for the operation.
type ErrInsufficientFunds struct {
	Available Money
	Required  Money
}

func (e *ErrInsufficientFunds) Error() string {
	return "insufficient balance"
}

// ErrConsistency indicates the store failed to persist a balance change
// together with its ledger row. Nothing was written; the caller may retry.
type ErrConsistency struct {
	Operation string
	Err       error
}

func (e *ErrConsistency) Error() string {
	return fmt.Sprintf("ledger update failed: %s: %v", e.Operation, e.Err)
}

func (e *ErrConsistency) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// Stable messages shared by the engine and its tests.
const (
	MsgClosedDeposit      = "cannot deposit to a closed account"
	MsgTermDeposit        = "cannot deposit to a term savings book"
	MsgClosedWithdraw     = "cannot withdraw from a closed account"
	MsgInvalidAmount      = "invalid amount"
	MsgWithin15Days       = "cannot withdraw within 15 days"
	MsgBeforeOneMonth     = "cannot withdraw before 1 month"
	MsgTermFullWithdrawal = "term savings must be fully withdrawn"
	MsgTypeInactive       = "saving type is inactive"
	MsgTypeReferenced     = "saving type is referenced by open accounts"
	MsgUnknownType        = "unknown saving type"
	MsgBadDate            = "invalid date format, expected YYYY-MM-DD"
)
