package domain

import "time"

// ============================================================
// Ledger transactions
// ============================================================

// TransactionType is the kind of a ledger row.
type TransactionType string

const (
	TxDeposit  TransactionType = "Deposit"
	TxWithdraw TransactionType = "WithDraw"
)

// Transaction is one append-only ledger row.
// Amount is the amount requested by the teller; the balance delta is
// BalanceAfter - BalanceBefore.
type Transaction struct {
	TransactionID   int64           `json:"transactionId"`
	BookID          int64           `json:"bookId"`
	Type            TransactionType `json:"type"`
	Amount          Money           `json:"amount"`
	BalanceBefore   Money           `json:"balanceBefore"`
	BalanceAfter    Money           `json:"balanceAfter"`
	TransactionDate time.Time       `json:"transactionDate"`
	TellerID        string          `json:"tellerId"`
	Note            string          `json:"note,omitempty"`
	Reference       string          `json:"reference"`
}

// BookMutation is the unit a ledger store persists atomically:
// the new state of the book plus the ledger row explaining it.
type BookMutation struct {
	Book  SavingBook
	Entry Transaction
}

// Receipt is returned by deposit and withdraw.
type Receipt struct {
	Transaction   Transaction `json:"transaction"`
	BalanceBefore Money       `json:"balanceBefore"`
	BalanceAfter  Money       `json:"balanceAfter"`
	Status        BookStatus  `json:"status"`
	Customer      Customer    `json:"customer"`
	Teller        Employee    `json:"employee"`
}

// Settlement is returned when a book is closed.
type Settlement struct {
	Transaction Transaction `json:"transaction"`
	Principal   Money       `json:"principal"`
	Interest    Money       `json:"interest"`
	FinalAmount Money       `json:"finalBalance"`
	Status      BookStatus  `json:"status"`
}
