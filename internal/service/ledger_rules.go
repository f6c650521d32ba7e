package service

import (
	"errors"
	"time"

	"github.com/boddenberg/savings-ledger-go/internal/domain"
	"github.com/boddenberg/savings-ledger-go/internal/infra/observability"

	"github.com/shopspring/decimal"
)

// Withdrawal windows, in days since the book was opened.
const (
	coolingOffDays     = 15
	interestWindowDays = 30
)

var one = decimal.NewFromInt(1)

// checkWithdrawWindow enforces the two withdrawal windows. Exactly 15.0
// days falls in the one-month window; exactly 30.0 days is eligible.
func checkWithdrawWindow(ageDays float64) error {
	switch {
	case ageDays < coolingOffDays:
		return &domain.ErrEligibility{Message: domain.MsgWithin15Days, AgeDays: ageDays}
	case ageDays < interestWindowDays:
		return &domain.ErrEligibility{Message: domain.MsgBeforeOneMonth, AgeDays: ageDays}
	}
	return nil
}

// withdrawalDebit returns the exact amount a withdrawal of amount at rate
// takes from the balance, and the balance left afterwards rounded to whole
// currency units. The funds check compares against gross; only the
// remaining balance is rounded. rawAfter may be negative.
func withdrawalDebit(balance, amount, rate domain.Money) (gross, rawAfter domain.Money) {
	gross = amount.Mul(one.Add(rate))
	return gross, balance.Sub(gross).Round(0)
}

// monthsBetween counts whole calendar months from `from` to `to`.
func monthsBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	to = to.In(from.Location())
	m := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if m > 0 && from.AddDate(0, m, 0).After(to) {
		m--
	}
	return m
}

// settlementInterest computes the interest paid when a book is closed:
// the product rate for each completed term plus the demand rate for each
// surplus month. No-term products earn nothing at close.
func settlementInterest(principal domain.Money, t domain.SavingType, demandRate domain.Money, months int) domain.Money {
	if !t.IsTerm() || months <= 0 || !principal.IsPositive() {
		return decimal.Zero
	}
	completed := decimal.NewFromInt(int64(months / t.TermMonths))
	surplus := decimal.NewFromInt(int64(months % t.TermMonths))

	termPart := principal.Mul(t.Rate()).Mul(completed)
	demandPart := principal.Mul(demandRate).Mul(surplus)
	return termPart.Add(demandPart).Round(0)
}

func invalidAmount() error {
	return &domain.ErrValidation{Field: "amount", Message: domain.MsgInvalidAmount}
}

func belowMinimum(minimum domain.Money) error {
	return &domain.ErrValidation{Field: "amount", Message: "deposit amount must be at least " + minimum.String()}
}

// outcomeOf classifies an operation result for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return observability.OutcomeSuccess
	}
	var (
		notFound     *domain.ErrNotFound
		invalid      *domain.ErrInvalidState
		validation   *domain.ErrValidation
		eligibility  *domain.ErrEligibility
		insufficient *domain.ErrInsufficientFunds
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &invalid), errors.As(err, &validation),
		errors.As(err, &eligibility), errors.As(err, &insufficient):
		return observability.OutcomeRejected
	}
	return observability.OutcomeFailed
}
