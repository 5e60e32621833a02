/*
amortize.go - Installment generation

PURPOSE:
  Splits a sale's total into N installments with monthly due dates. Pure
  computation: no side effects, no dependencies, deterministic. Called once
  per sale creation or explicit re-amortization, never incrementally.

ALGORITHM:
  base = round(total / count, 2dp, round-half-even)
  installments 1..count-1 get base
  installment count gets total - base*(count-1)

  The last installment absorbs all rounding remainder, so the amounts always
  sum to the total exactly. No rounding leakage.

  1000.00 / 3  ->  333.33, 333.33, 333.34

DUE DATES:
  Installment 1 is due on firstDue verbatim; installment i is due (i-1)
  calendar months later, with end-of-month clamping (Jan 31 + 1 month =
  Feb 28/29). Calendar months, not 30-day blocks.

SEE ALSO:
  - date.go: AddMonths clamping
  - ledger.go: ReplaceAll persists the generated set atomically
*/
package sales

import (
	"github.com/shopspring/decimal"
)

// InstallmentDraft is one generated slice before persistence assigns IDs.
type InstallmentDraft struct {
	Number  int
	Amount  decimal.Decimal
	DueDate Date
}

// GenerateInstallments splits total into count installments due monthly from
// firstDue. count == 1 is the valid pay-in-full case.
func GenerateInstallments(total decimal.Decimal, count int, firstDue Date) ([]InstallmentDraft, error) {
	if count < 1 {
		return nil, &ValidationError{Field: "installments_count", Message: "must be at least 1"}
	}
	if total.IsNegative() {
		return nil, &ValidationError{Field: "total_amount", Message: "must not be negative"}
	}
	if firstDue.IsZero() {
		return nil, &ValidationError{Field: "first_due_date", Message: "required"}
	}

	// RoundBank is round-half-even: 0.125 -> 0.12, 0.135 -> 0.14.
	base := total.Div(decimal.NewFromInt(int64(count))).RoundBank(2)

	drafts := make([]InstallmentDraft, count)
	for i := 0; i < count-1; i++ {
		drafts[i] = InstallmentDraft{
			Number:  i + 1,
			Amount:  base,
			DueDate: firstDue.AddMonths(i),
		}
	}

	// Last installment absorbs the remainder, guaranteeing the sum invariant.
	last := total.Sub(base.Mul(decimal.NewFromInt(int64(count - 1))))
	drafts[count-1] = InstallmentDraft{
		Number:  count,
		Amount:  last,
		DueDate: firstDue.AddMonths(count - 1),
	}

	return drafts, nil
}
