/*
ledger.go - The installment ledger

PURPOSE:
  Owns the installment rows of a sale: creation via the amortization engine,
  payment confirmation, and the all-paid predicate that gates financial
  completion.

PAYMENT CONFIRMATION:
  Confirming a payment sets status=paid, stamps the payment date, and attaches
  a receipt - atomically (the caller runs it inside a store transaction).
  Confirming an already-paid installment fails with ErrAlreadyPaid rather than
  silently succeeding: a retried confirmation must not double-credit, and the
  first confirmation's payment date and receipts stay untouched.

ALL-PAID GATE:
  AllPaid is true iff the set is non-empty and every row is paid. The
  financial machine consults it inside the same transaction that writes the
  status, so no installment can flip mid-evaluation.

SEE ALSO:
  - amortize.go: Generates the drafts ReplaceAll persists
  - machine.go: ValidateFinancial consumes the gate
*/
package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger operates on the installment rows through a Store. Hand it the
// transactional view inside WithTx to get atomic semantics.
type Ledger struct {
	Store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store}
}

// ReceiptInput is the evidence supplied with a payment confirmation.
type ReceiptInput struct {
	Type  ReceiptType
	URL   string
	Data  map[string]string
	Notes string
}

// ReplaceAll swaps the sale's full installment set for the generated drafts.
// Used only at sale creation and deliberate re-amortization; individual rows
// are never created outside a full set.
func (l *Ledger) ReplaceAll(ctx context.Context, saleID SaleID, drafts []InstallmentDraft) ([]Installment, error) {
	rows := make([]Installment, len(drafts))
	for i, d := range drafts {
		rows[i] = Installment{
			ID:      InstallmentID(uuid.NewString()),
			SaleID:  saleID,
			Number:  d.Number,
			Amount:  d.Amount,
			DueDate: d.DueDate,
			Status:  InstallmentPending,
		}
	}
	if err := l.Store.ReplaceInstallments(ctx, saleID, rows); err != nil {
		return nil, fmt.Errorf("failed to replace installments: %w", err)
	}
	return rows, nil
}

// ConfirmPayment marks one installment paid and attaches the receipt.
// Fails with ErrAlreadyPaid on a duplicate confirmation.
func (l *Ledger) ConfirmPayment(
	ctx context.Context,
	installmentID InstallmentID,
	actor ActorID,
	paymentDate Date,
	receipt ReceiptInput,
) (*Installment, error) {
	row, err := l.Store.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}
	if row.Status == InstallmentPaid {
		return nil, fmt.Errorf("installment %s: %w", installmentID, ErrAlreadyPaid)
	}
	if paymentDate.IsZero() {
		return nil, &ValidationError{Field: "payment_date", Message: "required"}
	}

	row.Status = InstallmentPaid
	row.PaymentDate = &paymentDate
	if err := l.Store.UpdateInstallment(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to mark installment paid: %w", err)
	}

	if receipt.Type == "" {
		receipt.Type = ReceiptManual
	}
	err = l.Store.AddReceipt(ctx, PaymentReceipt{
		ID:            uuid.NewString(),
		InstallmentID: installmentID,
		Type:          receipt.Type,
		URL:           receipt.URL,
		Data:          receipt.Data,
		ConfirmedBy:   actor,
		ConfirmedAt:   time.Now().UTC(),
		Notes:         receipt.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record receipt: %w", err)
	}

	return row, nil
}

// AllPaid reports whether the sale has a non-empty installment set with every
// row paid. An empty set is NOT all-paid: a sale without installments can
// never clear the financial gate.
func (l *Ledger) AllPaid(ctx context.Context, saleID SaleID) (bool, error) {
	rows, err := l.Store.Installments(ctx, saleID)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	for _, row := range rows {
		if row.Status != InstallmentPaid {
			return false, nil
		}
	}
	return true, nil
}

// AnyPaid reports whether any installment of the sale is already paid.
// Re-amortization consults this before discarding the set.
func (l *Ledger) AnyPaid(ctx context.Context, saleID SaleID) (int, error) {
	rows, err := l.Store.Installments(ctx, saleID)
	if err != nil {
		return 0, err
	}
	paid := 0
	for _, row := range rows {
		if row.Status == InstallmentPaid {
			paid++
		}
	}
	return paid, nil
}

// Installments returns the sale's rows with the derived overdue status
// applied as of today.
func (l *Ledger) Installments(ctx context.Context, saleID SaleID, today Date) ([]Installment, error) {
	rows, err := l.Store.Installments(ctx, saleID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Status = rows[i].EffectiveStatus(today)
	}
	return rows, nil
}
