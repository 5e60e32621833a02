/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the boundary between the workflow engine and its collaborators.
  The Store handles persistence; TxStore adds the atomic unit every
  orchestrator operation runs in; Notifier is the post-commit broadcast.

ATOMICITY CONTRACT:
  Every orchestrator operation that reads current state and writes a new one
  executes inside WithTx: read-status, validate, write-status, append-history
  all succeed or all fail together. Two concurrent transitions can never both
  succeed off a stale read.

HISTORY CONTRACT:
  AppendHistory is append-only. No update or delete method exists for
  history rows by design.

IMPLEMENTATIONS:
  - store/memory:   snapshot/rollback transactions, for tests and dev
  - store/sqlite:   embedded production store (WAL)
  - store/postgres: pgx-backed store for shared deployments

SEE ALSO:
  - orchestrator.go: The only writer
  - notify/hub.go: Websocket Notifier implementation
*/
package sales

import "context"

// =============================================================================
// STORE
// =============================================================================

// Store persists the sale aggregate. Implementations return ErrNotFound
// (possibly wrapped) for missing ids and ErrDuplicateOrderNumber on order
// number collisions.
type Store interface {
	// Sales
	CreateSale(ctx context.Context, s *Sale) error
	GetSale(ctx context.Context, id SaleID) (*Sale, error)
	UpdateSale(ctx context.Context, s *Sale) error
	ListSales(ctx context.Context) ([]Sale, error)
	// DeleteSaleCascade is the explicit administrative purge: removes the
	// sale and every dependent row (installments, receipts, costs, history).
	DeleteSaleCascade(ctx context.Context, id SaleID) error

	// Installments. ReplaceInstallments atomically swaps the full set;
	// there is no partial-set write path.
	ReplaceInstallments(ctx context.Context, saleID SaleID, rows []Installment) error
	Installments(ctx context.Context, saleID SaleID) ([]Installment, error)
	GetInstallment(ctx context.Context, id InstallmentID) (*Installment, error)
	UpdateInstallment(ctx context.Context, row *Installment) error

	// Receipts (append-only: confirmation evidence is never edited)
	AddReceipt(ctx context.Context, r PaymentReceipt) error
	Receipts(ctx context.Context, installmentID InstallmentID) ([]PaymentReceipt, error)

	// Operational costs
	AddCost(ctx context.Context, c OperationalCost) error
	Costs(ctx context.Context, saleID SaleID) ([]OperationalCost, error)

	// Status history (append-only)
	AppendHistory(ctx context.Context, e HistoryEntry) error
	// History returns entries oldest first, in commit order.
	History(ctx context.Context, saleID SaleID) ([]HistoryEntry, error)

	// Service type catalog (simple keyed lookup)
	PutServiceType(ctx context.Context, st ServiceType) error
	GetServiceType(ctx context.Context, id string) (*ServiceType, error)
}

// TxStore wraps Store with the atomic unit.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view of the store.
	// If fn returns an error the transaction is rolled back; otherwise it
	// commits. The view sees its own writes.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// NOTIFIER - Post-commit broadcast collaborator
// =============================================================================

// ChangeKind tells observers what happened to a sale.
type ChangeKind string

const (
	ChangeCreated               ChangeKind = "sale_created"
	ChangeOperationalStatus     ChangeKind = "operational_status"
	ChangeFinancialStatus       ChangeKind = "financial_status"
	ChangeInstallmentPaid       ChangeKind = "installment_paid"
	ChangeCostRecorded          ChangeKind = "cost_recorded"
	ChangeInstallmentsRecreated ChangeKind = "installments_recreated"
	ChangePurged                ChangeKind = "sale_purged"
)

// Notifier is invoked strictly after the transaction commits. Fire-and-forget:
// implementations must not block and their failure never rolls back state.
type Notifier interface {
	SaleChanged(saleID SaleID, kind ChangeKind)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) SaleChanged(SaleID, ChangeKind) {}
