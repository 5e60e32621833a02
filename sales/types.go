/*
Package sales provides the core order-to-cash workflow engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking a sale
  through two coupled lifecycles: the operational execution track (the service
  gets performed) and the financial reconciliation track (installments get
  collected and the sale gets settled).

KEY CONCEPTS IN THIS FILE (types.go):
  - Sale: The unit of work, carrying both status fields
  - Installment: One payable slice of a sale's total amount
  - PaymentReceipt: Evidence attached to one installment's payment
  - OperationalCost: A cost line booked against a sale
  - Role: Who is acting (seller, operational, financial, supervisor, admin)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for money to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing sale/installment IDs
  3. Explicitness: Status transitions live in one table (machine.go), never
     in scattered string comparisons
  4. Auditability: Every accepted transition is recorded (audit.go)

SEE ALSO:
  - machine.go: Transition tables for both state machines
  - amortize.go: Installment generation
  - orchestrator.go: The façade composing everything
*/
package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SaleID string
type InstallmentID string
type ActorID string

// =============================================================================
// ROLES
// =============================================================================

// Role identifies the authority an actor carries. The engine trusts the
// identity collaborator to supply (actorID, role) and performs no
// authentication itself.
type Role string

const (
	RoleSeller      Role = "vendedor"
	RoleOperational Role = "operacional"
	RoleFinancial   Role = "financeiro"
	RoleSupervisor  Role = "supervisor"
	RoleAdmin       Role = "admin"
)

// =============================================================================
// STATUSES
// =============================================================================

// OperationalStatus is the execution/fulfillment lifecycle of a sale.
type OperationalStatus string

const (
	OpPending    OperationalStatus = "pending"
	OpInProgress OperationalStatus = "in_progress"
	OpReturned   OperationalStatus = "returned"
	OpCorrected  OperationalStatus = "corrected"
	OpCompleted  OperationalStatus = "completed"
	OpCanceled   OperationalStatus = "canceled"
)

// Terminal reports whether no further operational transition is accepted.
func (s OperationalStatus) Terminal() bool {
	return s == OpCompleted || s == OpCanceled
}

// FinancialStatus is the collections/settlement lifecycle of a sale.
type FinancialStatus string

const (
	FinPending    FinancialStatus = "pending"
	FinInProgress FinancialStatus = "in_progress"
	FinCompleted  FinancialStatus = "completed"
	FinPaid       FinancialStatus = "paid"
)

// =============================================================================
// SALE - The unit of work
// =============================================================================

type Sale struct {
	ID          SaleID
	OrderNumber string // unique, human-facing

	Date              Date
	CustomerID        string
	SellerID          ActorID
	PaymentMethodID   string
	ServiceTypeID     string
	ServiceProviderID string // optional; required by some service types

	TotalAmount       decimal.Decimal
	InstallmentsCount int

	Notes        string // append-only note history, timestamped delimiters
	ReturnReason string

	Status          OperationalStatus
	FinancialStatus FinancialStatus

	// Set when a role claims the sale by transitioning it.
	ResponsibleOperationalID ActorID
	ResponsibleFinancialID   ActorID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// INSTALLMENT - One payable slice of a sale
// =============================================================================

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPaid    InstallmentStatus = "paid"
	// InstallmentOverdue is derived at read time (due date passed, still
	// pending). It is never stored and never a transition.
	InstallmentOverdue InstallmentStatus = "overdue"
)

type Installment struct {
	ID     InstallmentID
	SaleID SaleID
	Number int // 1..N, unique per sale, contiguous

	Amount  decimal.Decimal
	DueDate Date // calendar date, no timezone

	Status      InstallmentStatus
	PaymentDate *Date
	Notes       string
}

// EffectiveStatus derives the read-time status: a pending installment whose
// due date has passed reads as overdue.
func (i Installment) EffectiveStatus(today Date) InstallmentStatus {
	if i.Status == InstallmentPending && i.DueDate.Before(today) {
		return InstallmentOverdue
	}
	return i.Status
}

// =============================================================================
// PAYMENT RECEIPT - Evidence attached to a payment confirmation
// =============================================================================

type ReceiptType string

const (
	ReceiptManual ReceiptType = "manual"
	ReceiptLink   ReceiptType = "link"
)

// PaymentReceipt is created as the side effect of confirming a payment,
// never standalone. Many receipts may exist per installment.
type PaymentReceipt struct {
	ID            string
	InstallmentID InstallmentID
	Type          ReceiptType
	URL           string
	Data          map[string]string // opaque structured payload
	ConfirmedBy   ActorID
	ConfirmedAt   time.Time
	Notes         string
}

// =============================================================================
// OPERATIONAL COST - Cost line against a sale (outside the state machines)
// =============================================================================

type OperationalCost struct {
	ID          string
	SaleID      SaleID
	Description string
	Amount      decimal.Decimal
	RecordedBy  ActorID
	CreatedAt   time.Time
}

// =============================================================================
// SERVICE TYPE - Lookup record consulted by the execution precondition
// =============================================================================

type ServiceType struct {
	ID               string
	Name             string
	RequiresProvider bool
}

// =============================================================================
// HELPERS
// =============================================================================

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
