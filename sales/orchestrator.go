/*
orchestrator.go - The sale orchestrator façade

PURPOSE:
  Composes the amortization engine, installment ledger, state machines, and
  audit log behind the public operations. Each operation is one atomic unit:
  load state, validate transition legality and role permission, mutate,
  append the audit entry, commit. A failed operation leaves every row exactly
  as it was.

OPERATION FLOW:
  request (role, action, sale id, payload)
      │
      ▼
  WithTx ─▶ load sale + ledger snapshot
      │     validate (machine.go)
      │     mutate sale / installments
      │     append history entry
      ▼
  commit ─▶ notify collaborators (fire-and-forget, post-commit)

CONCURRENCY:
  Multiple requests for the same sale may arrive concurrently. Because the
  all-paid gate and the status write share one transaction, two racing
  financial-completion requests cannot both succeed off a stale read.

NO AUTO-ADVANCE:
  Confirming the last installment never flips financialStatus. Financial
  completion stays an explicit action by a financial actor.

SEE ALSO:
  - machine.go: Transition tables
  - ledger.go: Installment ownership
  - store.go: TxStore and Notifier contracts
*/
package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Orchestrator is the single entry point for every sale mutation.
type Orchestrator struct {
	store    TxStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(store TxStore, notifier Notifier, logger *zap.Logger) *Orchestrator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// =============================================================================
// CREATE SALE
// =============================================================================

type CreateSaleInput struct {
	OrderNumber       string // generated when empty
	Date              Date
	CustomerID        string
	SellerID          ActorID
	PaymentMethodID   string
	ServiceTypeID     string
	ServiceProviderID string
	TotalAmount       decimal.Decimal
	InstallmentsCount int
	FirstDueDate      Date // defaults to Date when zero
	Notes             string
}

// CreateSale persists a new sale with status=pending on both tracks and its
// full installment set, atomically. A sale row never exists without its
// installments.
func (o *Orchestrator) CreateSale(ctx context.Context, in CreateSaleInput, actor ActorID) (*Sale, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	firstDue := in.FirstDueDate
	if firstDue.IsZero() {
		firstDue = in.Date
	}
	drafts, err := GenerateInstallments(in.TotalAmount, in.InstallmentsCount, firstDue)
	if err != nil {
		return nil, err
	}

	now := o.now().UTC()
	sale := &Sale{
		ID:                SaleID(uuid.NewString()),
		OrderNumber:       in.OrderNumber,
		Date:              in.Date,
		CustomerID:        in.CustomerID,
		SellerID:          in.SellerID,
		PaymentMethodID:   in.PaymentMethodID,
		ServiceTypeID:     in.ServiceTypeID,
		ServiceProviderID: in.ServiceProviderID,
		TotalAmount:       in.TotalAmount,
		InstallmentsCount: in.InstallmentsCount,
		Notes:             in.Notes,
		Status:            OpPending,
		FinancialStatus:   FinPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if sale.OrderNumber == "" {
		sale.OrderNumber = generateOrderNumber(sale.ID)
	}

	err = o.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetServiceType(ctx, in.ServiceTypeID); err != nil {
			if IsNotFound(err) {
				return &ValidationError{Field: "service_type_id", Message: "unknown service type " + in.ServiceTypeID}
			}
			return err
		}
		if err := s.CreateSale(ctx, sale); err != nil {
			return err
		}
		if _, err := NewLedger(s).ReplaceAll(ctx, sale.ID, drafts); err != nil {
			return err
		}
		return s.AppendHistory(ctx, o.historyEntry(sale.ID, TrackOperational, "", string(OpPending), actor, ""))
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("sale created",
		zap.String("sale_id", string(sale.ID)),
		zap.String("order_number", sale.OrderNumber),
		zap.String("total", sale.TotalAmount.String()),
		zap.Int("installments", sale.InstallmentsCount))
	o.notifier.SaleChanged(sale.ID, ChangeCreated)

	return sale, nil
}

func validateCreate(in CreateSaleInput) error {
	switch {
	case in.CustomerID == "":
		return &ValidationError{Field: "customer_id", Message: "required"}
	case in.SellerID == "":
		return &ValidationError{Field: "seller_id", Message: "required"}
	case in.ServiceTypeID == "":
		return &ValidationError{Field: "service_type_id", Message: "required"}
	case in.Date.IsZero():
		return &ValidationError{Field: "date", Message: "required"}
	case in.TotalAmount.IsNegative():
		return &ValidationError{Field: "total_amount", Message: "must not be negative"}
	case in.InstallmentsCount < 1:
		return &ValidationError{Field: "installments_count", Message: "must be at least 1"}
	}
	return nil
}

// =============================================================================
// OPERATIONAL TRANSITION
// =============================================================================

// RequestOperationalTransition validates and applies one operational
// transition, stamping the responsible actor and recording the audit entry
// in the same transaction.
func (o *Orchestrator) RequestOperationalTransition(ctx context.Context, saleID SaleID, req OperationalRequest) (*Sale, error) {
	var sale *Sale
	err := o.store.WithTx(ctx, func(s Store) error {
		var err error
		sale, err = s.GetSale(ctx, saleID)
		if err != nil {
			return err
		}

		var svcType *ServiceType
		if req.Target == OpInProgress && sale.ServiceTypeID != "" {
			svcType, err = s.GetServiceType(ctx, sale.ServiceTypeID)
			if err != nil && !IsNotFound(err) {
				return err
			}
		}

		if err := ValidateOperational(sale, svcType, req); err != nil {
			return err
		}

		from := sale.Status
		now := o.now().UTC()
		sale.Status = req.Target
		sale.UpdatedAt = now

		note := req.Note
		switch req.Target {
		case OpInProgress:
			if req.ProviderID != "" {
				sale.ServiceProviderID = req.ProviderID
			}
			sale.ResponsibleOperationalID = req.Actor
		case OpCompleted:
			sale.ResponsibleOperationalID = req.Actor
		case OpReturned:
			sale.ReturnReason = req.ReturnReason
			sale.ResponsibleOperationalID = req.Actor
			note = req.ReturnReason
		case OpCorrected:
			// The correction note is appended to the note history, never
			// overwriting prior notes.
			if req.Note != "" {
				sale.Notes = appendNote(sale.Notes, req.Note, now)
			}
		}

		if err := s.UpdateSale(ctx, sale); err != nil {
			return err
		}
		return s.AppendHistory(ctx, o.historyEntry(saleID, TrackOperational, string(from), string(req.Target), req.Actor, note))
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("operational transition",
		zap.String("sale_id", string(saleID)),
		zap.String("to", string(req.Target)),
		zap.String("actor", string(req.Actor)),
		zap.String("role", string(req.Role)))
	o.notifier.SaleChanged(saleID, ChangeOperationalStatus)

	return sale, nil
}

// =============================================================================
// FINANCIAL TRANSITION
// =============================================================================

// RequestFinancialTransition validates and applies one financial transition.
// The all-paid gate is evaluated inside the same transaction as the status
// write, so a racing payment reversal or duplicate completion cannot slip by.
func (o *Orchestrator) RequestFinancialTransition(ctx context.Context, saleID SaleID, req FinancialRequest) (*Sale, error) {
	var sale *Sale
	err := o.store.WithTx(ctx, func(s Store) error {
		var err error
		sale, err = s.GetSale(ctx, saleID)
		if err != nil {
			return err
		}

		allPaid := false
		if req.Target == FinCompleted {
			allPaid, err = NewLedger(s).AllPaid(ctx, saleID)
			if err != nil {
				return err
			}
		}

		if err := ValidateFinancial(sale, allPaid, req); err != nil {
			return err
		}

		from := sale.FinancialStatus
		sale.FinancialStatus = req.Target
		sale.UpdatedAt = o.now().UTC()
		if req.Target == FinInProgress {
			// The financial actor claims the sale.
			sale.ResponsibleFinancialID = req.Actor
		}

		if err := s.UpdateSale(ctx, sale); err != nil {
			return err
		}
		return s.AppendHistory(ctx, o.historyEntry(saleID, TrackFinancial, string(from), string(req.Target), req.Actor, req.Note))
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("financial transition",
		zap.String("sale_id", string(saleID)),
		zap.String("to", string(req.Target)),
		zap.String("actor", string(req.Actor)))
	o.notifier.SaleChanged(saleID, ChangeFinancialStatus)

	return sale, nil
}

// =============================================================================
// PAYMENT CONFIRMATION
// =============================================================================

// ConfirmInstallmentPayment marks one installment paid and attaches the
// receipt. It never touches the sale's financial status.
func (o *Orchestrator) ConfirmInstallmentPayment(
	ctx context.Context,
	installmentID InstallmentID,
	actor ActorID,
	paymentDate Date,
	receipt ReceiptInput,
) (*Installment, error) {
	var row *Installment
	err := o.store.WithTx(ctx, func(s Store) error {
		inst, err := s.GetInstallment(ctx, installmentID)
		if err != nil {
			return err
		}
		sale, err := s.GetSale(ctx, inst.SaleID)
		if err != nil {
			return err
		}
		if sale.Status == OpCanceled {
			return &PreconditionError{Code: "sale_canceled", Message: "canceled sales accept no payments"}
		}

		row, err = NewLedger(s).ConfirmPayment(ctx, installmentID, actor, paymentDate, receipt)
		return err
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("installment paid",
		zap.String("installment_id", string(installmentID)),
		zap.Int("number", row.Number),
		zap.String("actor", string(actor)))
	o.notifier.SaleChanged(row.SaleID, ChangeInstallmentPaid)

	return row, nil
}

// =============================================================================
// OPERATIONAL COSTS
// =============================================================================

type CostInput struct {
	Description string
	Amount      decimal.Decimal
}

// RecordOperationalCost books a cost line against the sale. Costs feed the
// net-result computation but never the state machines.
func (o *Orchestrator) RecordOperationalCost(ctx context.Context, saleID SaleID, in CostInput, actor ActorID, role Role) (*OperationalCost, error) {
	switch role {
	case RoleOperational, RoleFinancial, RoleSupervisor, RoleAdmin:
	default:
		return nil, &PermissionError{Role: role, Track: TrackOperational, From: "cost", To: "cost"}
	}
	if in.Amount.IsNegative() || in.Amount.IsZero() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if in.Description == "" {
		return nil, &ValidationError{Field: "description", Message: "required"}
	}

	cost := &OperationalCost{
		ID:          uuid.NewString(),
		SaleID:      saleID,
		Description: in.Description,
		Amount:      in.Amount,
		RecordedBy:  actor,
		CreatedAt:   o.now().UTC(),
	}

	err := o.store.WithTx(ctx, func(s Store) error {
		sale, err := s.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status == OpCanceled {
			return &PreconditionError{Code: "sale_canceled", Message: "canceled sales accept no cost lines"}
		}
		return s.AddCost(ctx, *cost)
	})
	if err != nil {
		return nil, err
	}

	o.notifier.SaleChanged(saleID, ChangeCostRecorded)
	return cost, nil
}

// =============================================================================
// RE-AMORTIZATION
// =============================================================================

// RecreateInstallments is the explicit, separately-audited administrative
// re-amortization. It refuses to discard paid installments unless force is
// set; with force, the audit note records how many payments were discarded.
func (o *Orchestrator) RecreateInstallments(
	ctx context.Context,
	saleID SaleID,
	count int,
	firstDue Date,
	actor ActorID,
	role Role,
	force bool,
) ([]Installment, error) {
	if role != RoleAdmin {
		return nil, &PermissionError{Role: role, Track: TrackFinancial, From: "installments", To: "installments"}
	}

	var rows []Installment
	err := o.store.WithTx(ctx, func(s Store) error {
		sale, err := s.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status == OpCanceled {
			return &PreconditionError{Code: "sale_canceled", Message: "canceled sales accept no re-amortization"}
		}
		if sale.FinancialStatus == FinCompleted || sale.FinancialStatus == FinPaid {
			return &PreconditionError{Code: "financially_settled", Message: "cannot re-amortize a settled sale"}
		}

		led := NewLedger(s)
		paid, err := led.AnyPaid(ctx, saleID)
		if err != nil {
			return err
		}
		if paid > 0 && !force {
			return &PreconditionError{
				Code:    "paid_installments",
				Message: fmt.Sprintf("%d installment(s) already paid; re-amortization discards their history", paid),
			}
		}

		drafts, err := GenerateInstallments(sale.TotalAmount, count, firstDue)
		if err != nil {
			return err
		}
		rows, err = led.ReplaceAll(ctx, saleID, drafts)
		if err != nil {
			return err
		}

		sale.InstallmentsCount = count
		sale.UpdatedAt = o.now().UTC()
		if err := s.UpdateSale(ctx, sale); err != nil {
			return err
		}

		note := fmt.Sprintf("installments recreated: %d slices from %s", count, firstDue)
		if paid > 0 {
			note = fmt.Sprintf("%s (%d paid installment(s) discarded)", note, paid)
		}
		fin := string(sale.FinancialStatus)
		return s.AppendHistory(ctx, o.historyEntry(saleID, TrackFinancial, fin, fin, actor, note))
	})
	if err != nil {
		return nil, err
	}

	o.logger.Warn("installments recreated",
		zap.String("sale_id", string(saleID)),
		zap.Int("count", count),
		zap.Bool("force", force))
	o.notifier.SaleChanged(saleID, ChangeInstallmentsRecreated)

	return rows, nil
}

// =============================================================================
// PURGE
// =============================================================================

// PurgeSale physically deletes the sale and cascades to all dependents.
// Admin only; the one deletion path in the system.
func (o *Orchestrator) PurgeSale(ctx context.Context, saleID SaleID, actor ActorID, role Role) error {
	if role != RoleAdmin {
		return &PermissionError{Role: role, Track: TrackOperational, From: "purge", To: "purge"}
	}

	err := o.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetSale(ctx, saleID); err != nil {
			return err
		}
		return s.DeleteSaleCascade(ctx, saleID)
	})
	if err != nil {
		return err
	}

	o.logger.Warn("sale purged",
		zap.String("sale_id", string(saleID)),
		zap.String("actor", string(actor)))
	o.notifier.SaleChanged(saleID, ChangePurged)
	return nil
}

// =============================================================================
// READS
// =============================================================================

// SaleAggregate is the sale with its ledger and cost lines, installment
// statuses derived as of today.
type SaleAggregate struct {
	Sale         Sale
	Installments []Installment
	Costs        []OperationalCost
	NetResult    decimal.Decimal // totalAmount - sum(costs)
}

// GetSale loads the full aggregate from one consistent snapshot.
func (o *Orchestrator) GetSale(ctx context.Context, saleID SaleID) (*SaleAggregate, error) {
	var agg *SaleAggregate
	today := DateOf(o.now())
	err := o.store.WithTx(ctx, func(s Store) error {
		sale, err := s.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		rows, err := NewLedger(s).Installments(ctx, saleID, today)
		if err != nil {
			return err
		}
		costs, err := s.Costs(ctx, saleID)
		if err != nil {
			return err
		}

		net := sale.TotalAmount
		for _, c := range costs {
			net = net.Sub(c.Amount)
		}
		agg = &SaleAggregate{Sale: *sale, Installments: rows, Costs: costs, NetResult: net}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// History returns the sale's audit trail, oldest first.
func (o *Orchestrator) History(ctx context.Context, saleID SaleID) ([]HistoryEntry, error) {
	return o.store.History(ctx, saleID)
}

// ListSales returns all sales (lookup surface for the excluded UI layer).
func (o *Orchestrator) ListSales(ctx context.Context) ([]Sale, error) {
	return o.store.ListSales(ctx)
}

// PutServiceType upserts a catalog entry. Role checks happen at the edge;
// the catalog carries no state-machine semantics of its own.
func (o *Orchestrator) PutServiceType(ctx context.Context, st ServiceType) error {
	if st.ID == "" {
		return &ValidationError{Field: "id", Message: "required"}
	}
	if st.Name == "" {
		return &ValidationError{Field: "name", Message: "required"}
	}
	return o.store.PutServiceType(ctx, st)
}

// =============================================================================
// INTERNAL
// =============================================================================

func (o *Orchestrator) historyEntry(saleID SaleID, track Track, from, to string, actor ActorID, note string) HistoryEntry {
	return HistoryEntry{
		ID:        uuid.NewString(),
		SaleID:    saleID,
		Track:     track,
		From:      from,
		To:        to,
		ActorID:   actor,
		Note:      note,
		CreatedAt: o.now().UTC(),
	}
}

// appendNote concatenates with a timestamped delimiter; prior notes are
// never overwritten.
func appendNote(existing, note string, at time.Time) string {
	entry := "[" + at.Format("2006-01-02 15:04") + "] " + strings.TrimSpace(note)
	if existing == "" {
		return entry
	}
	return existing + "\n" + entry
}

func generateOrderNumber(id SaleID) string {
	return "OS-" + strings.ToUpper(string(id)[:8])
}
