package sales_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sales-engine/sales"
	"github.com/warp/sales-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type recordingNotifier struct {
	events []sales.ChangeKind
}

func (n *recordingNotifier) SaleChanged(_ sales.SaleID, kind sales.ChangeKind) {
	n.events = append(n.events, kind)
}

func newTestEngine(t *testing.T) (*sales.Orchestrator, *memory.Memory, *recordingNotifier) {
	t.Helper()
	store := memory.New()
	notifier := &recordingNotifier{}
	engine := sales.NewOrchestrator(store, notifier, nil)

	ctx := context.Background()
	require.NoError(t, store.PutServiceType(ctx, sales.ServiceType{
		ID: "svc-basic", Name: "Basic Service",
	}))
	require.NoError(t, store.PutServiceType(ctx, sales.ServiceType{
		ID: "svc-partner", Name: "Partner Service", RequiresProvider: true,
	}))
	return engine, store, notifier
}

func createInput() sales.CreateSaleInput {
	return sales.CreateSaleInput{
		Date:              sales.NewDate(2026, time.January, 10),
		CustomerID:        "cust-1",
		SellerID:          "seller-1",
		ServiceTypeID:     "svc-basic",
		TotalAmount:       sales.MustParseDecimal("1000.00"),
		InstallmentsCount: 3,
	}
}

func mustCreate(t *testing.T, engine *sales.Orchestrator) *sales.Sale {
	t.Helper()
	sale, err := engine.CreateSale(context.Background(), createInput(), "seller-1")
	require.NoError(t, err)
	return sale
}

func advanceOp(t *testing.T, engine *sales.Orchestrator, id sales.SaleID, target sales.OperationalStatus) {
	t.Helper()
	_, err := engine.RequestOperationalTransition(context.Background(), id, sales.OperationalRequest{
		Target: target, Actor: "op-1", Role: sales.RoleOperational,
	})
	require.NoError(t, err)
}

func advanceFin(t *testing.T, engine *sales.Orchestrator, id sales.SaleID, target sales.FinancialStatus) {
	t.Helper()
	_, err := engine.RequestFinancialTransition(context.Background(), id, sales.FinancialRequest{
		Target: target, Actor: "fin-1", Role: sales.RoleFinancial,
	})
	require.NoError(t, err)
}

func payAll(t *testing.T, engine *sales.Orchestrator, store *memory.Memory, id sales.SaleID) {
	t.Helper()
	ctx := context.Background()
	rows, err := store.Installments(ctx, id)
	require.NoError(t, err)
	for _, row := range rows {
		_, err := engine.ConfirmInstallmentPayment(ctx, row.ID, "fin-1",
			sales.NewDate(2026, time.February, 1), sales.ReceiptInput{})
		require.NoError(t, err)
	}
}

// =============================================================================
// CREATE SALE
// =============================================================================

func TestCreateSale_PersistsSaleWithInstallments(t *testing.T) {
	// GIVEN: A valid 1000.00 / 3 sale
	// WHEN: Creating it
	// THEN: Sale, installments, and the creation audit entry all exist,
	//       both tracks start pending

	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	sale := mustCreate(t, engine)
	assert.Equal(t, sales.OpPending, sale.Status)
	assert.Equal(t, sales.FinPending, sale.FinancialStatus)
	assert.True(t, strings.HasPrefix(sale.OrderNumber, "OS-"), "order number generated")

	rows, err := store.Installments(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "333.33", rows[0].Amount.StringFixed(2))
	assert.Equal(t, "333.34", rows[2].Amount.StringFixed(2))

	entries, err := engine.History(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, sales.TrackOperational, entries[0].Track)
	assert.Equal(t, string(sales.OpPending), entries[0].To)
}

func TestCreateSale_UnknownServiceType_NothingPersisted(t *testing.T) {
	// GIVEN: An input referencing a service type not in the catalog
	// WHEN: Creating
	// THEN: Validation error, and no sale row survives the rolled-back
	//       transaction

	engine, store, notifier := newTestEngine(t)
	ctx := context.Background()

	in := createInput()
	in.ServiceTypeID = "svc-ghost"
	_, err := engine.CreateSale(ctx, in, "seller-1")
	assert.ErrorIs(t, err, sales.ErrValidation)

	all, err := store.ListSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "no sale without its installments, no sale at all on failure")
	assert.Empty(t, notifier.events, "no notification for a failed operation")
}

func TestCreateSale_DuplicateOrderNumber(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	in := createInput()
	in.OrderNumber = "OS-FIXED"
	_, err := engine.CreateSale(ctx, in, "seller-1")
	require.NoError(t, err)

	_, err = engine.CreateSale(ctx, in, "seller-1")
	assert.ErrorIs(t, err, sales.ErrDuplicateOrderNumber)
}

func TestCreateSale_ValidationFailures(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*sales.CreateSaleInput)
	}{
		{"missing customer", func(in *sales.CreateSaleInput) { in.CustomerID = "" }},
		{"missing seller", func(in *sales.CreateSaleInput) { in.SellerID = "" }},
		{"missing service type", func(in *sales.CreateSaleInput) { in.ServiceTypeID = "" }},
		{"zero date", func(in *sales.CreateSaleInput) { in.Date = sales.Date{} }},
		{"negative total", func(in *sales.CreateSaleInput) { in.TotalAmount = sales.MustParseDecimal("-1") }},
		{"zero installments", func(in *sales.CreateSaleInput) { in.InstallmentsCount = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := createInput()
			tc.mutate(&in)
			_, err := engine.CreateSale(ctx, in, "seller-1")
			assert.ErrorIs(t, err, sales.ErrValidation)
		})
	}
}

// =============================================================================
// OPERATIONAL TRANSITIONS
// =============================================================================

func TestOperationalTransition_StampsResponsible(t *testing.T) {
	// GIVEN: A pending sale
	// WHEN: op-7 starts execution
	// THEN: The sale is in_progress with op-7 as the responsible actor

	engine, _, _ := newTestEngine(t)
	sale := mustCreate(t, engine)

	updated, err := engine.RequestOperationalTransition(context.Background(), sale.ID, sales.OperationalRequest{
		Target: sales.OpInProgress, Actor: "op-7", Role: sales.RoleOperational,
	})
	require.NoError(t, err)

	assert.Equal(t, sales.OpInProgress, updated.Status)
	assert.Equal(t, sales.ActorID("op-7"), updated.ResponsibleOperationalID)
}

func TestOperationalTransition_ReturnRecordsReason(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	sale := mustCreate(t, engine)
	advanceOp(t, engine, sale.ID, sales.OpInProgress)

	updated, err := engine.RequestOperationalTransition(context.Background(), sale.ID, sales.OperationalRequest{
		Target:       sales.OpReturned,
		Actor:        "op-1",
		Role:         sales.RoleOperational,
		ReturnReason: "wrong contract attached",
	})
	require.NoError(t, err)
	assert.Equal(t, "wrong contract attached", updated.ReturnReason)

	entries, err := engine.History(context.Background(), sale.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, "wrong contract attached", last.Note, "reason lands in the audit note")
}

func TestOperationalTransition_SellerResubmissionAppendsNote(t *testing.T) {
	// GIVEN: A returned sale with existing notes
	// WHEN: The seller resubmits with a correction note, twice around the loop
	// THEN: Notes accumulate with timestamped delimiters; nothing is overwritten

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	in := createInput()
	in.Notes = "original note"
	sale, err := engine.CreateSale(ctx, in, "seller-1")
	require.NoError(t, err)

	advanceOp(t, engine, sale.ID, sales.OpInProgress)
	_, err = engine.RequestOperationalTransition(ctx, sale.ID, sales.OperationalRequest{
		Target: sales.OpReturned, Actor: "op-1", Role: sales.RoleOperational,
		ReturnReason: "missing signature",
	})
	require.NoError(t, err)

	updated, err := engine.RequestOperationalTransition(ctx, sale.ID, sales.OperationalRequest{
		Target: sales.OpCorrected, Actor: "seller-1", Role: sales.RoleSeller,
		Note: "collected the signature",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(updated.Notes, "original note\n"), "prior notes survive")
	assert.Contains(t, updated.Notes, "collected the signature")
	assert.Contains(t, updated.Notes, "[", "correction note carries a timestamp delimiter")
}

func TestOperationalTransition_AttachesProvider(t *testing.T) {
	// GIVEN: A sale on a provider-requiring service type
	// WHEN: Execution starts with a provider on the request
	// THEN: The provider is attached to the sale

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	in := createInput()
	in.ServiceTypeID = "svc-partner"
	sale, err := engine.CreateSale(ctx, in, "seller-1")
	require.NoError(t, err)

	// Without a provider the precondition blocks.
	_, err = engine.RequestOperationalTransition(ctx, sale.ID, sales.OperationalRequest{
		Target: sales.OpInProgress, Actor: "op-1", Role: sales.RoleOperational,
	})
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed)

	updated, err := engine.RequestOperationalTransition(ctx, sale.ID, sales.OperationalRequest{
		Target: sales.OpInProgress, Actor: "op-1", Role: sales.RoleOperational,
		ProviderID: "provider-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "provider-9", updated.ServiceProviderID)
}

func TestOperationalTransition_FailedAttemptLeavesNoTrace(t *testing.T) {
	// GIVEN: A pending sale
	// WHEN: A seller attempts an execution transition (denied)
	// THEN: Status unchanged and no audit entry written

	engine, _, notifier := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)
	notifier.events = nil

	_, err := engine.RequestOperationalTransition(ctx, sale.ID, sales.OperationalRequest{
		Target: sales.OpInProgress, Actor: "seller-1", Role: sales.RoleSeller,
	})
	assert.ErrorIs(t, err, sales.ErrPermissionDenied)

	agg, err := engine.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.OpPending, agg.Sale.Status)

	entries, err := engine.History(ctx, sale.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the creation entry exists")
	assert.Empty(t, notifier.events)
}

// =============================================================================
// FINANCIAL GATE
// =============================================================================

func TestFinancialCompletion_BlockedUntilAllPaid(t *testing.T) {
	// GIVEN: A 3-installment sale with 2 of 3 paid, financially in progress
	// WHEN: Completion is requested
	// THEN: Blocked; after the third payment the same request succeeds

	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)
	advanceFin(t, engine, sale.ID, sales.FinInProgress)

	rows, err := store.Installments(ctx, sale.ID)
	require.NoError(t, err)
	for _, row := range rows[:2] {
		_, err := engine.ConfirmInstallmentPayment(ctx, row.ID, "fin-1",
			sales.NewDate(2026, time.February, 1), sales.ReceiptInput{})
		require.NoError(t, err)
	}

	_, err = engine.RequestFinancialTransition(ctx, sale.ID, sales.FinancialRequest{
		Target: sales.FinCompleted, Actor: "fin-1", Role: sales.RoleFinancial,
	})
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed)

	_, err = engine.ConfirmInstallmentPayment(ctx, rows[2].ID, "fin-1",
		sales.NewDate(2026, time.February, 2), sales.ReceiptInput{})
	require.NoError(t, err)

	updated, err := engine.RequestFinancialTransition(ctx, sale.ID, sales.FinancialRequest{
		Target: sales.FinCompleted, Actor: "fin-1", Role: sales.RoleFinancial,
	})
	require.NoError(t, err)
	assert.Equal(t, sales.FinCompleted, updated.FinancialStatus)
}

func TestFinancial_NoAutoAdvanceOnLastPayment(t *testing.T) {
	// GIVEN: A sale financially in progress
	// WHEN: The last installment is confirmed paid
	// THEN: financialStatus stays in_progress; completion is an explicit act

	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)
	advanceFin(t, engine, sale.ID, sales.FinInProgress)
	payAll(t, engine, store, sale.ID)

	agg, err := engine.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.FinInProgress, agg.Sale.FinancialStatus)
}

func TestFinancialSettlement_RequiresOperationalCompletion(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)

	advanceOp(t, engine, sale.ID, sales.OpInProgress)
	advanceFin(t, engine, sale.ID, sales.FinInProgress)
	payAll(t, engine, store, sale.ID)
	advanceFin(t, engine, sale.ID, sales.FinCompleted)

	_, err := engine.RequestFinancialTransition(ctx, sale.ID, sales.FinancialRequest{
		Target: sales.FinPaid, Actor: "fin-1", Role: sales.RoleFinancial,
	})
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed, "work still in progress")

	advanceOp(t, engine, sale.ID, sales.OpCompleted)

	updated, err := engine.RequestFinancialTransition(ctx, sale.ID, sales.FinancialRequest{
		Target: sales.FinPaid, Actor: "fin-1", Role: sales.RoleFinancial,
	})
	require.NoError(t, err)
	assert.Equal(t, sales.FinPaid, updated.FinancialStatus)
}

// =============================================================================
// CANCELED SALES ACCEPT NO MUTATION
// =============================================================================

func TestCanceledSale_RejectsEverything(t *testing.T) {
	// GIVEN: An admin-canceled sale
	// WHEN: Payments, costs, re-amortization, and transitions are attempted
	// THEN: All rejected

	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)

	_, err := engine.RequestOperationalTransition(ctx, sale.ID, sales.OperationalRequest{
		Target: sales.OpCanceled, Actor: "admin-1", Role: sales.RoleAdmin,
	})
	require.NoError(t, err)

	rows, err := store.Installments(ctx, sale.ID)
	require.NoError(t, err)
	_, err = engine.ConfirmInstallmentPayment(ctx, rows[0].ID, "fin-1",
		sales.NewDate(2026, time.February, 1), sales.ReceiptInput{})
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed, "no payments")

	_, err = engine.RecordOperationalCost(ctx, sale.ID, sales.CostInput{
		Description: "fuel", Amount: sales.MustParseDecimal("50.00"),
	}, "op-1", sales.RoleOperational)
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed, "no costs")

	_, err = engine.RecreateInstallments(ctx, sale.ID, 2,
		sales.NewDate(2026, time.March, 1), "admin-1", sales.RoleAdmin, false)
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed, "no re-amortization")

	_, err = engine.RequestFinancialTransition(ctx, sale.ID, sales.FinancialRequest{
		Target: sales.FinInProgress, Actor: "fin-1", Role: sales.RoleFinancial,
	})
	assert.ErrorIs(t, err, sales.ErrIllegalTransition, "no financial transitions")

	_, err = engine.RequestOperationalTransition(ctx, sale.ID, sales.OperationalRequest{
		Target: sales.OpInProgress, Actor: "admin-1", Role: sales.RoleAdmin,
	})
	assert.ErrorIs(t, err, sales.ErrIllegalTransition, "no operational transitions")
}

// =============================================================================
// COSTS AND NET RESULT
// =============================================================================

func TestRecordCost_FeedsNetResult(t *testing.T) {
	// GIVEN: A 1000.00 sale
	// WHEN: Costs of 120.50 and 30.00 are booked
	// THEN: The aggregate's net result is 849.50

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)

	_, err := engine.RecordOperationalCost(ctx, sale.ID, sales.CostInput{
		Description: "courier", Amount: sales.MustParseDecimal("120.50"),
	}, "op-1", sales.RoleOperational)
	require.NoError(t, err)
	_, err = engine.RecordOperationalCost(ctx, sale.ID, sales.CostInput{
		Description: "printing", Amount: sales.MustParseDecimal("30.00"),
	}, "fin-1", sales.RoleFinancial)
	require.NoError(t, err)

	agg, err := engine.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, agg.Costs, 2)
	assert.Equal(t, "849.50", agg.NetResult.StringFixed(2))
}

func TestRecordCost_Rejections(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)

	_, err := engine.RecordOperationalCost(ctx, sale.ID, sales.CostInput{
		Description: "x", Amount: sales.MustParseDecimal("1.00"),
	}, "seller-1", sales.RoleSeller)
	assert.ErrorIs(t, err, sales.ErrPermissionDenied, "sellers do not book costs")

	_, err = engine.RecordOperationalCost(ctx, sale.ID, sales.CostInput{
		Description: "x", Amount: sales.MustParseDecimal("0.00"),
	}, "op-1", sales.RoleOperational)
	assert.ErrorIs(t, err, sales.ErrValidation, "amount must be positive")

	_, err = engine.RecordOperationalCost(ctx, sale.ID, sales.CostInput{
		Amount: sales.MustParseDecimal("1.00"),
	}, "op-1", sales.RoleOperational)
	assert.ErrorIs(t, err, sales.ErrValidation, "description required")
}

// =============================================================================
// RE-AMORTIZATION
// =============================================================================

func TestRecreateInstallments_AdminOnly(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	sale := mustCreate(t, engine)

	for _, role := range []sales.Role{sales.RoleSeller, sales.RoleOperational, sales.RoleFinancial, sales.RoleSupervisor} {
		_, err := engine.RecreateInstallments(context.Background(), sale.ID, 2,
			sales.NewDate(2026, time.March, 1), "actor", role, false)
		assert.ErrorIs(t, err, sales.ErrPermissionDenied, "role %s", role)
	}
}

func TestRecreateInstallments_PaidBlocksWithoutForce(t *testing.T) {
	// GIVEN: One installment already paid
	// WHEN: Re-amortizing without force
	// THEN: Blocked; with force it succeeds and the audit note records the
	//       discarded payment count

	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)

	rows, err := store.Installments(ctx, sale.ID)
	require.NoError(t, err)
	_, err = engine.ConfirmInstallmentPayment(ctx, rows[0].ID, "fin-1",
		sales.NewDate(2026, time.January, 20), sales.ReceiptInput{})
	require.NoError(t, err)

	_, err = engine.RecreateInstallments(ctx, sale.ID, 2,
		sales.NewDate(2026, time.March, 1), "admin-1", sales.RoleAdmin, false)
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed)

	newRows, err := engine.RecreateInstallments(ctx, sale.ID, 2,
		sales.NewDate(2026, time.March, 1), "admin-1", sales.RoleAdmin, true)
	require.NoError(t, err)
	require.Len(t, newRows, 2)
	assert.Equal(t, "500.00", newRows[0].Amount.StringFixed(2))

	agg, err := engine.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Sale.InstallmentsCount)

	entries, err := engine.History(ctx, sale.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Contains(t, last.Note, "1 paid installment(s) discarded")
}

func TestRecreateInstallments_SettledSaleBlocked(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)

	advanceOp(t, engine, sale.ID, sales.OpInProgress)
	advanceOp(t, engine, sale.ID, sales.OpCompleted)
	advanceFin(t, engine, sale.ID, sales.FinInProgress)
	payAll(t, engine, store, sale.ID)
	advanceFin(t, engine, sale.ID, sales.FinCompleted)

	_, err := engine.RecreateInstallments(ctx, sale.ID, 2,
		sales.NewDate(2026, time.June, 1), "admin-1", sales.RoleAdmin, true)
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed, "settled sales keep their ledger")
}

// =============================================================================
// PURGE
// =============================================================================

func TestPurgeSale_CascadesEverything(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)

	err := engine.PurgeSale(ctx, sale.ID, "op-1", sales.RoleOperational)
	assert.ErrorIs(t, err, sales.ErrPermissionDenied, "admin only")

	require.NoError(t, engine.PurgeSale(ctx, sale.ID, "admin-1", sales.RoleAdmin))

	_, err = store.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, sales.ErrNotFound)
	rows, err := store.Installments(ctx, sale.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	entries, err := store.History(ctx, sale.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func TestHistory_ReplaysToCurrentState(t *testing.T) {
	// GIVEN: A sale pushed through both lifecycles
	// WHEN: Replaying the audit trail
	// THEN: The folded statuses match the stored sale exactly

	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)

	advanceOp(t, engine, sale.ID, sales.OpInProgress)
	advanceFin(t, engine, sale.ID, sales.FinInProgress)
	payAll(t, engine, store, sale.ID)
	advanceFin(t, engine, sale.ID, sales.FinCompleted)
	advanceOp(t, engine, sale.ID, sales.OpCompleted)
	advanceFin(t, engine, sale.ID, sales.FinPaid)

	entries, err := engine.History(ctx, sale.ID)
	require.NoError(t, err)

	agg, err := engine.GetSale(ctx, sale.ID)
	require.NoError(t, err)

	assert.Equal(t, agg.Sale.Status, sales.ReplayOperational(entries))
	assert.Equal(t, agg.Sale.FinancialStatus, sales.ReplayFinancial(entries))

	// Every accepted transition is one entry: creation + 2 operational +
	// 3 financial.
	assert.Len(t, entries, 6)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestNotifications_FireAfterSuccessfulCommits(t *testing.T) {
	engine, store, notifier := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)

	advanceOp(t, engine, sale.ID, sales.OpInProgress)
	rows, err := store.Installments(ctx, sale.ID)
	require.NoError(t, err)
	_, err = engine.ConfirmInstallmentPayment(ctx, rows[0].ID, "fin-1",
		sales.NewDate(2026, time.February, 1), sales.ReceiptInput{})
	require.NoError(t, err)

	assert.Equal(t, []sales.ChangeKind{
		sales.ChangeCreated,
		sales.ChangeOperationalStatus,
		sales.ChangeInstallmentPaid,
	}, notifier.events)
}

// =============================================================================
// END TO END
// =============================================================================

func TestFullLifecycle_ReturnLoopThenSettlement(t *testing.T) {
	// GIVEN: A fresh sale
	// WHEN: It is executed, returned, corrected by its seller, re-executed,
	//       completed, collected in full, and settled
	// THEN: Both tracks land on their happy terminal statuses with a complete
	//       audit trail

	engine, store, _ := newTestEngine(t)
	ctx := context.Background()
	sale := mustCreate(t, engine)

	advanceOp(t, engine, sale.ID, sales.OpInProgress)

	_, err := engine.RequestOperationalTransition(ctx, sale.ID, sales.OperationalRequest{
		Target: sales.OpReturned, Actor: "op-1", Role: sales.RoleOperational,
		ReturnReason: "client data incomplete",
	})
	require.NoError(t, err)

	_, err = engine.RequestOperationalTransition(ctx, sale.ID, sales.OperationalRequest{
		Target: sales.OpCorrected, Actor: "seller-1", Role: sales.RoleSeller,
		Note: "filled in the missing client data",
	})
	require.NoError(t, err)

	advanceOp(t, engine, sale.ID, sales.OpInProgress)
	advanceOp(t, engine, sale.ID, sales.OpCompleted)

	advanceFin(t, engine, sale.ID, sales.FinInProgress)
	payAll(t, engine, store, sale.ID)
	advanceFin(t, engine, sale.ID, sales.FinCompleted)
	advanceFin(t, engine, sale.ID, sales.FinPaid)

	agg, err := engine.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sales.OpCompleted, agg.Sale.Status)
	assert.Equal(t, sales.FinPaid, agg.Sale.FinancialStatus)
	for _, row := range agg.Installments {
		assert.Equal(t, sales.InstallmentPaid, row.Status)
	}

	entries, err := engine.History(ctx, sale.ID)
	require.NoError(t, err)
	// creation + 5 operational + 3 financial
	assert.Len(t, entries, 9)
	assert.Equal(t, agg.Sale.Status, sales.ReplayOperational(entries))
	assert.Equal(t, agg.Sale.FinancialStatus, sales.ReplayFinancial(entries))
}
