package sales_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/sales-engine/sales"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func saleIn(op sales.OperationalStatus, fin sales.FinancialStatus) *sales.Sale {
	return &sales.Sale{
		ID:              "sale-1",
		SellerID:        "seller-1",
		ServiceTypeID:   "svc-basic",
		Status:          op,
		FinancialStatus: fin,
	}
}

func opReq(target sales.OperationalStatus, role sales.Role) sales.OperationalRequest {
	return sales.OperationalRequest{Target: target, Actor: "actor-1", Role: role}
}

// =============================================================================
// OPERATIONAL TRACK - LEGALITY
// =============================================================================

func TestValidateOperational_LegalPairs(t *testing.T) {
	// GIVEN: Each transition the operational table allows
	// WHEN: Requested by an operational actor with all preconditions satisfied
	// THEN: Validation passes

	cases := []struct {
		from, to sales.OperationalStatus
	}{
		{sales.OpPending, sales.OpInProgress},
		{sales.OpInProgress, sales.OpCompleted},
		{sales.OpInProgress, sales.OpReturned},
		{sales.OpReturned, sales.OpInProgress},
		{sales.OpCorrected, sales.OpInProgress},
		{sales.OpCorrected, sales.OpReturned},
	}

	for _, tc := range cases {
		req := opReq(tc.to, sales.RoleOperational)
		req.ReturnReason = "missing paperwork" // satisfies the returned precondition
		err := sales.ValidateOperational(saleIn(tc.from, sales.FinPending), nil, req)
		assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
	}
}

func TestValidateOperational_IllegalPairs(t *testing.T) {
	// GIVEN: Pairs absent from the table
	// WHEN: Requested even by an admin
	// THEN: IllegalTransitionError, regardless of role

	cases := []struct {
		from, to sales.OperationalStatus
	}{
		{sales.OpPending, sales.OpCompleted},  // skipping execution
		{sales.OpPending, sales.OpCorrected},  // nothing to correct
		{sales.OpCompleted, sales.OpReturned}, // terminal
		{sales.OpCompleted, sales.OpInProgress},
		{sales.OpCanceled, sales.OpInProgress}, // terminal
		{sales.OpCanceled, sales.OpCanceled},
		{sales.OpInProgress, sales.OpCorrected},
	}

	for _, tc := range cases {
		err := sales.ValidateOperational(saleIn(tc.from, sales.FinPending), nil, opReq(tc.to, sales.RoleAdmin))
		assert.ErrorIs(t, err, sales.ErrIllegalTransition, "%s -> %s", tc.from, tc.to)
	}
}

func TestValidateOperational_TerminalStatesFrozen(t *testing.T) {
	// GIVEN: A completed or canceled sale
	// WHEN: Any operational target is requested
	// THEN: Every transition is illegal

	targets := []sales.OperationalStatus{
		sales.OpPending, sales.OpInProgress, sales.OpReturned,
		sales.OpCorrected, sales.OpCompleted, sales.OpCanceled,
	}
	for _, from := range []sales.OperationalStatus{sales.OpCompleted, sales.OpCanceled} {
		for _, to := range targets {
			err := sales.ValidateOperational(saleIn(from, sales.FinPending), nil, opReq(to, sales.RoleAdmin))
			assert.ErrorIs(t, err, sales.ErrIllegalTransition, "%s -> %s", from, to)
		}
	}
}

// =============================================================================
// OPERATIONAL TRACK - ROLES
// =============================================================================

func TestValidateOperational_RoleGuards(t *testing.T) {
	// GIVEN: Legal pairs requested by roles the table does not allow
	// WHEN: Validating
	// THEN: PermissionError (legality passes, authority fails)

	cases := []struct {
		from, to sales.OperationalStatus
		role     sales.Role
	}{
		{sales.OpPending, sales.OpInProgress, sales.RoleSeller},
		{sales.OpPending, sales.OpInProgress, sales.RoleFinancial},
		{sales.OpInProgress, sales.OpCompleted, sales.RoleSeller},
		{sales.OpPending, sales.OpCanceled, sales.RoleOperational},  // cancel is admin only
		{sales.OpInProgress, sales.OpCanceled, sales.RoleSupervisor},
		{sales.OpReturned, sales.OpCorrected, sales.RoleOperational}, // correction is supervisor/admin
	}

	for _, tc := range cases {
		err := sales.ValidateOperational(saleIn(tc.from, sales.FinPending), nil, opReq(tc.to, tc.role))
		assert.ErrorIs(t, err, sales.ErrPermissionDenied, "%s -> %s as %s", tc.from, tc.to, tc.role)
	}
}

func TestValidateOperational_CancelAdminOnly(t *testing.T) {
	// GIVEN: A non-terminal sale
	// WHEN: An admin cancels it
	// THEN: Allowed from every non-terminal status

	for _, from := range []sales.OperationalStatus{
		sales.OpPending, sales.OpInProgress, sales.OpReturned, sales.OpCorrected,
	} {
		err := sales.ValidateOperational(saleIn(from, sales.FinPending), nil, opReq(sales.OpCanceled, sales.RoleAdmin))
		assert.NoError(t, err, "admin cancel from %s", from)
	}
}

// =============================================================================
// OPERATIONAL TRACK - SELLER RESUBMISSION
// =============================================================================

func TestValidateOperational_SellerResubmitsOwnSale(t *testing.T) {
	// GIVEN: A returned sale owned by seller-1
	// WHEN: seller-1 resubmits it as corrected with a note
	// THEN: Allowed despite seller not being in the correction roles

	sale := saleIn(sales.OpReturned, sales.FinPending)
	req := sales.OperationalRequest{
		Target: sales.OpCorrected,
		Actor:  "seller-1",
		Role:   sales.RoleSeller,
		Note:   "resent contract with the right CNPJ",
	}
	assert.NoError(t, sales.ValidateOperational(sale, nil, req))
}

func TestValidateOperational_SellerResubmissionRequiresNote(t *testing.T) {
	// GIVEN: seller-1 resubmitting their own returned sale
	// WHEN: No correction note is supplied
	// THEN: PreconditionError - the note is what the operational team reads

	sale := saleIn(sales.OpReturned, sales.FinPending)
	req := sales.OperationalRequest{
		Target: sales.OpCorrected,
		Actor:  "seller-1",
		Role:   sales.RoleSeller,
	}
	err := sales.ValidateOperational(sale, nil, req)
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed)
}

func TestValidateOperational_OtherSellerCannotResubmit(t *testing.T) {
	// GIVEN: A returned sale owned by seller-1
	// WHEN: A different seller tries to resubmit it
	// THEN: PermissionError - ownership is part of the special case

	sale := saleIn(sales.OpReturned, sales.FinPending)
	req := sales.OperationalRequest{
		Target: sales.OpCorrected,
		Actor:  "seller-2",
		Role:   sales.RoleSeller,
		Note:   "fixed",
	}
	err := sales.ValidateOperational(sale, nil, req)
	assert.ErrorIs(t, err, sales.ErrPermissionDenied)
}

// =============================================================================
// OPERATIONAL TRACK - PRECONDITIONS
// =============================================================================

func TestValidateOperational_ReturnNeedsReason(t *testing.T) {
	err := sales.ValidateOperational(saleIn(sales.OpInProgress, sales.FinPending), nil,
		opReq(sales.OpReturned, sales.RoleOperational))
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed)
}

func TestValidateOperational_ExecutionNeedsServiceType(t *testing.T) {
	sale := saleIn(sales.OpPending, sales.FinPending)
	sale.ServiceTypeID = ""
	err := sales.ValidateOperational(sale, nil, opReq(sales.OpInProgress, sales.RoleOperational))
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed)
}

func TestValidateOperational_ProviderRequiredByServiceType(t *testing.T) {
	// GIVEN: A service type that requires a partner provider
	// WHEN: Execution starts without a provider on the sale or the request
	// THEN: PreconditionError; supplying either satisfies it

	svc := &sales.ServiceType{ID: "svc-partner", Name: "Partner Job", RequiresProvider: true}
	sale := saleIn(sales.OpPending, sales.FinPending)

	err := sales.ValidateOperational(sale, svc, opReq(sales.OpInProgress, sales.RoleOperational))
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed)

	req := opReq(sales.OpInProgress, sales.RoleOperational)
	req.ProviderID = "provider-9"
	assert.NoError(t, sales.ValidateOperational(sale, svc, req))

	sale.ServiceProviderID = "provider-3"
	assert.NoError(t, sales.ValidateOperational(sale, svc, opReq(sales.OpInProgress, sales.RoleOperational)))
}

// =============================================================================
// FINANCIAL TRACK
// =============================================================================

func finReq(target sales.FinancialStatus, role sales.Role) sales.FinancialRequest {
	return sales.FinancialRequest{Target: target, Actor: "fin-1", Role: role}
}

func TestValidateFinancial_HappyPath(t *testing.T) {
	// GIVEN: The financial ladder pending -> in_progress -> completed -> paid
	// WHEN: A financial actor climbs it with gates satisfied
	// THEN: Each step validates

	assert.NoError(t, sales.ValidateFinancial(
		saleIn(sales.OpInProgress, sales.FinPending), false, finReq(sales.FinInProgress, sales.RoleFinancial)))

	assert.NoError(t, sales.ValidateFinancial(
		saleIn(sales.OpInProgress, sales.FinInProgress), true, finReq(sales.FinCompleted, sales.RoleFinancial)))

	assert.NoError(t, sales.ValidateFinancial(
		saleIn(sales.OpCompleted, sales.FinCompleted), true, finReq(sales.FinPaid, sales.RoleFinancial)))
}

func TestValidateFinancial_NoSkipping(t *testing.T) {
	// GIVEN: The ladder has no shortcuts
	// WHEN: Skipping a rung or moving backwards
	// THEN: IllegalTransitionError

	cases := []struct {
		from, to sales.FinancialStatus
	}{
		{sales.FinPending, sales.FinCompleted},
		{sales.FinPending, sales.FinPaid},
		{sales.FinInProgress, sales.FinPaid},
		{sales.FinCompleted, sales.FinPending},
		{sales.FinPaid, sales.FinCompleted},
		{sales.FinPaid, sales.FinPaid},
	}
	for _, tc := range cases {
		err := sales.ValidateFinancial(saleIn(sales.OpCompleted, tc.from), true, finReq(tc.to, sales.RoleAdmin))
		assert.ErrorIs(t, err, sales.ErrIllegalTransition, "%s -> %s", tc.from, tc.to)
	}
}

func TestValidateFinancial_RoleGuard(t *testing.T) {
	for _, role := range []sales.Role{sales.RoleSeller, sales.RoleOperational, sales.RoleSupervisor} {
		err := sales.ValidateFinancial(
			saleIn(sales.OpInProgress, sales.FinPending), false, finReq(sales.FinInProgress, role))
		assert.ErrorIs(t, err, sales.ErrPermissionDenied, "role %s", role)
	}
}

func TestValidateFinancial_AllPaidGate(t *testing.T) {
	// GIVEN: A sale in financial collection
	// WHEN: Completion is requested while an installment is unpaid
	// THEN: PreconditionError with the incomplete_payments code

	err := sales.ValidateFinancial(
		saleIn(sales.OpInProgress, sales.FinInProgress), false, finReq(sales.FinCompleted, sales.RoleFinancial))
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed)

	var pre *sales.PreconditionError
	assert.ErrorAs(t, err, &pre)
	assert.Equal(t, "incomplete_payments", pre.Code)
}

func TestValidateFinancial_SettlementNeedsOperationalDone(t *testing.T) {
	// GIVEN: Collection complete but the work not operationally completed
	// WHEN: Settlement (paid) is requested
	// THEN: PreconditionError with the operational_incomplete code

	err := sales.ValidateFinancial(
		saleIn(sales.OpInProgress, sales.FinCompleted), true, finReq(sales.FinPaid, sales.RoleFinancial))
	assert.ErrorIs(t, err, sales.ErrPreconditionFailed)

	var pre *sales.PreconditionError
	assert.ErrorAs(t, err, &pre)
	assert.Equal(t, "operational_incomplete", pre.Code)
}

func TestValidateFinancial_CanceledKillsBothTracks(t *testing.T) {
	// GIVEN: A canceled sale
	// WHEN: Any financial transition is requested
	// THEN: IllegalTransitionError even where the financial pair is legal

	err := sales.ValidateFinancial(
		saleIn(sales.OpCanceled, sales.FinPending), true, finReq(sales.FinInProgress, sales.RoleAdmin))
	assert.ErrorIs(t, err, sales.ErrIllegalTransition)
}
