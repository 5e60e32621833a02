/*
machine.go - The two state machines governing a sale

PURPOSE:
  One explicit transition table per track, checked in one place. The original
  system scattered ad-hoc status string comparisons across request handlers;
  here an illegal transition is rejected uniformly, whatever the entry point.

OPERATIONAL TRACK:
  pending ──▶ in_progress ──▶ completed (terminal)
     │  ▲          │
     ▼  │          ▼
  returned ◀── (return loop, needs a reason)
     │
     ▼
  corrected ──▶ in_progress
  any non-terminal ──▶ canceled (admin only, terminal)

FINANCIAL TRACK:
  pending ──▶ in_progress ──▶ completed ──▶ paid
                      (all-paid gate)  (operational done gate)

ERROR ORDER:
  1. Pair not in the table        -> IllegalTransitionError
  2. Role not allowed for pair    -> PermissionError
  3. Business rule blocks it now  -> PreconditionError

  A canceled sale accepts no mutation of any kind; the orchestrator enforces
  that for non-transition operations too.

SEE ALSO:
  - orchestrator.go: Applies side effects (responsible stamps, note history)
    and commits atomically with the audit entry
*/
package sales

// Track disambiguates which status field a transition (and its audit entry)
// belongs to.
type Track string

const (
	TrackOperational Track = "operational"
	TrackFinancial   Track = "financial"
)

// =============================================================================
// TRANSITION REQUESTS
// =============================================================================

// OperationalRequest is one requested operational transition.
type OperationalRequest struct {
	Target OperationalStatus
	Actor  ActorID
	Role   Role

	// ReturnReason is mandatory when Target is returned.
	ReturnReason string

	// Note carries the seller's mandatory correction note on resubmission;
	// optional context otherwise.
	Note string

	// ProviderID optionally attaches a partner provider when execution starts.
	ProviderID string
}

// FinancialRequest is one requested financial transition.
type FinancialRequest struct {
	Target FinancialStatus
	Actor  ActorID
	Role   Role
	Note   string
}

// =============================================================================
// OPERATIONAL TRANSITION TABLE
// =============================================================================

var executionRoles = []Role{RoleOperational, RoleAdmin, RoleSupervisor}
var correctionRoles = []Role{RoleSupervisor, RoleAdmin}
var adminOnly = []Role{RoleAdmin}

// operationalTable maps from -> to -> roles allowed. A pair absent from the
// table is illegal for every role. Terminal states have no entries.
var operationalTable = map[OperationalStatus]map[OperationalStatus][]Role{
	OpPending: {
		OpInProgress: executionRoles,
		OpReturned:   executionRoles,
		OpCanceled:   adminOnly,
	},
	OpInProgress: {
		OpCompleted: executionRoles,
		OpReturned:  executionRoles,
		OpCanceled:  adminOnly,
	},
	OpReturned: {
		OpInProgress: executionRoles,
		OpCorrected:  correctionRoles, // plus the sale's own seller, see below
		OpCanceled:   adminOnly,
	},
	OpCorrected: {
		OpInProgress: executionRoles,
		OpReturned:   executionRoles,
		OpCanceled:   adminOnly,
	},
}

// ValidateOperational checks one operational transition against the table,
// the actor's role, and the preconditions. svcType may be nil when the target
// does not start execution. Pure; the orchestrator applies side effects.
func ValidateOperational(sale *Sale, svcType *ServiceType, req OperationalRequest) error {
	allowed, ok := operationalTable[sale.Status][req.Target]
	if !ok {
		return &IllegalTransitionError{
			Track: TrackOperational,
			From:  string(sale.Status),
			To:    string(req.Target),
		}
	}

	// Seller-side special case: a seller may resubmit their OWN returned sale
	// as corrected, carrying a mandatory correction note.
	sellerResubmission := sale.Status == OpReturned &&
		req.Target == OpCorrected &&
		req.Role == RoleSeller &&
		req.Actor == sale.SellerID

	if !roleAllowed(allowed, req.Role) && !sellerResubmission {
		return &PermissionError{
			Role:  req.Role,
			Track: TrackOperational,
			From:  string(sale.Status),
			To:    string(req.Target),
		}
	}

	if sellerResubmission && req.Note == "" {
		return &PreconditionError{
			Code:    "correction_note_required",
			Message: "seller resubmission requires a correction note",
		}
	}

	switch req.Target {
	case OpInProgress:
		if sale.ServiceTypeID == "" {
			return &PreconditionError{
				Code:    "service_type_required",
				Message: "execution requires a service type",
			}
		}
		if svcType != nil && svcType.RequiresProvider &&
			sale.ServiceProviderID == "" && req.ProviderID == "" {
			return &PreconditionError{
				Code:    "provider_required",
				Message: "service type " + svcType.ID + " requires a partner provider",
			}
		}
	case OpReturned:
		if req.ReturnReason == "" {
			return &PreconditionError{
				Code:    "return_reason_required",
				Message: "returning a sale requires a reason",
			}
		}
	}

	return nil
}

// =============================================================================
// FINANCIAL TRANSITION TABLE
// =============================================================================

var financialRoles = []Role{RoleFinancial, RoleAdmin}

var financialTable = map[FinancialStatus]map[FinancialStatus][]Role{
	FinPending:    {FinInProgress: financialRoles},
	FinInProgress: {FinCompleted: financialRoles},
	FinCompleted:  {FinPaid: financialRoles},
}

// ValidateFinancial checks one financial transition. allPaid must be computed
// from the same consistent snapshot as sale (inside the same transaction).
func ValidateFinancial(sale *Sale, allPaid bool, req FinancialRequest) error {
	// Canceled kills both tracks.
	if sale.Status == OpCanceled {
		return &IllegalTransitionError{
			Track: TrackFinancial,
			From:  string(sale.FinancialStatus),
			To:    string(req.Target),
		}
	}

	allowed, ok := financialTable[sale.FinancialStatus][req.Target]
	if !ok {
		return &IllegalTransitionError{
			Track: TrackFinancial,
			From:  string(sale.FinancialStatus),
			To:    string(req.Target),
		}
	}
	if !roleAllowed(allowed, req.Role) {
		return &PermissionError{
			Role:  req.Role,
			Track: TrackFinancial,
			From:  string(sale.FinancialStatus),
			To:    string(req.Target),
		}
	}

	switch req.Target {
	case FinCompleted:
		// The hard gate: every installment paid, evaluated atomically.
		if !allPaid {
			return &PreconditionError{
				Code:    "incomplete_payments",
				Message: "cannot complete collection with unpaid installments",
			}
		}
	case FinPaid:
		// Settlement requires both tracks done.
		if sale.Status != OpCompleted {
			return &PreconditionError{
				Code:    "operational_incomplete",
				Message: "cannot settle while operationally unresolved",
			}
		}
	}

	return nil
}

func roleAllowed(allowed []Role, role Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
