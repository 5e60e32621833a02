/*
audit.go - Append-only status history

PURPOSE:
  Every accepted transition of either state machine writes exactly one history
  entry, in the same atomic unit as the status mutation it documents. A
  transition that is not recorded did not happen, and vice versa.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. Ever.
  2. ORDERED: History reflects transitions in commit order.
  3. COMPLETE: Replaying the entries reconstructs the current status.

WHY APPEND-ONLY?
  - Audit trail: you can always explain how a sale got to its current state
  - Compliance: financial workflows need immutable history
  - Debugging: "who returned this sale and why?" is one query

SEE ALSO:
  - store.go: AppendHistory/History on the Store interface
  - orchestrator.go: Writes entries inside WithTx
*/
package sales

import "time"

// HistoryEntry is one accepted status transition. The Track field records
// which status field changed.
type HistoryEntry struct {
	ID        string
	SaleID    SaleID
	Track     Track
	From      string
	To        string
	ActorID   ActorID
	Note      string
	CreatedAt time.Time
}

// ReplayOperational folds a sale's history into its operational status.
// Entries must be in commit order (as returned by Store.History).
// Returns OpPending for an empty history per the creation default.
func ReplayOperational(entries []HistoryEntry) OperationalStatus {
	status := OpPending
	for _, e := range entries {
		if e.Track == TrackOperational && e.To != "" {
			status = OperationalStatus(e.To)
		}
	}
	return status
}

// ReplayFinancial folds a sale's history into its financial status.
func ReplayFinancial(entries []HistoryEntry) FinancialStatus {
	status := FinPending
	for _, e := range entries {
		if e.Track == TrackFinancial && e.To != "" && e.To != e.From {
			status = FinancialStatus(e.To)
		}
	}
	return status
}
