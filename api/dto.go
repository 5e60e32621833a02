/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupling the domain model from
  the external contract. DTOs are pure data carriers; validation lives in
  the engine.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/sales-engine/sales"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateSaleRequest is the payload for creating a sale.
type CreateSaleRequest struct {
	OrderNumber       string `json:"order_number,omitempty"`
	Date              string `json:"date"` // YYYY-MM-DD
	CustomerID        string `json:"customer_id"`
	SellerID          string `json:"seller_id"`
	PaymentMethodID   string `json:"payment_method_id,omitempty"`
	ServiceTypeID     string `json:"service_type_id"`
	ServiceProviderID string `json:"service_provider_id,omitempty"`
	TotalAmount       string `json:"total_amount"` // decimal string
	InstallmentsCount int    `json:"installments_count"`
	FirstDueDate      string `json:"first_due_date,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// TransitionRequest is the payload for either track's transition endpoint.
type TransitionRequest struct {
	Target       string `json:"target"`
	ReturnReason string `json:"return_reason,omitempty"`
	Note         string `json:"note,omitempty"`
	ProviderID   string `json:"provider_id,omitempty"`
}

// ConfirmPaymentRequest is the payload for confirming an installment payment.
type ConfirmPaymentRequest struct {
	PaymentDate string            `json:"payment_date"` // YYYY-MM-DD
	ReceiptType string            `json:"receipt_type,omitempty"`
	ReceiptURL  string            `json:"receipt_url,omitempty"`
	ReceiptData map[string]string `json:"receipt_data,omitempty"`
	Notes       string            `json:"notes,omitempty"`
}

// RecordCostRequest is the payload for booking an operational cost.
type RecordCostRequest struct {
	Description string `json:"description"`
	Amount      string `json:"amount"` // decimal string
}

// RecreateInstallmentsRequest is the payload for administrative
// re-amortization.
type RecreateInstallmentsRequest struct {
	InstallmentsCount int    `json:"installments_count"`
	FirstDueDate      string `json:"first_due_date"`
	Force             bool   `json:"force,omitempty"`
}

// CreateServiceTypeRequest seeds the service-type catalog.
type CreateServiceTypeRequest struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	RequiresProvider bool   `json:"requires_provider"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SaleDTO represents a sale in API responses.
type SaleDTO struct {
	ID                       string `json:"id"`
	OrderNumber              string `json:"order_number"`
	Date                     string `json:"date"`
	CustomerID               string `json:"customer_id"`
	SellerID                 string `json:"seller_id"`
	PaymentMethodID          string `json:"payment_method_id,omitempty"`
	ServiceTypeID            string `json:"service_type_id"`
	ServiceProviderID        string `json:"service_provider_id,omitempty"`
	TotalAmount              string `json:"total_amount"`
	InstallmentsCount        int    `json:"installments_count"`
	Notes                    string `json:"notes,omitempty"`
	ReturnReason             string `json:"return_reason,omitempty"`
	Status                   string `json:"status"`
	FinancialStatus          string `json:"financial_status"`
	ResponsibleOperationalID string `json:"responsible_operational_id,omitempty"`
	ResponsibleFinancialID   string `json:"responsible_financial_id,omitempty"`
	CreatedAt                string `json:"created_at"`
	UpdatedAt                string `json:"updated_at"`
}

// InstallmentDTO represents an installment with its derived status.
type InstallmentDTO struct {
	ID          string  `json:"id"`
	SaleID      string  `json:"sale_id"`
	Number      int     `json:"number"`
	Amount      string  `json:"amount"`
	DueDate     string  `json:"due_date"`
	Status      string  `json:"status"`
	PaymentDate *string `json:"payment_date,omitempty"`
	Notes       string  `json:"notes,omitempty"`
}

// CostDTO represents an operational cost line.
type CostDTO struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	RecordedBy  string `json:"recorded_by"`
	CreatedAt   string `json:"created_at"`
}

// SaleAggregateDTO is the sale with its ledger and net result.
type SaleAggregateDTO struct {
	Sale         SaleDTO          `json:"sale"`
	Installments []InstallmentDTO `json:"installments"`
	Costs        []CostDTO        `json:"costs"`
	NetResult    string           `json:"net_result"`
}

// HistoryEntryDTO is one audit trail row.
type HistoryEntryDTO struct {
	ID        string `json:"id"`
	Track     string `json:"track"`
	From      string `json:"from"`
	To        string `json:"to"`
	ActorID   string `json:"actor_id"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toSaleDTO(s sales.Sale) SaleDTO {
	return SaleDTO{
		ID:                       string(s.ID),
		OrderNumber:              s.OrderNumber,
		Date:                     s.Date.String(),
		CustomerID:               s.CustomerID,
		SellerID:                 string(s.SellerID),
		PaymentMethodID:          s.PaymentMethodID,
		ServiceTypeID:            s.ServiceTypeID,
		ServiceProviderID:        s.ServiceProviderID,
		TotalAmount:              s.TotalAmount.StringFixed(2),
		InstallmentsCount:        s.InstallmentsCount,
		Notes:                    s.Notes,
		ReturnReason:             s.ReturnReason,
		Status:                   string(s.Status),
		FinancialStatus:          string(s.FinancialStatus),
		ResponsibleOperationalID: string(s.ResponsibleOperationalID),
		ResponsibleFinancialID:   string(s.ResponsibleFinancialID),
		CreatedAt:                s.CreatedAt.Format(timeFormat),
		UpdatedAt:                s.UpdatedAt.Format(timeFormat),
	}
}

func toInstallmentDTO(i sales.Installment) InstallmentDTO {
	dto := InstallmentDTO{
		ID:      string(i.ID),
		SaleID:  string(i.SaleID),
		Number:  i.Number,
		Amount:  i.Amount.StringFixed(2),
		DueDate: i.DueDate.String(),
		Status:  string(i.Status),
		Notes:   i.Notes,
	}
	if i.PaymentDate != nil {
		s := i.PaymentDate.String()
		dto.PaymentDate = &s
	}
	return dto
}

func toCostDTO(c sales.OperationalCost) CostDTO {
	return CostDTO{
		ID:          c.ID,
		Description: c.Description,
		Amount:      c.Amount.StringFixed(2),
		RecordedBy:  string(c.RecordedBy),
		CreatedAt:   c.CreatedAt.Format(timeFormat),
	}
}

func toHistoryDTO(e sales.HistoryEntry) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:        e.ID,
		Track:     string(e.Track),
		From:      e.From,
		To:        e.To,
		ActorID:   string(e.ActorID),
		Note:      e.Note,
		CreatedAt: e.CreatedAt.Format(timeFormat),
	}
}
