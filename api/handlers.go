/*
handlers.go - HTTP request handlers

PURPOSE:
  Translates HTTP requests into orchestrator operations and domain results
  back into JSON. Handlers do no business logic: decode, delegate, encode.
  The actor's identity and role arrive as headers set by the upstream
  authentication layer.

ERROR MAPPING:
  validation            -> 400
  permission denied     -> 403
  not found             -> 404
  illegal transition    -> 409
  already paid          -> 409
  duplicate order no.   -> 409
  precondition failed   -> 422
  anything else         -> 500

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Route registration
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/sales-engine/sales"
)

const timeFormat = time.RFC3339

// Header names carrying the authenticated actor's identity.
const (
	headerActorID   = "X-Actor-Id"
	headerActorRole = "X-Actor-Role"
)

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	engine *sales.Orchestrator
	logger *zap.Logger
}

func NewHandler(engine *sales.Orchestrator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

// =============================================================================
// SALES
// =============================================================================

// CreateSale handles POST /api/sales.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req CreateSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	date, err := sales.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err.Error())
		return
	}
	var firstDue sales.Date
	if req.FirstDueDate != "" {
		if firstDue, err = sales.ParseDate(req.FirstDueDate); err != nil {
			writeError(w, http.StatusBadRequest, "invalid first_due_date", err.Error())
			return
		}
	}
	total, err := decimal.NewFromString(req.TotalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid total_amount", err.Error())
		return
	}

	sale, err := h.engine.CreateSale(r.Context(), sales.CreateSaleInput{
		OrderNumber:       req.OrderNumber,
		Date:              date,
		CustomerID:        req.CustomerID,
		SellerID:          sales.ActorID(req.SellerID),
		PaymentMethodID:   req.PaymentMethodID,
		ServiceTypeID:     req.ServiceTypeID,
		ServiceProviderID: req.ServiceProviderID,
		TotalAmount:       total,
		InstallmentsCount: req.InstallmentsCount,
		FirstDueDate:      firstDue,
		Notes:             req.Notes,
	}, actor)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSaleDTO(*sale))
}

// GetSale handles GET /api/sales/{id}.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	saleID := sales.SaleID(chi.URLParam(r, "id"))

	agg, err := h.engine.GetSale(r.Context(), saleID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := SaleAggregateDTO{
		Sale:         toSaleDTO(agg.Sale),
		Installments: make([]InstallmentDTO, 0, len(agg.Installments)),
		Costs:        make([]CostDTO, 0, len(agg.Costs)),
		NetResult:    agg.NetResult.StringFixed(2),
	}
	for _, inst := range agg.Installments {
		out.Installments = append(out.Installments, toInstallmentDTO(inst))
	}
	for _, c := range agg.Costs {
		out.Costs = append(out.Costs, toCostDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListSales handles GET /api/sales.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	rows, err := h.engine.ListSales(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]SaleDTO, 0, len(rows))
	for _, s := range rows {
		out = append(out, toSaleDTO(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetHistory handles GET /api/sales/{id}/history.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	saleID := sales.SaleID(chi.URLParam(r, "id"))

	entries, err := h.engine.History(r.Context(), saleID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]HistoryEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toHistoryDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// PurgeSale handles DELETE /api/sales/{id}.
func (h *Handler) PurgeSale(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	saleID := sales.SaleID(chi.URLParam(r, "id"))

	if err := h.engine.PurgeSale(r.Context(), saleID, actor, role); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// OperationalTransition handles POST /api/sales/{id}/operational.
func (h *Handler) OperationalTransition(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	saleID := sales.SaleID(chi.URLParam(r, "id"))

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	sale, err := h.engine.RequestOperationalTransition(r.Context(), saleID, sales.OperationalRequest{
		Target:       sales.OperationalStatus(req.Target),
		Actor:        actor,
		Role:         role,
		ReturnReason: req.ReturnReason,
		Note:         req.Note,
		ProviderID:   req.ProviderID,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(*sale))
}

// FinancialTransition handles POST /api/sales/{id}/financial.
func (h *Handler) FinancialTransition(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	saleID := sales.SaleID(chi.URLParam(r, "id"))

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	sale, err := h.engine.RequestFinancialTransition(r.Context(), saleID, sales.FinancialRequest{
		Target: sales.FinancialStatus(req.Target),
		Actor:  actor,
		Role:   role,
		Note:   req.Note,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(*sale))
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

// ConfirmPayment handles POST /api/installments/{id}/payment.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	actor, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	installmentID := sales.InstallmentID(chi.URLParam(r, "id"))

	var req ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	paymentDate, err := sales.ParseDate(req.PaymentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payment_date", err.Error())
		return
	}

	inst, err := h.engine.ConfirmInstallmentPayment(r.Context(), installmentID, actor, paymentDate, sales.ReceiptInput{
		Type:  sales.ReceiptType(req.ReceiptType),
		URL:   req.ReceiptURL,
		Data:  req.ReceiptData,
		Notes: req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTO(*inst))
}

// RecreateInstallments handles POST /api/sales/{id}/installments/recreate.
func (h *Handler) RecreateInstallments(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	saleID := sales.SaleID(chi.URLParam(r, "id"))

	var req RecreateInstallmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	firstDue, err := sales.ParseDate(req.FirstDueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid first_due_date", err.Error())
		return
	}

	rows, err := h.engine.RecreateInstallments(r.Context(), saleID, req.InstallmentsCount, firstDue, actor, role, req.Force)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]InstallmentDTO, 0, len(rows))
	for _, inst := range rows {
		out = append(out, toInstallmentDTO(inst))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// COSTS
// =============================================================================

// RecordCost handles POST /api/sales/{id}/costs.
func (h *Handler) RecordCost(w http.ResponseWriter, r *http.Request) {
	actor, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	saleID := sales.SaleID(chi.URLParam(r, "id"))

	var req RecordCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	cost, err := h.engine.RecordOperationalCost(r.Context(), saleID, sales.CostInput{
		Description: req.Description,
		Amount:      amount,
	}, actor, role)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCostDTO(*cost))
}

// =============================================================================
// SERVICE TYPES
// =============================================================================

// CreateServiceType handles PUT /api/service-types/{id}.
func (h *Handler) CreateServiceType(w http.ResponseWriter, r *http.Request) {
	_, role, ok := h.actor(w, r)
	if !ok {
		return
	}
	if role != sales.RoleAdmin && role != sales.RoleSupervisor {
		writeError(w, http.StatusForbidden, "forbidden", "service-type catalog is admin-managed")
		return
	}

	var req CreateServiceTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req.ID = chi.URLParam(r, "id")
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid name", "required")
		return
	}

	if err := h.engine.PutServiceType(r.Context(), sales.ServiceType{
		ID:               req.ID,
		Name:             req.Name,
		RequiresProvider: req.RequiresProvider,
	}); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// actor extracts the authenticated identity from the request headers. Writes
// a 401 and returns ok=false when either header is missing.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (sales.ActorID, sales.Role, bool) {
	id := r.Header.Get(headerActorID)
	role := r.Header.Get(headerActorRole)
	if id == "" || role == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated",
			headerActorID+" and "+headerActorRole+" headers are required")
		return "", "", false
	}
	return sales.ActorID(id), sales.Role(role), true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sales.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sales.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, sales.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, sales.ErrIllegalTransition),
		errors.Is(err, sales.ErrAlreadyPaid),
		errors.Is(err, sales.ErrDuplicateOrderNumber):
		status = http.StatusConflict
	case errors.Is(err, sales.ErrPreconditionFailed):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("internal error", zap.Error(err))
		writeError(w, status, "internal error", "")
		return
	}
	writeError(w, status, err.Error(), "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
