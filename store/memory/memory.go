// Package memory provides an in-memory TxStore for tests and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/sales-engine/sales"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	sales        map[sales.SaleID]sales.Sale
	orderNumbers map[string]sales.SaleID
	installments map[sales.SaleID][]sales.Installment
	saleOf       map[sales.InstallmentID]sales.SaleID
	receipts     map[sales.InstallmentID][]sales.PaymentReceipt
	costs        map[sales.SaleID][]sales.OperationalCost
	history      map[sales.SaleID][]sales.HistoryEntry
	serviceTypes map[string]sales.ServiceType
}

func New() *Memory {
	return &Memory{
		sales:        make(map[sales.SaleID]sales.Sale),
		orderNumbers: make(map[string]sales.SaleID),
		installments: make(map[sales.SaleID][]sales.Installment),
		saleOf:       make(map[sales.InstallmentID]sales.SaleID),
		receipts:     make(map[sales.InstallmentID][]sales.PaymentReceipt),
		costs:        make(map[sales.SaleID][]sales.OperationalCost),
		history:      make(map[sales.SaleID][]sales.HistoryEntry),
		serviceTypes: make(map[string]sales.ServiceType),
	}
}

// -----------------------------------------------------------------------------
// Sales
// -----------------------------------------------------------------------------

func (m *Memory) CreateSale(_ context.Context, s *sales.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createSaleLocked(s)
}

func (m *Memory) createSaleLocked(s *sales.Sale) error {
	if _, exists := m.orderNumbers[s.OrderNumber]; exists {
		return sales.ErrDuplicateOrderNumber
	}
	m.sales[s.ID] = *s
	m.orderNumbers[s.OrderNumber] = s.ID
	return nil
}

func (m *Memory) GetSale(_ context.Context, id sales.SaleID) (*sales.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSaleLocked(id)
}

func (m *Memory) getSaleLocked(id sales.SaleID) (*sales.Sale, error) {
	s, ok := m.sales[id]
	if !ok {
		return nil, sales.ErrNotFound
	}
	copied := s
	return &copied, nil
}

func (m *Memory) UpdateSale(_ context.Context, s *sales.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateSaleLocked(s)
}

func (m *Memory) updateSaleLocked(s *sales.Sale) error {
	if _, ok := m.sales[s.ID]; !ok {
		return sales.ErrNotFound
	}
	m.sales[s.ID] = *s
	return nil
}

func (m *Memory) ListSales(_ context.Context) ([]sales.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listSalesLocked()
}

func (m *Memory) listSalesLocked() ([]sales.Sale, error) {
	out := make([]sales.Sale, 0, len(m.sales))
	for _, s := range m.sales {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) DeleteSaleCascade(_ context.Context, id sales.SaleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteSaleCascadeLocked(id)
}

func (m *Memory) deleteSaleCascadeLocked(id sales.SaleID) error {
	s, ok := m.sales[id]
	if !ok {
		return sales.ErrNotFound
	}
	for _, row := range m.installments[id] {
		delete(m.receipts, row.ID)
		delete(m.saleOf, row.ID)
	}
	delete(m.installments, id)
	delete(m.costs, id)
	delete(m.history, id)
	delete(m.orderNumbers, s.OrderNumber)
	delete(m.sales, id)
	return nil
}

// -----------------------------------------------------------------------------
// Installments
// -----------------------------------------------------------------------------

func (m *Memory) ReplaceInstallments(_ context.Context, saleID sales.SaleID, rows []sales.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceInstallmentsLocked(saleID, rows)
}

func (m *Memory) replaceInstallmentsLocked(saleID sales.SaleID, rows []sales.Installment) error {
	for _, old := range m.installments[saleID] {
		delete(m.saleOf, old.ID)
		delete(m.receipts, old.ID)
	}
	copied := make([]sales.Installment, len(rows))
	copy(copied, rows)
	sort.Slice(copied, func(i, j int) bool { return copied[i].Number < copied[j].Number })
	m.installments[saleID] = copied
	for _, row := range copied {
		m.saleOf[row.ID] = saleID
	}
	return nil
}

func (m *Memory) Installments(_ context.Context, saleID sales.SaleID) ([]sales.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.installmentsLocked(saleID)
}

func (m *Memory) installmentsLocked(saleID sales.SaleID) ([]sales.Installment, error) {
	rows := m.installments[saleID]
	out := make([]sales.Installment, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *Memory) GetInstallment(_ context.Context, id sales.InstallmentID) (*sales.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getInstallmentLocked(id)
}

func (m *Memory) getInstallmentLocked(id sales.InstallmentID) (*sales.Installment, error) {
	saleID, ok := m.saleOf[id]
	if !ok {
		return nil, sales.ErrNotFound
	}
	for _, row := range m.installments[saleID] {
		if row.ID == id {
			copied := row
			return &copied, nil
		}
	}
	return nil, sales.ErrNotFound
}

func (m *Memory) UpdateInstallment(_ context.Context, row *sales.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateInstallmentLocked(row)
}

func (m *Memory) updateInstallmentLocked(row *sales.Installment) error {
	saleID, ok := m.saleOf[row.ID]
	if !ok {
		return sales.ErrNotFound
	}
	rows := m.installments[saleID]
	for i := range rows {
		if rows[i].ID == row.ID {
			rows[i] = *row
			return nil
		}
	}
	return sales.ErrNotFound
}

// -----------------------------------------------------------------------------
// Receipts, costs, history, catalog
// -----------------------------------------------------------------------------

func (m *Memory) AddReceipt(_ context.Context, r sales.PaymentReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addReceiptLocked(r)
}

func (m *Memory) addReceiptLocked(r sales.PaymentReceipt) error {
	m.receipts[r.InstallmentID] = append(m.receipts[r.InstallmentID], r)
	return nil
}

func (m *Memory) Receipts(_ context.Context, id sales.InstallmentID) ([]sales.PaymentReceipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]sales.PaymentReceipt, len(m.receipts[id]))
	copy(out, m.receipts[id])
	return out, nil
}

func (m *Memory) AddCost(_ context.Context, c sales.OperationalCost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addCostLocked(c)
}

func (m *Memory) addCostLocked(c sales.OperationalCost) error {
	m.costs[c.SaleID] = append(m.costs[c.SaleID], c)
	return nil
}

func (m *Memory) Costs(_ context.Context, saleID sales.SaleID) ([]sales.OperationalCost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.costsLocked(saleID)
}

func (m *Memory) costsLocked(saleID sales.SaleID) ([]sales.OperationalCost, error) {
	out := make([]sales.OperationalCost, len(m.costs[saleID]))
	copy(out, m.costs[saleID])
	return out, nil
}

func (m *Memory) AppendHistory(_ context.Context, e sales.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendHistoryLocked(e)
}

func (m *Memory) appendHistoryLocked(e sales.HistoryEntry) error {
	// Append-only: commit order is insertion order.
	m.history[e.SaleID] = append(m.history[e.SaleID], e)
	return nil
}

func (m *Memory) History(_ context.Context, saleID sales.SaleID) ([]sales.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.historyLocked(saleID)
}

func (m *Memory) historyLocked(saleID sales.SaleID) ([]sales.HistoryEntry, error) {
	out := make([]sales.HistoryEntry, len(m.history[saleID]))
	copy(out, m.history[saleID])
	return out, nil
}

func (m *Memory) PutServiceType(_ context.Context, st sales.ServiceType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serviceTypes[st.ID] = st
	return nil
}

func (m *Memory) GetServiceType(_ context.Context, id string) (*sales.ServiceType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getServiceTypeLocked(id)
}

func (m *Memory) getServiceTypeLocked(id string) (*sales.ServiceType, error) {
	st, ok := m.serviceTypes[id]
	if !ok {
		return nil, sales.ErrNotFound
	}
	copied := st
	return &copied, nil
}

// =============================================================================
// TRANSACTIONS - snapshot + rollback under one lock
// =============================================================================

// WithTx executes fn against a view of the store. The whole store is locked
// for the duration, which also serializes concurrent transitions on the same
// sale; on error the pre-transaction snapshot is restored.
func (m *Memory) WithTx(ctx context.Context, fn func(sales.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	sales        map[sales.SaleID]sales.Sale
	orderNumbers map[string]sales.SaleID
	installments map[sales.SaleID][]sales.Installment
	saleOf       map[sales.InstallmentID]sales.SaleID
	receipts     map[sales.InstallmentID][]sales.PaymentReceipt
	costs        map[sales.SaleID][]sales.OperationalCost
	history      map[sales.SaleID][]sales.HistoryEntry
	serviceTypes map[string]sales.ServiceType
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		sales:        copyMap(m.sales),
		orderNumbers: copyMap(m.orderNumbers),
		installments: copySliceMap(m.installments),
		saleOf:       copyMap(m.saleOf),
		receipts:     copySliceMap(m.receipts),
		costs:        copySliceMap(m.costs),
		history:      copySliceMap(m.history),
		serviceTypes: copyMap(m.serviceTypes),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.sales = s.sales
	m.orderNumbers = s.orderNumbers
	m.installments = s.installments
	m.saleOf = s.saleOf
	m.receipts = s.receipts
	m.costs = s.costs
	m.history = s.history
	m.serviceTypes = s.serviceTypes
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copySliceMap[K comparable, V any](src map[K][]V) map[K][]V {
	dst := make(map[K][]V, len(src))
	for k, v := range src {
		dst[k] = append([]V{}, v...)
	}
	return dst
}

// txView runs against the parent with its lock already held.
type txView struct {
	parent *Memory
}

func (v *txView) CreateSale(_ context.Context, s *sales.Sale) error { return v.parent.createSaleLocked(s) }
func (v *txView) GetSale(_ context.Context, id sales.SaleID) (*sales.Sale, error) {
	return v.parent.getSaleLocked(id)
}
func (v *txView) UpdateSale(_ context.Context, s *sales.Sale) error { return v.parent.updateSaleLocked(s) }
func (v *txView) ListSales(_ context.Context) ([]sales.Sale, error) { return v.parent.listSalesLocked() }
func (v *txView) DeleteSaleCascade(_ context.Context, id sales.SaleID) error {
	return v.parent.deleteSaleCascadeLocked(id)
}
func (v *txView) ReplaceInstallments(_ context.Context, saleID sales.SaleID, rows []sales.Installment) error {
	return v.parent.replaceInstallmentsLocked(saleID, rows)
}
func (v *txView) Installments(_ context.Context, saleID sales.SaleID) ([]sales.Installment, error) {
	return v.parent.installmentsLocked(saleID)
}
func (v *txView) GetInstallment(_ context.Context, id sales.InstallmentID) (*sales.Installment, error) {
	return v.parent.getInstallmentLocked(id)
}
func (v *txView) UpdateInstallment(_ context.Context, row *sales.Installment) error {
	return v.parent.updateInstallmentLocked(row)
}
func (v *txView) AddReceipt(_ context.Context, r sales.PaymentReceipt) error {
	return v.parent.addReceiptLocked(r)
}
func (v *txView) Receipts(_ context.Context, id sales.InstallmentID) ([]sales.PaymentReceipt, error) {
	out := make([]sales.PaymentReceipt, len(v.parent.receipts[id]))
	copy(out, v.parent.receipts[id])
	return out, nil
}
func (v *txView) AddCost(_ context.Context, c sales.OperationalCost) error {
	return v.parent.addCostLocked(c)
}
func (v *txView) Costs(_ context.Context, saleID sales.SaleID) ([]sales.OperationalCost, error) {
	return v.parent.costsLocked(saleID)
}
func (v *txView) AppendHistory(_ context.Context, e sales.HistoryEntry) error {
	return v.parent.appendHistoryLocked(e)
}
func (v *txView) History(_ context.Context, saleID sales.SaleID) ([]sales.HistoryEntry, error) {
	return v.parent.historyLocked(saleID)
}
func (v *txView) PutServiceType(_ context.Context, st sales.ServiceType) error {
	v.parent.serviceTypes[st.ID] = st
	return nil
}
func (v *txView) GetServiceType(_ context.Context, id string) (*sales.ServiceType, error) {
	return v.parent.getServiceTypeLocked(id)
}
