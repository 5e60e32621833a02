/*
Package sqlite provides a SQLite-backed implementation of sales.TxStore.

PURPOSE:
  Embedded production store. In larger deployments the same patterns apply to
  PostgreSQL (see store/postgres) - only SQL dialect differences.

KEY TABLES:
  sales:                   The sale rows (both status fields)
  sale_installments:       The installment ledger
  sale_payment_receipts:   Payment confirmation evidence (append-only)
  sale_operational_costs:  Cost lines
  sales_status_history:    Append-only audit trail (seq column = commit order)
  service_types:           Lookup catalog

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement exists for sales_status_history or
  sale_payment_receipts outside the administrative cascade purge.

TRANSACTIONS:
  Every statement runs against an execer (either *sql.DB or *sql.Tx), so the
  same query code serves both standalone calls and WithTx. WithTx wraps fn in
  BEGIN/COMMIT with rollback on error - the orchestrator's atomic unit.

WAL MODE:
  The database is opened with WAL for better concurrency: multiple readers
  don't block, single writer at a time, better crash recovery.

SEE ALSO:
  - sales/store.go: Interface contracts
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/sales-engine/sales"
)

// Store implements sales.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		sale_date TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		payment_method_id TEXT,
		service_type_id TEXT NOT NULL,
		service_provider_id TEXT,
		total_amount TEXT NOT NULL,
		installments_count INTEGER NOT NULL,
		notes TEXT,
		return_reason TEXT,
		status TEXT NOT NULL,
		financial_status TEXT NOT NULL,
		responsible_operational_id TEXT,
		responsible_financial_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_status ON sales(status);
	CREATE INDEX IF NOT EXISTS idx_sales_financial_status ON sales(financial_status);
	CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales(customer_id);

	CREATE TABLE IF NOT EXISTS sale_installments (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		installment_number INTEGER NOT NULL,
		amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_date TEXT,
		notes TEXT,
		UNIQUE(sale_id, installment_number)
	);

	CREATE INDEX IF NOT EXISTS idx_installments_sale ON sale_installments(sale_id);
	CREATE INDEX IF NOT EXISTS idx_installments_due ON sale_installments(due_date);

	CREATE TABLE IF NOT EXISTS sale_payment_receipts (
		id TEXT PRIMARY KEY,
		installment_id TEXT NOT NULL REFERENCES sale_installments(id) ON DELETE CASCADE,
		receipt_type TEXT NOT NULL,
		url TEXT,
		data_json TEXT,
		confirmed_by TEXT NOT NULL,
		confirmed_at TEXT NOT NULL,
		notes TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_receipts_installment ON sale_payment_receipts(installment_id);

	CREATE TABLE IF NOT EXISTS sale_operational_costs (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		recorded_by TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_costs_sale ON sale_operational_costs(sale_id);

	-- seq is the commit order; history is append-only.
	CREATE TABLE IF NOT EXISTS sales_status_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		track TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_sale ON sales_status_history(sale_id);

	CREATE TABLE IF NOT EXISTS service_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		requires_provider BOOLEAN NOT NULL DEFAULT FALSE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements sales.Store against an execer.
type queries struct {
	db execer
}

// =============================================================================
// SALES
// =============================================================================

func (q *queries) CreateSale(ctx context.Context, s *sales.Sale) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sales
		(id, order_number, sale_date, customer_id, seller_id, payment_method_id,
		 service_type_id, service_provider_id, total_amount, installments_count,
		 notes, return_reason, status, financial_status,
		 responsible_operational_id, responsible_financial_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.OrderNumber, s.Date.String(), s.CustomerID, s.SellerID,
		nullString(s.PaymentMethodID), s.ServiceTypeID, nullString(s.ServiceProviderID),
		s.TotalAmount.String(), s.InstallmentsCount,
		nullString(s.Notes), nullString(s.ReturnReason),
		s.Status, s.FinancialStatus,
		nullString(string(s.ResponsibleOperationalID)), nullString(string(s.ResponsibleFinancialID)),
		s.CreatedAt.UTC().Format(time.RFC3339), s.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return sales.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	return nil
}

const saleColumns = `id, order_number, sale_date, customer_id, seller_id, payment_method_id,
	service_type_id, service_provider_id, total_amount, installments_count,
	notes, return_reason, status, financial_status,
	responsible_operational_id, responsible_financial_id, created_at, updated_at`

func (q *queries) GetSale(ctx context.Context, id sales.SaleID) (*sales.Sale, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id)
	return scanSale(row)
}

func (q *queries) UpdateSale(ctx context.Context, s *sales.Sale) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE sales SET
			order_number = ?, sale_date = ?, customer_id = ?, seller_id = ?,
			payment_method_id = ?, service_type_id = ?, service_provider_id = ?,
			total_amount = ?, installments_count = ?, notes = ?, return_reason = ?,
			status = ?, financial_status = ?,
			responsible_operational_id = ?, responsible_financial_id = ?, updated_at = ?
		WHERE id = ?`,
		s.OrderNumber, s.Date.String(), s.CustomerID, s.SellerID,
		nullString(s.PaymentMethodID), s.ServiceTypeID, nullString(s.ServiceProviderID),
		s.TotalAmount.String(), s.InstallmentsCount,
		nullString(s.Notes), nullString(s.ReturnReason),
		s.Status, s.FinancialStatus,
		nullString(string(s.ResponsibleOperationalID)), nullString(string(s.ResponsibleFinancialID)),
		s.UpdatedAt.UTC().Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sale: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sales.ErrNotFound
	}
	return nil
}

func (q *queries) ListSales(ctx context.Context) ([]sales.Sale, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (q *queries) DeleteSaleCascade(ctx context.Context, id sales.SaleID) error {
	// Foreign keys cascade installments, receipts, costs, and history.
	res, err := q.db.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to purge sale: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sales.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(r rowScanner) (*sales.Sale, error) {
	var s sales.Sale
	var saleDate, totalAmount, createdAt, updatedAt string
	var paymentMethod, provider, notes, returnReason, respOp, respFin sql.NullString

	err := r.Scan(&s.ID, &s.OrderNumber, &saleDate, &s.CustomerID, &s.SellerID,
		&paymentMethod, &s.ServiceTypeID, &provider, &totalAmount, &s.InstallmentsCount,
		&notes, &returnReason, &s.Status, &s.FinancialStatus,
		&respOp, &respFin, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, sales.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sale: %w", err)
	}

	if s.Date, err = sales.ParseDate(saleDate); err != nil {
		return nil, err
	}
	if s.TotalAmount, err = decimal.NewFromString(totalAmount); err != nil {
		return nil, fmt.Errorf("bad total_amount: %w", err)
	}
	s.PaymentMethodID = paymentMethod.String
	s.ServiceProviderID = provider.String
	s.Notes = notes.String
	s.ReturnReason = returnReason.String
	s.ResponsibleOperationalID = sales.ActorID(respOp.String)
	s.ResponsibleFinancialID = sales.ActorID(respFin.String)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func (q *queries) ReplaceInstallments(ctx context.Context, saleID sales.SaleID, rows []sales.Installment) error {
	// Full-set swap: the only write path for installment creation.
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sale_installments WHERE sale_id = ?`, saleID); err != nil {
		return fmt.Errorf("failed to clear installments: %w", err)
	}
	for _, row := range rows {
		var payDate sql.NullString
		if row.PaymentDate != nil {
			payDate = sql.NullString{String: row.PaymentDate.String(), Valid: true}
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO sale_installments
			(id, sale_id, installment_number, amount, due_date, status, payment_date, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			row.ID, saleID, row.Number, row.Amount.String(), row.DueDate.String(),
			row.Status, payDate, nullString(row.Notes))
		if err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", row.Number, err)
		}
	}
	return nil
}

const installmentColumns = `id, sale_id, installment_number, amount, due_date, status, payment_date, notes`

func (q *queries) Installments(ctx context.Context, saleID sales.SaleID) ([]sales.Installment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+installmentColumns+` FROM sale_installments
		WHERE sale_id = ? ORDER BY installment_number ASC`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.Installment
	for rows.Next() {
		row, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func (q *queries) GetInstallment(ctx context.Context, id sales.InstallmentID) (*sales.Installment, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+installmentColumns+` FROM sale_installments WHERE id = ?`, id)
	return scanInstallment(row)
}

func (q *queries) UpdateInstallment(ctx context.Context, row *sales.Installment) error {
	var payDate sql.NullString
	if row.PaymentDate != nil {
		payDate = sql.NullString{String: row.PaymentDate.String(), Valid: true}
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE sale_installments SET amount = ?, due_date = ?, status = ?, payment_date = ?, notes = ?
		WHERE id = ?`,
		row.Amount.String(), row.DueDate.String(), row.Status, payDate, nullString(row.Notes), row.ID)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sales.ErrNotFound
	}
	return nil
}

func scanInstallment(r rowScanner) (*sales.Installment, error) {
	var row sales.Installment
	var amount, dueDate string
	var payDate, notes sql.NullString

	err := r.Scan(&row.ID, &row.SaleID, &row.Number, &amount, &dueDate, &row.Status, &payDate, &notes)
	if err == sql.ErrNoRows {
		return nil, sales.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan installment: %w", err)
	}

	if row.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount: %w", err)
	}
	if row.DueDate, err = sales.ParseDate(dueDate); err != nil {
		return nil, err
	}
	if payDate.Valid {
		d, err := sales.ParseDate(payDate.String)
		if err != nil {
			return nil, err
		}
		row.PaymentDate = &d
	}
	row.Notes = notes.String
	return &row, nil
}

// =============================================================================
// RECEIPTS
// =============================================================================

func (q *queries) AddReceipt(ctx context.Context, r sales.PaymentReceipt) error {
	dataJSON, _ := json.Marshal(r.Data)
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sale_payment_receipts
		(id, installment_id, receipt_type, url, data_json, confirmed_by, confirmed_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.InstallmentID, r.Type, nullString(r.URL), string(dataJSON),
		r.ConfirmedBy, r.ConfirmedAt.UTC().Format(time.RFC3339), nullString(r.Notes))
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

func (q *queries) Receipts(ctx context.Context, installmentID sales.InstallmentID) ([]sales.PaymentReceipt, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, installment_id, receipt_type, url, data_json, confirmed_by, confirmed_at, notes
		FROM sale_payment_receipts WHERE installment_id = ? ORDER BY confirmed_at ASC`, installmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.PaymentReceipt
	for rows.Next() {
		var r sales.PaymentReceipt
		var url, dataJSON, notes sql.NullString
		var confirmedAt string
		if err := rows.Scan(&r.ID, &r.InstallmentID, &r.Type, &url, &dataJSON, &r.ConfirmedBy, &confirmedAt, &notes); err != nil {
			return nil, err
		}
		r.URL = url.String
		r.Notes = notes.String
		if dataJSON.Valid && dataJSON.String != "" && dataJSON.String != "null" {
			_ = json.Unmarshal([]byte(dataJSON.String), &r.Data)
		}
		r.ConfirmedAt, _ = time.Parse(time.RFC3339, confirmedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// COSTS
// =============================================================================

func (q *queries) AddCost(ctx context.Context, c sales.OperationalCost) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sale_operational_costs (id, sale_id, description, amount, recorded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.SaleID, c.Description, c.Amount.String(), c.RecordedBy,
		c.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert cost: %w", err)
	}
	return nil
}

func (q *queries) Costs(ctx context.Context, saleID sales.SaleID) ([]sales.OperationalCost, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, sale_id, description, amount, recorded_by, created_at
		FROM sale_operational_costs WHERE sale_id = ? ORDER BY created_at ASC`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.OperationalCost
	for rows.Next() {
		var c sales.OperationalCost
		var amount, createdAt string
		if err := rows.Scan(&c.ID, &c.SaleID, &c.Description, &amount, &c.RecordedBy, &createdAt); err != nil {
			return nil, err
		}
		if c.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad cost amount: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// HISTORY (append-only)
// =============================================================================

func (q *queries) AppendHistory(ctx context.Context, e sales.HistoryEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sales_status_history
		(id, sale_id, track, from_status, to_status, actor_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SaleID, e.Track, e.From, e.To, e.ActorID, nullString(e.Note),
		e.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (q *queries) History(ctx context.Context, saleID sales.SaleID) ([]sales.HistoryEntry, error) {
	// seq is assigned at insert, so this is commit order.
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, sale_id, track, from_status, to_status, actor_id, notes, created_at
		FROM sales_status_history WHERE sale_id = ? ORDER BY seq ASC`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.HistoryEntry
	for rows.Next() {
		var e sales.HistoryEntry
		var notes sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.SaleID, &e.Track, &e.From, &e.To, &e.ActorID, &notes, &createdAt); err != nil {
			return nil, err
		}
		e.Note = notes.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// SERVICE TYPES
// =============================================================================

func (q *queries) PutServiceType(ctx context.Context, st sales.ServiceType) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO service_types (id, name, requires_provider) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, requires_provider = excluded.requires_provider`,
		st.ID, st.Name, st.RequiresProvider)
	return err
}

func (q *queries) GetServiceType(ctx context.Context, id string) (*sales.ServiceType, error) {
	var st sales.ServiceType
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, requires_provider FROM service_types WHERE id = ?`, id).
		Scan(&st.ID, &st.Name, &st.RequiresProvider)
	if err == sql.ErrNoRows {
		return nil, sales.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// =============================================================================
// STORE DELEGATION + TRANSACTIONS
// =============================================================================

func (s *Store) CreateSale(ctx context.Context, sale *sales.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&queries{s.db}).CreateSale(ctx, sale)
}

func (s *Store) GetSale(ctx context.Context, id sales.SaleID) (*sales.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{s.db}).GetSale(ctx, id)
}

func (s *Store) UpdateSale(ctx context.Context, sale *sales.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&queries{s.db}).UpdateSale(ctx, sale)
}

func (s *Store) ListSales(ctx context.Context) ([]sales.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{s.db}).ListSales(ctx)
}

func (s *Store) DeleteSaleCascade(ctx context.Context, id sales.SaleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&queries{s.db}).DeleteSaleCascade(ctx, id)
}

func (s *Store) ReplaceInstallments(ctx context.Context, saleID sales.SaleID, rows []sales.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&queries{s.db}).ReplaceInstallments(ctx, saleID, rows)
}

func (s *Store) Installments(ctx context.Context, saleID sales.SaleID) ([]sales.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{s.db}).Installments(ctx, saleID)
}

func (s *Store) GetInstallment(ctx context.Context, id sales.InstallmentID) (*sales.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{s.db}).GetInstallment(ctx, id)
}

func (s *Store) UpdateInstallment(ctx context.Context, row *sales.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&queries{s.db}).UpdateInstallment(ctx, row)
}

func (s *Store) AddReceipt(ctx context.Context, r sales.PaymentReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&queries{s.db}).AddReceipt(ctx, r)
}

func (s *Store) Receipts(ctx context.Context, id sales.InstallmentID) ([]sales.PaymentReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{s.db}).Receipts(ctx, id)
}

func (s *Store) AddCost(ctx context.Context, c sales.OperationalCost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&queries{s.db}).AddCost(ctx, c)
}

func (s *Store) Costs(ctx context.Context, saleID sales.SaleID) ([]sales.OperationalCost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{s.db}).Costs(ctx, saleID)
}

func (s *Store) AppendHistory(ctx context.Context, e sales.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&queries{s.db}).AppendHistory(ctx, e)
}

func (s *Store) History(ctx context.Context, saleID sales.SaleID) ([]sales.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{s.db}).History(ctx, saleID)
}

func (s *Store) PutServiceType(ctx context.Context, st sales.ServiceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&queries{s.db}).PutServiceType(ctx, st)
}

func (s *Store) GetServiceType(ctx context.Context, id string) (*sales.ServiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&queries{s.db}).GetServiceType(ctx, id)
}

// WithTx executes fn within a database transaction. The store mutex is held
// for the duration, serializing concurrent transitions; the database
// transaction provides the all-or-nothing guarantee.
func (s *Store) WithTx(ctx context.Context, fn func(sales.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
