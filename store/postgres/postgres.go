/*
Package postgres provides a pgx-backed implementation of sales.TxStore.

PURPOSE:
  Shared-deployment store. Same contracts as store/sqlite, but concurrency
  control is handed to the database: WithTx runs a real transaction and the
  sale row is locked with SELECT ... FOR UPDATE for the duration of a
  transition, so two racing requests serialize on the row instead of both
  succeeding off a stale read.

USAGE:
  pool, err := postgres.NewPool(ctx)   // reads DATABASE_URL
  store, err := postgres.New(ctx, pool)

SEE ALSO:
  - sales/store.go: Interface contracts
  - store/sqlite: Embedded counterpart
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/sales-engine/sales"
)

// NewPool connects using the DATABASE_URL environment variable.
func NewPool(ctx context.Context) (*pgxpool.Pool, error) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// Store implements sales.TxStore on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates the store and ensures the schema exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
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
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

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

	CREATE TABLE IF NOT EXISTS sale_payment_receipts (
		id TEXT PRIMARY KEY,
		installment_id TEXT NOT NULL REFERENCES sale_installments(id) ON DELETE CASCADE,
		receipt_type TEXT NOT NULL,
		url TEXT,
		data_json TEXT,
		confirmed_by TEXT NOT NULL,
		confirmed_at TIMESTAMPTZ NOT NULL,
		notes TEXT
	);

	CREATE TABLE IF NOT EXISTS sale_operational_costs (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		recorded_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sales_status_history (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		track TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_sale ON sales_status_history(sale_id);
	CREATE INDEX IF NOT EXISTS idx_installments_sale ON sale_installments(sale_id);

	CREATE TABLE IF NOT EXISTS service_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		requires_provider BOOLEAN NOT NULL DEFAULT FALSE
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements sales.Store against a querier. inTx switches the sale
// read to FOR UPDATE so a transition holds the row lock until commit.
type queries struct {
	db   querier
	inTx bool
}

// =============================================================================
// SALES
// =============================================================================

func (q *queries) CreateSale(ctx context.Context, s *sales.Sale) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO sales
		(id, order_number, sale_date, customer_id, seller_id, payment_method_id,
		 service_type_id, service_provider_id, total_amount, installments_count,
		 notes, return_reason, status, financial_status,
		 responsible_operational_id, responsible_financial_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		s.ID, s.OrderNumber, s.Date.String(), s.CustomerID, s.SellerID,
		s.PaymentMethodID, s.ServiceTypeID, s.ServiceProviderID,
		s.TotalAmount.String(), s.InstallmentsCount, s.Notes, s.ReturnReason,
		s.Status, s.FinancialStatus,
		string(s.ResponsibleOperationalID), string(s.ResponsibleFinancialID),
		s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
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
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if q.inTx {
		query += ` FOR UPDATE`
	}
	return scanSale(q.db.QueryRow(ctx, query, id))
}

func (q *queries) UpdateSale(ctx context.Context, s *sales.Sale) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE sales SET
			order_number = $1, sale_date = $2, customer_id = $3, seller_id = $4,
			payment_method_id = $5, service_type_id = $6, service_provider_id = $7,
			total_amount = $8, installments_count = $9, notes = $10, return_reason = $11,
			status = $12, financial_status = $13,
			responsible_operational_id = $14, responsible_financial_id = $15, updated_at = $16
		WHERE id = $17`,
		s.OrderNumber, s.Date.String(), s.CustomerID, s.SellerID,
		s.PaymentMethodID, s.ServiceTypeID, s.ServiceProviderID,
		s.TotalAmount.String(), s.InstallmentsCount, s.Notes, s.ReturnReason,
		s.Status, s.FinancialStatus,
		string(s.ResponsibleOperationalID), string(s.ResponsibleFinancialID),
		s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return fmt.Errorf("failed to update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sales.ErrNotFound
	}
	return nil
}

func (q *queries) ListSales(ctx context.Context) ([]sales.Sale, error) {
	rows, err := q.db.Query(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY created_at ASC`)
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
	tag, err := q.db.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to purge sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sales.ErrNotFound
	}
	return nil
}

func scanSale(row pgx.Row) (*sales.Sale, error) {
	var s sales.Sale
	var saleDate, totalAmount string
	var respOp, respFin string

	err := row.Scan(&s.ID, &s.OrderNumber, &saleDate, &s.CustomerID, &s.SellerID,
		&s.PaymentMethodID, &s.ServiceTypeID, &s.ServiceProviderID,
		&totalAmount, &s.InstallmentsCount, &s.Notes, &s.ReturnReason,
		&s.Status, &s.FinancialStatus, &respOp, &respFin, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
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
	s.ResponsibleOperationalID = sales.ActorID(respOp)
	s.ResponsibleFinancialID = sales.ActorID(respFin)
	return &s, nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func (q *queries) ReplaceInstallments(ctx context.Context, saleID sales.SaleID, rows []sales.Installment) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM sale_installments WHERE sale_id = $1`, saleID); err != nil {
		return fmt.Errorf("failed to clear installments: %w", err)
	}
	for _, row := range rows {
		var payDate *string
		if row.PaymentDate != nil {
			s := row.PaymentDate.String()
			payDate = &s
		}
		_, err := q.db.Exec(ctx, `
			INSERT INTO sale_installments
			(id, sale_id, installment_number, amount, due_date, status, payment_date, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			row.ID, saleID, row.Number, row.Amount.String(), row.DueDate.String(),
			row.Status, payDate, row.Notes)
		if err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", row.Number, err)
		}
	}
	return nil
}

const installmentColumns = `id, sale_id, installment_number, amount, due_date, status, payment_date, notes`

func (q *queries) Installments(ctx context.Context, saleID sales.SaleID) ([]sales.Installment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+installmentColumns+` FROM sale_installments
		WHERE sale_id = $1 ORDER BY installment_number ASC`, saleID)
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
	query := `SELECT ` + installmentColumns + ` FROM sale_installments WHERE id = $1`
	if q.inTx {
		query += ` FOR UPDATE`
	}
	return scanInstallment(q.db.QueryRow(ctx, query, id))
}

func (q *queries) UpdateInstallment(ctx context.Context, row *sales.Installment) error {
	var payDate *string
	if row.PaymentDate != nil {
		s := row.PaymentDate.String()
		payDate = &s
	}
	tag, err := q.db.Exec(ctx, `
		UPDATE sale_installments SET amount = $1, due_date = $2, status = $3, payment_date = $4, notes = $5
		WHERE id = $6`,
		row.Amount.String(), row.DueDate.String(), row.Status, payDate, row.Notes, row.ID)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sales.ErrNotFound
	}
	return nil
}

func scanInstallment(row pgx.Row) (*sales.Installment, error) {
	var r sales.Installment
	var amount, dueDate string
	var payDate *string

	err := row.Scan(&r.ID, &r.SaleID, &r.Number, &amount, &dueDate, &r.Status, &payDate, &r.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sales.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan installment: %w", err)
	}

	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount: %w", err)
	}
	if r.DueDate, err = sales.ParseDate(dueDate); err != nil {
		return nil, err
	}
	if payDate != nil {
		d, err := sales.ParseDate(*payDate)
		if err != nil {
			return nil, err
		}
		r.PaymentDate = &d
	}
	return &r, nil
}

// =============================================================================
// RECEIPTS, COSTS, HISTORY, CATALOG
// =============================================================================

func (q *queries) AddReceipt(ctx context.Context, r sales.PaymentReceipt) error {
	dataJSON, _ := json.Marshal(r.Data)
	_, err := q.db.Exec(ctx, `
		INSERT INTO sale_payment_receipts
		(id, installment_id, receipt_type, url, data_json, confirmed_by, confirmed_at, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.InstallmentID, r.Type, r.URL, string(dataJSON),
		r.ConfirmedBy, r.ConfirmedAt.UTC(), r.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

func (q *queries) Receipts(ctx context.Context, installmentID sales.InstallmentID) ([]sales.PaymentReceipt, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, installment_id, receipt_type, url, data_json, confirmed_by, confirmed_at, notes
		FROM sale_payment_receipts WHERE installment_id = $1 ORDER BY confirmed_at ASC`, installmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.PaymentReceipt
	for rows.Next() {
		var r sales.PaymentReceipt
		var dataJSON string
		if err := rows.Scan(&r.ID, &r.InstallmentID, &r.Type, &r.URL, &dataJSON, &r.ConfirmedBy, &r.ConfirmedAt, &r.Notes); err != nil {
			return nil, err
		}
		if dataJSON != "" && dataJSON != "null" {
			_ = json.Unmarshal([]byte(dataJSON), &r.Data)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) AddCost(ctx context.Context, c sales.OperationalCost) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO sale_operational_costs (id, sale_id, description, amount, recorded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.SaleID, c.Description, c.Amount.String(), c.RecordedBy, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert cost: %w", err)
	}
	return nil
}

func (q *queries) Costs(ctx context.Context, saleID sales.SaleID) ([]sales.OperationalCost, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, sale_id, description, amount, recorded_by, created_at
		FROM sale_operational_costs WHERE sale_id = $1 ORDER BY created_at ASC`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.OperationalCost
	for rows.Next() {
		var c sales.OperationalCost
		var amount string
		if err := rows.Scan(&c.ID, &c.SaleID, &c.Description, &amount, &c.RecordedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		if c.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("bad cost amount: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *queries) AppendHistory(ctx context.Context, e sales.HistoryEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO sales_status_history
		(id, sale_id, track, from_status, to_status, actor_id, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.SaleID, e.Track, e.From, e.To, e.ActorID, e.Note, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (q *queries) History(ctx context.Context, saleID sales.SaleID) ([]sales.HistoryEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, sale_id, track, from_status, to_status, actor_id, notes, created_at
		FROM sales_status_history WHERE sale_id = $1 ORDER BY seq ASC`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sales.HistoryEntry
	for rows.Next() {
		var e sales.HistoryEntry
		if err := rows.Scan(&e.ID, &e.SaleID, &e.Track, &e.From, &e.To, &e.ActorID, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q *queries) PutServiceType(ctx context.Context, st sales.ServiceType) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO service_types (id, name, requires_provider) VALUES ($1,$2,$3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, requires_provider = EXCLUDED.requires_provider`,
		st.ID, st.Name, st.RequiresProvider)
	return err
}

func (q *queries) GetServiceType(ctx context.Context, id string) (*sales.ServiceType, error) {
	var st sales.ServiceType
	err := q.db.QueryRow(ctx, `
		SELECT id, name, requires_provider FROM service_types WHERE id = $1`, id).
		Scan(&st.ID, &st.Name, &st.RequiresProvider)
	if errors.Is(err, pgx.ErrNoRows) {
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
	return (&queries{db: s.pool}).CreateSale(ctx, sale)
}
func (s *Store) GetSale(ctx context.Context, id sales.SaleID) (*sales.Sale, error) {
	return (&queries{db: s.pool}).GetSale(ctx, id)
}
func (s *Store) UpdateSale(ctx context.Context, sale *sales.Sale) error {
	return (&queries{db: s.pool}).UpdateSale(ctx, sale)
}
func (s *Store) ListSales(ctx context.Context) ([]sales.Sale, error) {
	return (&queries{db: s.pool}).ListSales(ctx)
}
func (s *Store) DeleteSaleCascade(ctx context.Context, id sales.SaleID) error {
	return (&queries{db: s.pool}).DeleteSaleCascade(ctx, id)
}
func (s *Store) ReplaceInstallments(ctx context.Context, saleID sales.SaleID, rows []sales.Installment) error {
	return (&queries{db: s.pool}).ReplaceInstallments(ctx, saleID, rows)
}
func (s *Store) Installments(ctx context.Context, saleID sales.SaleID) ([]sales.Installment, error) {
	return (&queries{db: s.pool}).Installments(ctx, saleID)
}
func (s *Store) GetInstallment(ctx context.Context, id sales.InstallmentID) (*sales.Installment, error) {
	return (&queries{db: s.pool}).GetInstallment(ctx, id)
}
func (s *Store) UpdateInstallment(ctx context.Context, row *sales.Installment) error {
	return (&queries{db: s.pool}).UpdateInstallment(ctx, row)
}
func (s *Store) AddReceipt(ctx context.Context, r sales.PaymentReceipt) error {
	return (&queries{db: s.pool}).AddReceipt(ctx, r)
}
func (s *Store) Receipts(ctx context.Context, id sales.InstallmentID) ([]sales.PaymentReceipt, error) {
	return (&queries{db: s.pool}).Receipts(ctx, id)
}
func (s *Store) AddCost(ctx context.Context, c sales.OperationalCost) error {
	return (&queries{db: s.pool}).AddCost(ctx, c)
}
func (s *Store) Costs(ctx context.Context, saleID sales.SaleID) ([]sales.OperationalCost, error) {
	return (&queries{db: s.pool}).Costs(ctx, saleID)
}
func (s *Store) AppendHistory(ctx context.Context, e sales.HistoryEntry) error {
	return (&queries{db: s.pool}).AppendHistory(ctx, e)
}
func (s *Store) History(ctx context.Context, saleID sales.SaleID) ([]sales.HistoryEntry, error) {
	return (&queries{db: s.pool}).History(ctx, saleID)
}
func (s *Store) PutServiceType(ctx context.Context, st sales.ServiceType) error {
	return (&queries{db: s.pool}).PutServiceType(ctx, st)
}
func (s *Store) GetServiceType(ctx context.Context, id string) (*sales.ServiceType, error) {
	return (&queries{db: s.pool}).GetServiceType(ctx, id)
}

// WithTx executes fn within a database transaction. Sale and installment
// reads inside the transaction take row locks (FOR UPDATE), so concurrent
// transitions on the same sale serialize at the database.
func (s *Store) WithTx(ctx context.Context, fn func(sales.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
