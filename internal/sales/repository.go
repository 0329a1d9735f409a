package sales

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rethread-erp/rethread-erp/internal/inventory"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) RepositoryPort {
	return &repository{db: db}
}

type ledgerTx struct {
	ledger.TxRepository
}

type tx struct {
	invoiceTx
	inventory.TxRepository
	ledgerTx
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	pgTx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := tx{
		invoiceTx:    invoiceTx{tx: pgTx},
		TxRepository: inventory.NewTxRepository(pgTx),
		ledgerTx:     ledgerTx{ledger.NewTxRepository(pgTx)},
	}
	if err := fn(ctx, wrapper); err != nil {
		_ = pgTx.Rollback(ctx)
		return err
	}
	return pgTx.Commit(ctx)
}

const invoiceColumns = `id, number, customer, currency, rate, status, cash_sale, discount, surcharge, gross, net, memo, ledger_txn_id, reversal_txn_id, created_by, created_at, posted_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Customer, &inv.Currency, &inv.Rate, &inv.Status, &inv.CashSale,
		&inv.Discount, &inv.Surcharge, &inv.Gross, &inv.Net, &inv.Memo, &inv.LedgerTxnID, &inv.ReversalTxnID,
		&inv.CreatedBy, &inv.CreatedAt, &inv.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *repository) CreateInvoice(ctx context.Context, invoice Invoice) (Invoice, error) {
	pgTx, err := r.db.Begin(ctx)
	if err != nil {
		return Invoice{}, err
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	row := pgTx.QueryRow(ctx, `INSERT INTO sales_invoices (number, customer, currency, rate, status, cash_sale, discount, surcharge, gross, net, memo, created_by)
VALUES ('INV-' || LPAD(nextval('invoice_number_seq')::text, 5, '0'), $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING `+invoiceColumns,
		invoice.Customer, invoice.Currency, invoice.Rate, InvoiceStatusUnposted, invoice.CashSale,
		invoice.Discount, invoice.Surcharge, invoice.Gross, invoice.Net, invoice.Memo, invoice.CreatedBy)
	created, err := scanInvoice(row)
	if err != nil {
		return Invoice{}, err
	}
	for i := range invoice.Lines {
		line := &invoice.Lines[i]
		err := pgTx.QueryRow(ctx, `INSERT INTO sales_invoice_lines (invoice_id, item_id, qty, price, amount)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			created.ID, line.ItemID, line.Qty, line.Price, line.Amount).Scan(&line.ID)
		if err != nil {
			return Invoice{}, err
		}
		line.InvoiceID = created.ID
	}
	for i := range invoice.AdditionalCosts {
		cost := &invoice.AdditionalCosts[i]
		err := pgTx.QueryRow(ctx, `INSERT INTO sales_invoice_costs (invoice_id, kind, provider, amount)
VALUES ($1,$2,$3,$4) RETURNING id`,
			created.ID, cost.Kind, cost.Provider, cost.Amount).Scan(&cost.ID)
		if err != nil {
			return Invoice{}, err
		}
		cost.InvoiceID = created.ID
	}
	if err := pgTx.Commit(ctx); err != nil {
		return Invoice{}, err
	}
	created.Lines = invoice.Lines
	created.AdditionalCosts = invoice.AdditionalCosts
	return created, nil
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	invoice, err := scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM sales_invoices WHERE id=$1`, id))
	if err != nil {
		return Invoice{}, err
	}
	invoice.Lines, err = loadLines(ctx, r.db, id)
	if err != nil {
		return Invoice{}, err
	}
	invoice.AdditionalCosts, err = loadCosts(ctx, r.db, id)
	if err != nil {
		return Invoice{}, err
	}
	return invoice, nil
}

func (r *repository) ListInvoices(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sales_invoices`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM sales_invoices ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.Customer, &inv.Currency, &inv.Rate, &inv.Status, &inv.CashSale,
			&inv.Discount, &inv.Surcharge, &inv.Gross, &inv.Net, &inv.Memo, &inv.LedgerTxnID, &inv.ReversalTxnID,
			&inv.CreatedBy, &inv.CreatedAt, &inv.PostedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, item_id, qty, price, amount, COALESCE(unit_cost,0)
FROM sales_invoice_lines WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []InvoiceLine
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ItemID, &line.Qty, &line.Price, &line.Amount, &line.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func loadCosts(ctx context.Context, q querier, invoiceID int64) ([]InvoiceCost, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, kind, provider, amount
FROM sales_invoice_costs WHERE invoice_id=$1 ORDER BY id ASC`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var costs []InvoiceCost
	for rows.Next() {
		var cost InvoiceCost
		if err := rows.Scan(&cost.ID, &cost.InvoiceID, &cost.Kind, &cost.Provider, &cost.Amount); err != nil {
			return nil, err
		}
		costs = append(costs, cost)
	}
	return costs, rows.Err()
}

type invoiceTx struct {
	tx pgx.Tx
}

func (r invoiceTx) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	invoice, err := scanInvoice(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM sales_invoices WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Invoice{}, err
	}
	invoice.Lines, err = loadLines(ctx, r.tx, id)
	if err != nil {
		return Invoice{}, err
	}
	invoice.AdditionalCosts, err = loadCosts(ctx, r.tx, id)
	if err != nil {
		return Invoice{}, err
	}
	return invoice, nil
}

func (r invoiceTx) MarkInvoicePosted(ctx context.Context, invoice Invoice) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET status=$2, ledger_txn_id=$3, gross=$4, net=$5, posted_at=$6 WHERE id=$1`,
		invoice.ID, InvoiceStatusPosted, invoice.LedgerTxnID, invoice.Gross, invoice.Net, invoice.PostedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	for _, line := range invoice.Lines {
		if _, err := r.tx.Exec(ctx, `UPDATE sales_invoice_lines SET unit_cost=$2, amount=$3 WHERE id=$1`,
			line.ID, line.UnitCost, line.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (r invoiceTx) MarkInvoiceReversed(ctx context.Context, id int64, reversalTxnID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE sales_invoices SET status=$2, reversal_txn_id=$3 WHERE id=$1`,
		id, InvoiceStatusReversed, reversalTxnID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}
