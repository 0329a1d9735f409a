package procurement

import (
	"context"
	"errors"
	"time"

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
	purchaseTx
	inventory.TxRepository
	ledgerTx
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	pgTx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := tx{
		purchaseTx:   purchaseTx{tx: pgTx},
		TxRepository: inventory.NewTxRepository(pgTx),
		ledgerTx:     ledgerTx{ledger.NewTxRepository(pgTx)},
	}
	if err := fn(ctx, wrapper); err != nil {
		_ = pgTx.Rollback(ctx)
		return err
	}
	return pgTx.Commit(ctx)
}

const purchaseColumns = `id, number, supplier, currency, rate, status, memo, ledger_txn_id, created_by, created_at, posted_at`

func scanPurchase(row pgx.Row) (Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.Number, &p.Supplier, &p.Currency, &p.Rate, &p.Status, &p.Memo,
		&p.LedgerTxnID, &p.CreatedBy, &p.CreatedAt, &p.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrPurchaseNotFound
		}
		return Purchase{}, err
	}
	return p, nil
}

func (r *repository) CreatePurchase(ctx context.Context, purchase Purchase) (Purchase, error) {
	pgTx, err := r.db.Begin(ctx)
	if err != nil {
		return Purchase{}, err
	}
	defer func() { _ = pgTx.Rollback(ctx) }()

	row := pgTx.QueryRow(ctx, `INSERT INTO purchases (number, supplier, currency, rate, status, memo, created_by)
VALUES ('PUR-' || LPAD(nextval('purchase_number_seq')::text, 5, '0'), $1,$2,$3,$4,$5,$6)
RETURNING `+purchaseColumns,
		purchase.Supplier, purchase.Currency, purchase.Rate, PurchaseStatusDraft, purchase.Memo, purchase.CreatedBy)
	created, err := scanPurchase(row)
	if err != nil {
		return Purchase{}, err
	}
	for i := range purchase.Lines {
		line := &purchase.Lines[i]
		err := pgTx.QueryRow(ctx, `INSERT INTO purchase_lines (purchase_id, item_id, original_type, weight_kg, qty, cost_per_kg)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			created.ID, line.ItemID, line.OriginalType, line.WeightKg, line.Qty, line.CostPerKg).Scan(&line.ID)
		if err != nil {
			return Purchase{}, err
		}
		line.PurchaseID = created.ID
	}
	for i := range purchase.AdditionalCosts {
		cost := &purchase.AdditionalCosts[i]
		err := pgTx.QueryRow(ctx, `INSERT INTO purchase_costs (purchase_id, provider, kind, amount, currency, rate, line_index)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			created.ID, cost.Provider, cost.Kind, cost.Amount, cost.Currency, cost.Rate, cost.LineIndex).Scan(&cost.ID)
		if err != nil {
			return Purchase{}, err
		}
		cost.PurchaseID = created.ID
	}
	if err := pgTx.Commit(ctx); err != nil {
		return Purchase{}, err
	}
	created.Lines = purchase.Lines
	created.AdditionalCosts = purchase.AdditionalCosts
	return created, nil
}

func (r *repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	purchase, err := scanPurchase(r.db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id=$1`, id))
	if err != nil {
		return Purchase{}, err
	}
	purchase.Lines, err = loadLines(ctx, r.db, id)
	if err != nil {
		return Purchase{}, err
	}
	purchase.AdditionalCosts, err = loadCosts(ctx, r.db, id)
	if err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

func (r *repository) ListPurchases(ctx context.Context) ([]Purchase, error) {
	rows, err := r.db.Query(ctx, `SELECT `+purchaseColumns+` FROM purchases ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.Number, &p.Supplier, &p.Currency, &p.Rate, &p.Status, &p.Memo,
			&p.LedgerTxnID, &p.CreatedBy, &p.CreatedAt, &p.PostedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, purchaseID int64) ([]PurchaseLine, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_id, item_id, original_type, weight_kg, qty, cost_per_kg,
COALESCE(material_base,0), COALESCE(landed_base,0), COALESCE(landed_unit_cost,0)
FROM purchase_lines WHERE purchase_id=$1 ORDER BY id ASC`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []PurchaseLine
	for rows.Next() {
		var line PurchaseLine
		if err := rows.Scan(&line.ID, &line.PurchaseID, &line.ItemID, &line.OriginalType, &line.WeightKg,
			&line.Qty, &line.CostPerKg, &line.MaterialBase, &line.LandedBase, &line.LandedUnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func loadCosts(ctx context.Context, q querier, purchaseID int64) ([]AdditionalCost, error) {
	rows, err := q.Query(ctx, `SELECT id, purchase_id, provider, kind, amount, currency, rate, line_index
FROM purchase_costs WHERE purchase_id=$1 ORDER BY id ASC`, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var costs []AdditionalCost
	for rows.Next() {
		var cost AdditionalCost
		if err := rows.Scan(&cost.ID, &cost.PurchaseID, &cost.Provider, &cost.Kind, &cost.Amount,
			&cost.Currency, &cost.Rate, &cost.LineIndex); err != nil {
			return nil, err
		}
		costs = append(costs, cost)
	}
	return costs, rows.Err()
}

type purchaseTx struct {
	tx pgx.Tx
}

func (r purchaseTx) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	purchase, err := scanPurchase(r.tx.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Purchase{}, err
	}
	purchase.Lines, err = loadLines(ctx, r.tx, id)
	if err != nil {
		return Purchase{}, err
	}
	purchase.AdditionalCosts, err = loadCosts(ctx, r.tx, id)
	if err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

func (r purchaseTx) MarkPurchasePosted(ctx context.Context, id int64, txnID int64, postedAt time.Time, lines []PurchaseLine) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE purchases SET status=$2, ledger_txn_id=$3, posted_at=$4 WHERE id=$1`,
		id, PurchaseStatusPosted, txnID, postedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `UPDATE purchase_lines SET material_base=$2, landed_base=$3, landed_unit_cost=$4 WHERE id=$1`,
			line.ID, line.MaterialBase, line.LandedBase, line.LandedUnitCost); err != nil {
			return err
		}
	}
	return nil
}
