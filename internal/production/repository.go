package production

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
	runTx
	inventory.TxRepository
	ledgerTx
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	pgTx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := tx{
		runTx:        runTx{tx: pgTx},
		TxRepository: inventory.NewTxRepository(pgTx),
		ledgerTx:     ledgerTx{ledger.NewTxRepository(pgTx)},
	}
	if err := fn(ctx, wrapper); err != nil {
		_ = pgTx.Rollback(ctx)
		return err
	}
	return pgTx.Commit(ctx)
}

const runColumns = `id, number, input_item_id, input_qty, consumed_cost, memo, ledger_txn_id, created_by, posted_at`

func (r *repository) GetRun(ctx context.Context, id int64) (Run, error) {
	var run Run
	err := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM production_runs WHERE id=$1`, id).
		Scan(&run.ID, &run.Number, &run.InputItemID, &run.InputQty, &run.ConsumedCost, &run.Memo,
			&run.LedgerTxnID, &run.CreatedBy, &run.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	run.Outputs, err = r.loadOutputs(ctx, id)
	return run, err
}

func (r *repository) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := r.db.Query(ctx, `SELECT `+runColumns+` FROM production_runs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Number, &run.InputItemID, &run.InputQty, &run.ConsumedCost, &run.Memo,
			&run.LedgerTxnID, &run.CreatedBy, &run.PostedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *repository) loadOutputs(ctx context.Context, runID int64) ([]RunOutput, error) {
	rows, err := r.db.Query(ctx, `SELECT id, run_id, item_id, qty, weight_kg, waste, unit_cost, cost_share
FROM production_outputs WHERE run_id=$1 ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var outputs []RunOutput
	for rows.Next() {
		var out RunOutput
		if err := rows.Scan(&out.ID, &out.RunID, &out.ItemID, &out.Qty, &out.WeightKg, &out.Waste, &out.UnitCost, &out.CostShare); err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}

type runTx struct {
	tx pgx.Tx
}

func (r runTx) InsertRun(ctx context.Context, run Run) (Run, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO production_runs (number, input_item_id, input_qty, consumed_cost, memo, created_by, posted_at)
VALUES ('RUN-' || LPAD(nextval('production_number_seq')::text, 5, '0'), $1,$2,$3,$4,$5,$6)
RETURNING id, number`,
		run.InputItemID, run.InputQty, run.ConsumedCost, run.Memo, run.CreatedBy, run.PostedAt).
		Scan(&run.ID, &run.Number)
	if err != nil {
		return Run{}, err
	}
	for i := range run.Outputs {
		out := &run.Outputs[i]
		err := r.tx.QueryRow(ctx, `INSERT INTO production_outputs (run_id, item_id, qty, weight_kg, waste, unit_cost, cost_share)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			run.ID, out.ItemID, out.Qty, out.WeightKg, out.Waste, out.UnitCost, out.CostShare).Scan(&out.ID)
		if err != nil {
			return Run{}, err
		}
		out.RunID = run.ID
	}
	return run, nil
}

func (r runTx) SetRunLedgerTxn(ctx context.Context, runID, txnID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE production_runs SET ledger_txn_id=$2 WHERE id=$1`, runID, txnID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}
