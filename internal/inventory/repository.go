package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/ledger"
)

// TxRepository exposes stock operations available inside one database
// transaction.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id int64) (Item, error)
	UpdateItemStock(ctx context.Context, id int64, qty, avgCost decimal.Decimal, serialCounter int64) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) RepositoryPort {
	return &repository{db: db}
}

type tx struct {
	*txRepository
	ledger.TxRepository
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	pgTx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := tx{
		txRepository: &txRepository{tx: pgTx},
		TxRepository: ledger.NewTxRepository(pgTx),
	}
	if err := fn(ctx, wrapper); err != nil {
		_ = pgTx.Rollback(ctx)
		return err
	}
	return pgTx.Commit(ctx)
}

const itemColumns = `id, code, name, category, packing, avg_cost, stock_qty, weight_per_unit, serial_counter, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Category, &item.Packing,
		&item.AvgCost, &item.StockQty, &item.WeightPerUnit, &item.SerialCounter, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *repository) GetItem(ctx context.Context, id int64) (Item, error) {
	return scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1`, id))
}

func (r *repository) GetItemByCode(ctx context.Context, code string) (Item, error) {
	return scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE code=$1`, code))
}

func (r *repository) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.Code, &item.Name, &item.Category, &item.Packing,
			&item.AvgCost, &item.StockQty, &item.WeightPerUnit, &item.SerialCounter, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) CreateItem(ctx context.Context, item Item) (Item, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO inventory_items (code, name, category, packing, avg_cost, stock_qty, weight_per_unit, serial_counter)
VALUES ($1,$2,$3,$4,0,0,$5,0) RETURNING `+itemColumns,
		item.Code, item.Name, item.Category, item.Packing, item.WeightPerUnit)
	created, err := scanItem(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Item{}, fmt.Errorf("%w: %s", ErrDuplicateCode, item.Code)
		}
		return Item{}, err
	}
	return created, nil
}

func (r *repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, item_id, type, qty, unit_cost, balance_qty, ref_module, ref_id, note, posted_at, created_by
FROM stock_movements WHERE item_id=$1`
	args := []any{filter.ItemID}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND posted_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND posted_at < $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Qty, &m.UnitCost, &m.BalanceQty,
			&m.RefModule, &m.RefID, &m.Note, &m.PostedAt, &m.CreatedBy); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction so workflows owning the
// transaction (sales, procurement, production) can move stock inside their
// boundary.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, id int64) (Item, error) {
	return scanItem(r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateItemStock(ctx context.Context, id int64, qty, avgCost decimal.Decimal, serialCounter int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE inventory_items SET stock_qty=$2, avg_cost=$3, serial_counter=$4, updated_at=NOW() WHERE id=$1`,
		id, qty, avgCost, serialCounter)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (item_id, type, qty, unit_cost, balance_qty, ref_module, ref_id, note, posted_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		movement.ItemID, movement.Type, movement.Qty, movement.UnitCost, movement.BalanceQty,
		movement.RefModule, movement.RefID, movement.Note, movement.PostedAt, movement.CreatedBy).Scan(&id)
	return id, err
}
