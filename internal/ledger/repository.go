package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates ledger persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)
	SetAccountActive(ctx context.Context, id int64, active bool) error
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	TrialBalanceRows(ctx context.Context) ([]TrialBalanceRow, error)
}

// TxRepository exposes operations available inside one database transaction.
type TxRepository interface {
	InsertTransaction(ctx context.Context, txn Transaction) (id int64, number int64, err error)
	InsertEntries(ctx context.Context, txnID int64, entries []Entry) error
	GetAccountForUpdate(ctx context.Context, id int64) (Account, error)
	UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	GetTransactionWithEntries(ctx context.Context, id int64) (Transaction, []Entry, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status TransactionStatus) error
	HasReversal(ctx context.Context, id int64) (bool, error)
	InsertArchivedTransaction(ctx context.Context, archive ArchivedTransaction) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const accountColumns = `id, code, name, type, balance, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
}

func (r *repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (code, name, type, balance, is_active)
VALUES ($1,$2,$3,0,$4) RETURNING `+accountColumns, account.Code, account.Name, account.Type, account.IsActive)
	created, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, fmt.Errorf("%w: %s", ErrDuplicateCode, account.Code)
		}
		return Account{}, err
	}
	return created, nil
}

func (r *repository) SetAccountActive(ctx context.Context, id int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

const transactionColumns = `id, number, type, source_module, source_id, memo, posted_by, posted_at, status, reversal_of, created_at, updated_at`

func (r *repository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	var txn Transaction
	err := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM ledger_transactions WHERE id=$1`, id).
		Scan(&txn.ID, &txn.Number, &txn.Type, &txn.SourceModule, &txn.SourceID, &txn.Memo, &txn.PostedBy, &txn.PostedAt, &txn.Status, &txn.ReversalOf, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	entries, err := r.listEntries(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	txn.Entries = entries
	return txn, nil
}

func (r *repository) listEntries(ctx context.Context, txnID int64) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT id, transaction_id, account_id, currency, rate, fcy_amount, debit, credit, narration, created_at
FROM ledger_entries WHERE transaction_id=$1 ORDER BY id ASC`, txnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.Currency, &e.Rate, &e.FCYAmount, &e.Debit, &e.Credit, &e.Narration, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) TrialBalanceRows(ctx context.Context) ([]TrialBalanceRow, error) {
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type, a.balance,
COALESCE(SUM(e.debit),0), COALESCE(SUM(e.credit),0)
FROM accounts a
LEFT JOIN ledger_entries e ON e.account_id = a.id
GROUP BY a.id, a.code, a.name, a.type, a.balance
ORDER BY a.code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		if err := rows.Scan(&row.AccountID, &row.Code, &row.Name, &row.Type, &row.Balance, &row.TotalDebit, &row.TotalCredit); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction. Workflows that own the
// transaction (sales, procurement, production) use this to post ledger legs
// inside their boundary.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (int64, int64, error) {
	var id, number int64
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_transactions (type, source_module, source_id, memo, posted_by, posted_at, status, reversal_of)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, number`,
		txn.Type, txn.SourceModule, txn.SourceID, txn.Memo, txn.PostedBy, txn.PostedAt, txn.Status, txn.ReversalOf).
		Scan(&id, &number)
	return id, number, err
}

func (r *txRepository) InsertEntries(ctx context.Context, txnID int64, entries []Entry) error {
	for _, entry := range entries {
		if _, err := r.tx.Exec(ctx, `INSERT INTO ledger_entries (transaction_id, account_id, currency, rate, fcy_amount, debit, credit, narration)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			txnID, entry.AccountID, entry.Currency, entry.Rate, entry.FCYAmount, entry.Debit, entry.Credit, entry.Narration); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, id, balance)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) GetTransactionWithEntries(ctx context.Context, id int64) (Transaction, []Entry, error) {
	var txn Transaction
	err := r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM ledger_transactions WHERE id=$1 FOR UPDATE`, id).
		Scan(&txn.ID, &txn.Number, &txn.Type, &txn.SourceModule, &txn.SourceID, &txn.Memo, &txn.PostedBy, &txn.PostedAt, &txn.Status, &txn.ReversalOf, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, nil, ErrTransactionNotFound
		}
		return Transaction{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, transaction_id, account_id, currency, rate, fcy_amount, debit, credit, narration, created_at
FROM ledger_entries WHERE transaction_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Transaction{}, nil, err
	}
	defer rows.Close()
	entries, err := collectEntries(rows)
	if err != nil {
		return Transaction{}, nil, err
	}
	return txn, entries, nil
}

func (r *txRepository) UpdateTransactionStatus(ctx context.Context, id int64, status TransactionStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ledger_transactions SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *txRepository) HasReversal(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ledger_transactions WHERE reversal_of=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertArchivedTransaction(ctx context.Context, archive ArchivedTransaction) error {
	var archiveID int64
	err := r.tx.QueryRow(ctx, `INSERT INTO archived_transactions (transaction_id, type, memo, reason, actor_id, archived_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		archive.TransactionID, archive.Type, archive.Memo, archive.Reason, archive.ActorID, archive.ArchivedAt).
		Scan(&archiveID)
	if err != nil {
		return err
	}
	for _, entry := range archive.Entries {
		if _, err := r.tx.Exec(ctx, `INSERT INTO archived_entries (archive_id, account_id, currency, rate, fcy_amount, debit, credit, narration)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			archiveID, entry.AccountID, entry.Currency, entry.Rate, entry.FCYAmount, entry.Debit, entry.Credit, entry.Narration); err != nil {
			return err
		}
	}
	return nil
}
