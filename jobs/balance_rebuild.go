package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/rethread-erp/rethread-erp/internal/jobs"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/platform/db"
)

// BalanceRebuildJob recomputes stored account balances from the entry history.
// It is the recovery path after an integrity scan reports drift.
type BalanceRebuildJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBalanceRebuildJob initialises the rebuild handler.
func NewBalanceRebuildJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *BalanceRebuildJob {
	return &BalanceRebuildJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle executes the rebuild inside a single database transaction.
func (j *BalanceRebuildJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("balance rebuild: handler not configured")
	}
	var payload BalanceRebuildPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskBalanceRebuild)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var updated int
	resultErr = db.WithTx(ctx, j.Pool, func(tx pgx.Tx) error {
		n, err := rebuildBalances(ctx, tx, payload.AccountIDs)
		updated = n
		return err
	})
	if resultErr != nil {
		return resultErr
	}
	logger.Info("account balances rebuilt", slog.Int("updated", updated))
	return nil
}

func rebuildBalances(ctx context.Context, tx pgx.Tx, accountIDs []int64) (int, error) {
	query := `SELECT a.id, a.type,
COALESCE(SUM(e.debit), 0), COALESCE(SUM(e.credit), 0)
FROM accounts a
LEFT JOIN ledger_entries e ON e.account_id = a.id
WHERE cardinality($1::bigint[]) = 0 OR a.id = ANY($1)
GROUP BY a.id, a.type
ORDER BY a.id ASC`
	if accountIDs == nil {
		accountIDs = []int64{}
	}
	rows, err := tx.Query(ctx, query, accountIDs)
	if err != nil {
		return 0, err
	}
	type target struct {
		id      int64
		balance decimal.Decimal
	}
	var targets []target
	for rows.Next() {
		var (
			id            int64
			accountType   ledger.AccountType
			debit, credit decimal.Decimal
		)
		if err := rows.Scan(&id, &accountType, &debit, &credit); err != nil {
			rows.Close()
			return 0, err
		}
		targets = append(targets, target{id: id, balance: ledger.DerivedBalance(accountType, debit, credit)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, tgt := range targets {
		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, tgt.id, tgt.balance); err != nil {
			return 0, err
		}
	}
	return len(targets), nil
}
