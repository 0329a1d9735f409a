package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/rethread-erp/rethread-erp/internal/jobs"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
)

// GLIntegrityJob walks the ledger and reports transactions whose legs do not
// balance and accounts whose stored balance drifted from the entry history.
type GLIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob initialises the integrity scan handler.
func NewGLIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity scan.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload GLIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskGLIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	unbalanced, err := j.scanUnbalanced(ctx, payload.Since)
	if err != nil {
		resultErr = err
		return resultErr
	}
	for _, txnID := range unbalanced {
		logger.Error("unbalanced transaction", slog.Int64("transaction_id", txnID))
	}
	j.Metrics.AddViolations("unbalanced_transaction", len(unbalanced))

	drifted, err := j.scanDriftedBalances(ctx)
	if err != nil {
		resultErr = err
		return resultErr
	}
	for _, d := range drifted {
		logger.Error("account balance drift",
			slog.Int64("account_id", d.AccountID),
			slog.String("stored", d.Stored.String()),
			slog.String("derived", d.Derived.String()))
	}
	j.Metrics.AddViolations("balance_drift", len(drifted))

	logger.Info("gl integrity scan finished",
		slog.Int("unbalanced", len(unbalanced)),
		slog.Int("drifted", len(drifted)))
	return nil
}

func (j *GLIntegrityJob) scanUnbalanced(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := j.Pool.Query(ctx, `SELECT t.id
FROM ledger_transactions t
JOIN ledger_entries e ON e.transaction_id = t.id
WHERE t.posted_at >= $1
GROUP BY t.id
HAVING ROUND(SUM(e.debit), 2) <> ROUND(SUM(e.credit), 2)
ORDER BY t.id ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type balanceDrift struct {
	AccountID int64
	Stored    decimal.Decimal
	Derived   decimal.Decimal
}

func (j *GLIntegrityJob) scanDriftedBalances(ctx context.Context) ([]balanceDrift, error) {
	rows, err := j.Pool.Query(ctx, `SELECT a.id, a.type, a.balance,
COALESCE(SUM(e.debit), 0), COALESCE(SUM(e.credit), 0)
FROM accounts a
LEFT JOIN ledger_entries e ON e.account_id = a.id
GROUP BY a.id, a.type, a.balance
ORDER BY a.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drifted []balanceDrift
	for rows.Next() {
		var (
			id                     int64
			accountType            ledger.AccountType
			stored, debit, credit  decimal.Decimal
		)
		if err := rows.Scan(&id, &accountType, &stored, &debit, &credit); err != nil {
			return nil, err
		}
		derived := ledger.DerivedBalance(accountType, debit, credit)
		if !stored.Equal(derived) {
			drifted = append(drifted, balanceDrift{AccountID: id, Stored: stored, Derived: derived})
		}
	}
	return drifted, rows.Err()
}
