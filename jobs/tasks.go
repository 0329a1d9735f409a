package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrityScan verifies that every posted transaction balances and
	// that stored account balances match the entry history.
	TaskGLIntegrityScan = "ledger:integrity_scan"
	// TaskBalanceRebuild recomputes account balances from the entry history.
	TaskBalanceRebuild = "ledger:balance_rebuild"
	// TaskFXWarmup primes the exchange-rate cache from the rate table.
	TaskFXWarmup = "fx:warmup"
)

// GLIntegrityPayload scopes an integrity scan.
type GLIntegrityPayload struct {
	Since time.Time `json:"since,omitempty"`
}

// NewGLIntegrityTask constructs an integrity scan task.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrityScan, data, asynq.Queue(QueueDefault)), nil
}

// BalanceRebuildPayload scopes a balance rebuild to specific accounts, or all
// accounts when empty.
type BalanceRebuildPayload struct {
	AccountIDs []int64 `json:"account_ids,omitempty"`
}

// NewBalanceRebuildTask constructs a balance rebuild task.
func NewBalanceRebuildTask(payload BalanceRebuildPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceRebuild, data, asynq.Queue(QueueDefault)), nil
}

// NewFXWarmupTask constructs a cache warmup task.
func NewFXWarmupTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskFXWarmup, nil, asynq.Queue(QueueDefault)), nil
}
