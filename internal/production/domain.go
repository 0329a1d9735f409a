package production

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Run is one bale-opening run: a raw lot is consumed at its average cost and
// the value is redistributed over graded output lines.
type Run struct {
	ID           int64
	Number       string
	InputItemID  int64
	InputQty     decimal.Decimal
	ConsumedCost decimal.Decimal
	Memo         string
	LedgerTxnID  *int64
	Outputs      []RunOutput
	CreatedBy    int64
	PostedAt     time.Time
}

// RunOutput is one graded output line. Waste lines carry a fixed unit cost,
// typically negative when salvage value is clawed back from good output; good
// lines share the remaining consumed cost pro-rata by weight.
type RunOutput struct {
	ID        int64
	RunID     int64
	ItemID    int64
	Qty       decimal.Decimal
	WeightKg  decimal.Decimal
	Waste     bool
	UnitCost  decimal.Decimal
	CostShare decimal.Decimal
}

var (
	// ErrZeroWeight indicates no positive output weight to distribute over.
	ErrZeroWeight = errors.New("production: output weight must be positive")
	// ErrNoOutputs indicates a run without output lines.
	ErrNoOutputs = errors.New("production: run requires at least one output")
	// ErrRunNotFound indicates an unknown run id.
	ErrRunNotFound = errors.New("production: run not found")
)
