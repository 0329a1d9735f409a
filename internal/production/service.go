package production

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/inventory"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/shared"
)

const (
	mappingModule = "PRODUCTION"
	keyRawStock   = "production.input"
	keyGradedOut  = "production.output"
)

// Tx groups run persistence with stock and ledger operations.
type Tx interface {
	inventory.TxRepository
	ledger.TxRepository
	InsertRun(ctx context.Context, run Run) (Run, error)
	SetRunLedgerTxn(ctx context.Context, runID, txnID int64) error
}

// RepositoryPort abstracts run persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetRun(ctx context.Context, id int64) (Run, error)
	ListRuns(ctx context.Context) ([]Run, error)
}

// StockPort is the slice of the inventory service runs need.
type StockPort interface {
	LockItemsTx(ctx context.Context, tx inventory.TxRepository, itemIDs []int64) error
	IssueStockTx(ctx context.Context, tx inventory.TxRepository, input inventory.IssueInput) (inventory.Item, decimal.Decimal, error)
	ReceiveStockTx(ctx context.Context, tx inventory.TxRepository, input inventory.ReceiveInput) (inventory.Item, error)
}

// LedgerPort is the slice of the ledger service runs need.
type LedgerPort interface {
	PostTx(ctx context.Context, tx ledger.TxRepository, input ledger.PostingInput) (ledger.Transaction, error)
}

// MappingPort resolves account mappings.
type MappingPort interface {
	Get(ctx context.Context, module, key string) (ledger.AccountMapping, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts bale-opening runs: issue the raw lot, distribute its cost
// over graded outputs, receive the outputs, and move the value between the
// raw and graded inventory accounts, all in one transaction.
type Service struct {
	repo     RepositoryPort
	stock    StockPort
	ledger   LedgerPort
	mappings MappingPort
	audit    AuditPort
	now      func() time.Time
}

// NewService builds the production service.
func NewService(repo RepositoryPort, stock StockPort, ledgerPort LedgerPort, mappings MappingPort, audit AuditPort) *Service {
	return &Service{repo: repo, stock: stock, ledger: ledgerPort, mappings: mappings, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// OutputInput is one graded output line of a run request. UnitCost is only
// read for waste lines.
type OutputInput struct {
	ItemID   int64           `json:"item_id" validate:"required"`
	Qty      decimal.Decimal `json:"qty"`
	WeightKg decimal.Decimal `json:"weight_kg"`
	Waste    bool            `json:"waste"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// RunInput describes a bale-opening run.
type RunInput struct {
	InputItemID int64           `json:"input_item_id" validate:"required"`
	InputQty    decimal.Decimal `json:"input_qty"`
	Memo        string          `json:"memo" validate:"max=500"`
	Outputs     []OutputInput   `json:"outputs" validate:"required,min=1,dive"`
	ActorID     int64           `json:"-"`
	Override    bool            `json:"override"`
}

// PostRun executes and persists a run.
func (s *Service) PostRun(ctx context.Context, input RunInput) (Run, error) {
	if len(input.Outputs) == 0 {
		return Run{}, ErrNoOutputs
	}
	if input.InputQty.Sign() <= 0 {
		return Run{}, fmt.Errorf("%w: input qty %s", inventory.ErrInvalidQuantity, input.InputQty)
	}
	rawMapping, err := s.mappings.Get(ctx, mappingModule, keyRawStock)
	if err != nil {
		return Run{}, err
	}
	gradedMapping, err := s.mappings.Get(ctx, mappingModule, keyGradedOut)
	if err != nil {
		return Run{}, err
	}

	var run Run
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		// Lock input and output items in ascending id order before moving
		// stock so concurrent runs sharing items cannot deadlock.
		itemIDs := make([]int64, 0, len(input.Outputs)+1)
		itemIDs = append(itemIDs, input.InputItemID)
		for _, out := range input.Outputs {
			itemIDs = append(itemIDs, out.ItemID)
		}
		if err := s.stock.LockItemsTx(ctx, tx, itemIDs); err != nil {
			return err
		}

		postedAt := s.now().UTC()
		_, unitCost, err := s.stock.IssueStockTx(ctx, tx, inventory.IssueInput{
			ItemID:    input.InputItemID,
			Qty:       input.InputQty,
			RefModule: "PRODUCTION",
			Note:      input.Memo,
			ActorID:   input.ActorID,
			Override:  input.Override,
			At:        postedAt,
		})
		if err != nil {
			return err
		}
		consumed := unitCost.Mul(input.InputQty)

		outputs := make([]RunOutput, len(input.Outputs))
		for i, line := range input.Outputs {
			outputs[i] = RunOutput{
				ItemID:   line.ItemID,
				Qty:      line.Qty,
				WeightKg: line.WeightKg,
				Waste:    line.Waste,
				UnitCost: line.UnitCost,
			}
		}
		outputs, err = DistributeRunCost(consumed, outputs)
		if err != nil {
			return err
		}

		run = Run{
			InputItemID:  input.InputItemID,
			InputQty:     input.InputQty,
			ConsumedCost: consumed,
			Memo:         input.Memo,
			Outputs:      outputs,
			CreatedBy:    input.ActorID,
			PostedAt:     postedAt,
		}
		run, err = tx.InsertRun(ctx, run)
		if err != nil {
			return err
		}
		for i, line := range run.Outputs {
			if _, err := s.stock.ReceiveStockTx(ctx, tx, inventory.ReceiveInput{
				ItemID:    line.ItemID,
				Qty:       line.Qty,
				UnitCost:  line.UnitCost,
				RefModule: "PRODUCTION",
				RefID:     run.Number,
				ActorID:   input.ActorID,
				At:        postedAt,
			}); err != nil {
				return fmt.Errorf("output %d: %w", i, err)
			}
		}

		value := ledger.RoundMoney(consumed)
		if value.Sign() != 0 {
			narration := fmt.Sprintf("Bale opening %s", run.Number)
			entries := []ledger.EntryInput{
				{AccountID: gradedMapping.AccountID, Narration: narration},
				{AccountID: rawMapping.AccountID, Narration: narration},
			}
			// A negative pool (salvage exceeding consumed cost) flips sides.
			if value.Sign() > 0 {
				entries[0].Debit = value
				entries[1].Credit = value
			} else {
				entries[0].Credit = value.Neg()
				entries[1].Debit = value.Neg()
			}
			txn, err := s.ledger.PostTx(ctx, tx, ledger.PostingInput{
				Type:         ledger.TxnTypeProduction,
				SourceModule: "PRODUCTION.RUN",
				SourceID:     uuid.New(),
				Memo:         fmt.Sprintf("Production run %s", run.Number),
				PostedBy:     input.ActorID,
				Date:         postedAt,
				Entries:      entries,
			})
			if err != nil {
				return err
			}
			run.LedgerTxnID = &txn.ID
			if err := tx.SetRunLedgerTxn(ctx, run.ID, txn.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	s.recordAudit(ctx, input.ActorID, "production.post", run.ID, map[string]any{
		"number":   run.Number,
		"consumed": run.ConsumedCost.String(),
	})
	return run, nil
}

// GetRun fetches one run with its output lines.
func (s *Service) GetRun(ctx context.Context, id int64) (Run, error) {
	return s.repo.GetRun(ctx, id)
}

// ListRuns returns all runs.
func (s *Service) ListRuns(ctx context.Context) ([]Run, error) {
	return s.repo.ListRuns(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "production_run",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
		At:       s.now(),
	})
}
