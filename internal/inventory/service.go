package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/shared"
)

// costScale is the precision kept for average unit costs between movements.
const costScale = 6

// Tx groups the item operations with ledger posting so adjustment workflows
// mutate stock and ledger inside one transaction boundary.
type Tx interface {
	TxRepository
	ledger.TxRepository
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetItem(ctx context.Context, id int64) (Item, error)
	GetItemByCode(ctx context.Context, code string) (Item, error)
	ListItems(ctx context.Context) ([]Item, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// LedgerPort is the slice of the ledger service adjustments need.
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

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service is the costing engine: it owns avgCost and stockQty per item and
// keeps the weighted moving average exact under receipts and issues.
type Service struct {
	repo     RepositoryPort
	ledger   LedgerPort
	mappings MappingPort
	audit    AuditPort
	allowNeg bool
	now      func() time.Time
}

// NewService builds the inventory service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, mappings MappingPort, audit AuditPort, cfg ServiceConfig) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledgerPort,
		mappings: mappings,
		audit:    audit,
		allowNeg: cfg.AllowNegativeStock,
		now:      time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateItemInput describes a new SKU.
type CreateItemInput struct {
	Code          string          `json:"code" validate:"required,max=50"`
	Name          string          `json:"name" validate:"required,max=200"`
	Category      string          `json:"category" validate:"max=100"`
	Packing       PackingType     `json:"packing" validate:"required,oneof=BALE SACK KG BOX BAG"`
	WeightPerUnit decimal.Decimal `json:"weight_per_unit"`
}

// CreateItem registers a SKU with zero stock.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	if !input.Packing.Valid() {
		return Item{}, fmt.Errorf("inventory: invalid packing type %q", input.Packing)
	}
	if input.Code == "" || input.Name == "" {
		return Item{}, errors.New("inventory: item code and name required")
	}
	if input.WeightPerUnit.Sign() < 0 {
		return Item{}, errors.New("inventory: weight per unit must be >= 0")
	}
	return s.repo.CreateItem(ctx, Item{
		Code:          input.Code,
		Name:          input.Name,
		Category:      input.Category,
		Packing:       input.Packing,
		WeightPerUnit: input.WeightPerUnit,
	})
}

// GetItem fetches one SKU.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems returns every SKU.
func (s *Service) ListItems(ctx context.Context) ([]Item, error) {
	return s.repo.ListItems(ctx)
}

// ListMovements returns stock card rows.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ItemID == 0 {
		return nil, errors.New("inventory: item required")
	}
	return s.repo.ListMovements(ctx, filter)
}

// ReceiveInput describes an inbound movement.
type ReceiveInput struct {
	ItemID    int64
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
	Type      MovementType
	RefModule string
	RefID     string
	Note      string
	ActorID   int64
	At        time.Time
}

// IssueInput describes an outbound movement.
type IssueInput struct {
	ItemID    int64
	Qty       decimal.Decimal
	Type      MovementType
	RefModule string
	RefID     string
	Note      string
	ActorID   int64
	Override  bool
	At        time.Time
}

// ReceiveStockTx applies a receipt inside a caller-owned transaction and
// recomputes the moving average:
//
//	avg' = (avg*qty + unitCost*inQty) / (qty + inQty)
//
// A negative unit cost is accepted; waste lines carry salvage-negative value.
func (s *Service) ReceiveStockTx(ctx context.Context, tx TxRepository, input ReceiveInput) (Item, error) {
	if input.Qty.Sign() <= 0 {
		return Item{}, fmt.Errorf("%w: item %d got %s", ErrInvalidQuantity, input.ItemID, input.Qty)
	}
	item, err := tx.GetItemForUpdate(ctx, input.ItemID)
	if err != nil {
		return Item{}, err
	}
	newQty := item.StockQty.Add(input.Qty)
	totalCost := item.AvgCost.Mul(item.StockQty).Add(input.UnitCost.Mul(input.Qty))
	newAvg := item.AvgCost
	if newQty.Sign() != 0 {
		newAvg = totalCost.DivRound(newQty, costScale)
	}
	serial := item.SerialCounter
	if item.Packing.Unitized() {
		serial += input.Qty.IntPart()
	}
	item.StockQty = newQty
	item.AvgCost = newAvg
	item.SerialCounter = serial
	if err := tx.UpdateItemStock(ctx, item.ID, newQty, newAvg, serial); err != nil {
		return Item{}, err
	}
	movementType := input.Type
	if movementType == "" {
		movementType = MovementReceive
	}
	if err := s.insertMovement(ctx, tx, item, input.Qty, input.UnitCost, movementType, input.RefModule, input.RefID, input.Note, input.ActorID, input.At); err != nil {
		return Item{}, err
	}
	return item, nil
}

// IssueStockTx applies an issue inside a caller-owned transaction. The average
// cost basis is unchanged; the returned unit cost is the avgCost carried to
// COGS. Oversell fails with ErrInsufficientStock unless explicitly overridden.
func (s *Service) IssueStockTx(ctx context.Context, tx TxRepository, input IssueInput) (Item, decimal.Decimal, error) {
	if input.Qty.Sign() <= 0 {
		return Item{}, decimal.Zero, fmt.Errorf("%w: item %d got %s", ErrInvalidQuantity, input.ItemID, input.Qty)
	}
	item, err := tx.GetItemForUpdate(ctx, input.ItemID)
	if err != nil {
		return Item{}, decimal.Zero, err
	}
	if input.Qty.GreaterThan(item.StockQty) && !input.Override && !s.allowNeg {
		return Item{}, decimal.Zero, fmt.Errorf("%w: item %s has %s, requested %s",
			ErrInsufficientStock, item.Code, item.StockQty, input.Qty)
	}
	unitCost := item.AvgCost
	item.StockQty = item.StockQty.Sub(input.Qty)
	if err := tx.UpdateItemStock(ctx, item.ID, item.StockQty, item.AvgCost, item.SerialCounter); err != nil {
		return Item{}, decimal.Zero, err
	}
	movementType := input.Type
	if movementType == "" {
		movementType = MovementIssue
	}
	if err := s.insertMovement(ctx, tx, item, input.Qty.Neg(), unitCost, movementType, input.RefModule, input.RefID, input.Note, input.ActorID, input.At); err != nil {
		return Item{}, decimal.Zero, err
	}
	return item, unitCost, nil
}

// LockItemsTx takes row locks on the given items in ascending id order so
// concurrent document postings touching overlapping items serialize instead
// of deadlocking, matching the account lock order in ledger postings.
func (s *Service) LockItemsTx(ctx context.Context, tx TxRepository, itemIDs []int64) error {
	seen := make(map[int64]struct{}, len(itemIDs))
	ids := make([]int64, 0, len(itemIDs))
	for _, id := range itemIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, err := tx.GetItemForUpdate(ctx, id); err != nil {
			return fmt.Errorf("item %d: %w", id, err)
		}
	}
	return nil
}

// ReceiveStock runs a receipt in its own transaction.
func (s *Service) ReceiveStock(ctx context.Context, input ReceiveInput) (Item, error) {
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		item, err = s.ReceiveStockTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return Item{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory.receive", item.ID, map[string]any{
		"qty": input.Qty.String(), "unit_cost": input.UnitCost.String(),
	})
	return item, nil
}

// IssueStock runs an issue in its own transaction.
func (s *Service) IssueStock(ctx context.Context, input IssueInput) (Item, decimal.Decimal, error) {
	var item Item
	var unitCost decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		item, unitCost, err = s.IssueStockTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return Item{}, decimal.Zero, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory.issue", item.ID, map[string]any{
		"qty": input.Qty.String(),
	})
	return item, unitCost, nil
}

// AdjustmentInput describes a stock correction. Qty is signed; negative
// adjustments value the shrinkage at current avgCost.
type AdjustmentInput struct {
	ItemID   int64
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
	WriteOff bool
	Reason   string
	ActorID  int64
	Override bool
}

// PostAdjustment corrects stock and posts the matching ADJUSTMENT or
// WRITE_OFF ledger transaction atomically.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (Item, ledger.Transaction, error) {
	if input.Qty.Sign() == 0 {
		return Item{}, ledger.Transaction{}, fmt.Errorf("%w: item %d", ErrInvalidQuantity, input.ItemID)
	}
	stockMapping, err := s.mappings.Get(ctx, "INVENTORY", "inventory.stock")
	if err != nil {
		return Item{}, ledger.Transaction{}, err
	}
	offsetKey := "inventory.adjustment"
	txnType := ledger.TxnTypeAdjustment
	movementType := MovementAdjustment
	if input.WriteOff {
		offsetKey = "inventory.writeoff"
		txnType = ledger.TxnTypeWriteOff
		movementType = MovementWriteOff
	}
	offsetMapping, err := s.mappings.Get(ctx, "INVENTORY", offsetKey)
	if err != nil {
		return Item{}, ledger.Transaction{}, err
	}

	var item Item
	var txn ledger.Transaction
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var value decimal.Decimal
		var err error
		if input.Qty.Sign() > 0 {
			item, err = s.ReceiveStockTx(ctx, tx, ReceiveInput{
				ItemID:   input.ItemID,
				Qty:      input.Qty,
				UnitCost: input.UnitCost,
				Type:     movementType,
				Note:     input.Reason,
				ActorID:  input.ActorID,
			})
			if err != nil {
				return err
			}
			value = ledger.RoundMoney(input.Qty.Mul(input.UnitCost))
		} else {
			var unitCost decimal.Decimal
			item, unitCost, err = s.IssueStockTx(ctx, tx, IssueInput{
				ItemID:   input.ItemID,
				Qty:      input.Qty.Neg(),
				Type:     movementType,
				Note:     input.Reason,
				ActorID:  input.ActorID,
				Override: input.Override,
			})
			if err != nil {
				return err
			}
			value = ledger.RoundMoney(input.Qty.Neg().Mul(unitCost))
		}
		if value.Sign() == 0 {
			return nil
		}
		narration := fmt.Sprintf("Stock adjustment %s x %s", item.Code, input.Qty)
		entries := []ledger.EntryInput{
			{AccountID: stockMapping.AccountID, Narration: narration},
			{AccountID: offsetMapping.AccountID, Narration: narration},
		}
		// A positive adjustment debits stock, a negative one credits it.
		// Salvage-negative unit costs make value negative and flip sides.
		amount := value.Abs()
		if (input.Qty.Sign() > 0) == (value.Sign() > 0) {
			entries[0].Debit = amount
			entries[1].Credit = amount
		} else {
			entries[0].Credit = amount
			entries[1].Debit = amount
		}
		txn, err = s.ledger.PostTx(ctx, tx, ledger.PostingInput{
			Type:         txnType,
			SourceModule: "INVENTORY.ADJUSTMENT",
			SourceID:     uuid.New(),
			Memo:         input.Reason,
			PostedBy:     input.ActorID,
			Entries:      entries,
		})
		return err
	})
	if err != nil {
		return Item{}, ledger.Transaction{}, err
	}
	s.recordAudit(ctx, input.ActorID, "inventory.adjust", item.ID, map[string]any{
		"qty": input.Qty.String(), "write_off": input.WriteOff, "reason": input.Reason,
	})
	return item, txn, nil
}

func (s *Service) insertMovement(ctx context.Context, tx TxRepository, item Item, qty, unitCost decimal.Decimal, movementType MovementType, refModule, refID, note string, actorID int64, at time.Time) error {
	if at.IsZero() {
		at = s.now().UTC()
	}
	_, err := tx.InsertMovement(ctx, Movement{
		ItemID:     item.ID,
		Type:       movementType,
		Qty:        qty,
		UnitCost:   unitCost,
		BalanceQty: item.StockQty,
		RefModule:  refModule,
		RefID:      refID,
		Note:       note,
		PostedAt:   at,
		CreatedBy:  actorID,
	})
	return err
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, itemID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory_item",
		EntityID: fmt.Sprintf("%d", itemID),
		Meta:     meta,
		At:       s.now(),
	})
}
