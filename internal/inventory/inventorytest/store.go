// Package inventorytest provides an in-memory stock store for service and
// workflow tests. It pairs with ledgertest so combined stock-plus-ledger
// transactions can be exercised without a database.
package inventorytest

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/inventory"
	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/ledger/ledgertest"
)

// Store implements inventory.RepositoryPort and inventory.TxRepository over
// maps. Ledger is the backing ledger store used for the combined transaction
// view; WithTx snapshots both sides and restores them when the callback
// fails.
type Store struct {
	mu        sync.Mutex
	Ledger    *ledgertest.Store
	Items     map[int64]inventory.Item
	Movements []inventory.Movement

	nextItemID     int64
	nextMovementID int64
}

// NewStore returns an empty store backed by the given ledger store.
func NewStore(ledgerStore *ledgertest.Store) *Store {
	if ledgerStore == nil {
		ledgerStore = ledgertest.NewStore()
	}
	return &Store{
		Ledger: ledgerStore,
		Items:  make(map[int64]inventory.Item),
	}
}

// SeedItem registers an item with the given stock position and returns it.
func (s *Store) SeedItem(code string, packing inventory.PackingType, qty, avgCost decimal.Decimal) inventory.Item {
	s.nextItemID++
	item := inventory.Item{
		ID:       s.nextItemID,
		Code:     code,
		Name:     code,
		Packing:  packing,
		StockQty: qty,
		AvgCost:  avgCost,
	}
	s.Items[item.ID] = item
	return item
}

type combinedTx struct {
	*Store
	ledger.TxRepository
}

func (s *Store) snapshot() func() {
	items := make(map[int64]inventory.Item, len(s.Items))
	for id, item := range s.Items {
		items[id] = item
	}
	movements := append([]inventory.Movement(nil), s.Movements...)
	nextItemID, nextMovementID := s.nextItemID, s.nextMovementID
	restoreLedger := s.Ledger.Snapshot()
	return func() {
		s.Items = items
		s.Movements = movements
		s.nextItemID, s.nextMovementID = nextItemID, nextMovementID
		restoreLedger()
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	restore := s.snapshot()
	if err := fn(ctx, combinedTx{Store: s, TxRepository: s.Ledger}); err != nil {
		restore()
		return err
	}
	return nil
}

func (s *Store) GetItem(_ context.Context, id int64) (inventory.Item, error) {
	item, ok := s.Items[id]
	if !ok {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return item, nil
}

func (s *Store) GetItemByCode(_ context.Context, code string) (inventory.Item, error) {
	for _, item := range s.Items {
		if item.Code == code {
			return item, nil
		}
	}
	return inventory.Item{}, inventory.ErrItemNotFound
}

func (s *Store) ListItems(_ context.Context) ([]inventory.Item, error) {
	out := make([]inventory.Item, 0, len(s.Items))
	for _, item := range s.Items {
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) CreateItem(_ context.Context, item inventory.Item) (inventory.Item, error) {
	for _, existing := range s.Items {
		if existing.Code == item.Code {
			return inventory.Item{}, inventory.ErrDuplicateCode
		}
	}
	s.nextItemID++
	item.ID = s.nextItemID
	item.CreatedAt = time.Now()
	s.Items[item.ID] = item
	return item, nil
}

func (s *Store) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, movement := range s.Movements {
		if movement.ItemID == filter.ItemID {
			out = append(out, movement)
		}
	}
	return out, nil
}

func (s *Store) GetItemForUpdate(ctx context.Context, id int64) (inventory.Item, error) {
	return s.GetItem(ctx, id)
}

func (s *Store) UpdateItemStock(_ context.Context, id int64, qty, avgCost decimal.Decimal, serialCounter int64) error {
	item, ok := s.Items[id]
	if !ok {
		return inventory.ErrItemNotFound
	}
	item.StockQty = qty
	item.AvgCost = avgCost
	item.SerialCounter = serialCounter
	s.Items[id] = item
	return nil
}

func (s *Store) InsertMovement(_ context.Context, movement inventory.Movement) (int64, error) {
	s.nextMovementID++
	movement.ID = s.nextMovementID
	s.Movements = append(s.Movements, movement)
	return movement.ID, nil
}
