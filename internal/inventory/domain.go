package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PackingType enumerates how an item is packed and sold.
type PackingType string

const (
	PackingBale PackingType = "BALE"
	PackingSack PackingType = "SACK"
	PackingKg   PackingType = "KG"
	PackingBox  PackingType = "BOX"
	PackingBag  PackingType = "BAG"
)

// Unitized reports whether stock of this packing carries serial numbers.
func (p PackingType) Unitized() bool {
	return p == PackingBale || p == PackingSack || p == PackingBox || p == PackingBag
}

// Valid reports whether the packing type is known.
func (p PackingType) Valid() bool {
	switch p {
	case PackingBale, PackingSack, PackingKg, PackingBox, PackingBag:
		return true
	}
	return false
}

// Item is an inventory SKU. AvgCost is the weighted moving average unit cost
// in base currency; it may legitimately be negative for waste lines whose
// salvage value is charged back to good output. StockQty never goes negative
// without an explicit override.
type Item struct {
	ID            int64
	Code          string
	Name          string
	Category      string
	Packing       PackingType
	AvgCost       decimal.Decimal
	StockQty      decimal.Decimal
	WeightPerUnit decimal.Decimal
	SerialCounter int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MovementType enumerates stock movement causes.
type MovementType string

const (
	MovementReceive    MovementType = "RECEIVE"
	MovementIssue      MovementType = "ISSUE"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementWriteOff   MovementType = "WRITE_OFF"
)

// Movement is one stock card row. Qty is signed: positive in, negative out.
type Movement struct {
	ID         int64
	ItemID     int64
	Type       MovementType
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	BalanceQty decimal.Decimal
	RefModule  string
	RefID      string
	Note       string
	PostedAt   time.Time
	CreatedBy  int64
}

// MovementFilter narrows stock card queries.
type MovementFilter struct {
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}

var (
	// ErrInvalidQuantity indicates a zero or negative movement quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInsufficientStock indicates an issue larger than on-hand stock.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrItemNotFound indicates a missing SKU.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrDuplicateCode indicates an item code collision.
	ErrDuplicateCode = errors.New("inventory: item code already exists")
)
