package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus tracks the posting lifecycle of a purchase.
type PurchaseStatus string

const (
	PurchaseStatusDraft  PurchaseStatus = "DRAFT"
	PurchaseStatusPosted PurchaseStatus = "POSTED"
)

// Purchase is a supplier consignment of original (unsorted) clothing. Lines
// are priced per kg in the supplier's currency; additional costs may arrive
// in other currencies and are folded into landed cost at posting.
type Purchase struct {
	ID              int64
	Number          string
	Supplier        string
	Currency        string
	Rate            decimal.Decimal
	Status          PurchaseStatus
	Memo            string
	LedgerTxnID     *int64
	Lines           []PurchaseLine
	AdditionalCosts []AdditionalCost
	CreatedBy       int64
	CreatedAt       time.Time
	PostedAt        *time.Time
}

// PurchaseLine is one original-type lot. WeightKg is the billed weight, Qty
// the stock units received. Landed figures are filled at posting.
type PurchaseLine struct {
	ID             int64
	PurchaseID     int64
	ItemID         int64
	OriginalType   string
	WeightKg       decimal.Decimal
	Qty            decimal.Decimal
	CostPerKg      decimal.Decimal
	MaterialBase   decimal.Decimal
	LandedBase     decimal.Decimal
	LandedUnitCost decimal.Decimal
}

// AdditionalCost is freight, clearing, commission or similar, in its own
// currency. LineIndex pins the cost to one line; nil spreads it pro-rata by
// weight.
type AdditionalCost struct {
	ID         int64
	PurchaseID int64
	Provider   string
	Kind       string
	Amount     decimal.Decimal
	Currency   string
	Rate       decimal.Decimal
	LineIndex  *int
}

var (
	// ErrZeroWeight indicates landed cost allocation over zero total weight.
	ErrZeroWeight = errors.New("procurement: total weight must be positive")
	// ErrPurchaseNotFound indicates an unknown purchase id.
	ErrPurchaseNotFound = errors.New("procurement: purchase not found")
	// ErrAlreadyPosted indicates posting a purchase twice.
	ErrAlreadyPosted = errors.New("procurement: purchase already posted")
	// ErrNoLines indicates a purchase without lines.
	ErrNoLines = errors.New("procurement: purchase requires at least one line")
	// ErrBadLineTag indicates an additional cost tagged to a missing line.
	ErrBadLineTag = errors.New("procurement: additional cost tagged to unknown line")
)
