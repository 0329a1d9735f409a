package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus tracks the posting lifecycle. An invoice is editable while
// unposted, immutable once posted, and terminal once reversed.
type InvoiceStatus string

const (
	InvoiceStatusUnposted InvoiceStatus = "UNPOSTED"
	InvoiceStatusPosted   InvoiceStatus = "POSTED"
	InvoiceStatusReversed InvoiceStatus = "REVERSED"
)

// Invoice is a customer sales invoice in its own currency. Totals are
// recomputed at posting time from the lines; stored values are display
// copies.
type Invoice struct {
	ID              int64
	Number          string
	Customer        string
	Currency        string
	Rate            decimal.Decimal
	Status          InvoiceStatus
	CashSale        bool
	Discount        decimal.Decimal
	Surcharge       decimal.Decimal
	Gross           decimal.Decimal
	Net             decimal.Decimal
	Memo            string
	LedgerTxnID     *int64
	ReversalTxnID   *int64
	Lines           []InvoiceLine
	AdditionalCosts []InvoiceCost
	CreatedBy       int64
	CreatedAt       time.Time
	PostedAt        *time.Time
}

// InvoiceLine is one sold item. Price is per unit in the invoice currency;
// UnitCost records the average cost captured at posting for COGS and
// reversal.
type InvoiceLine struct {
	ID        int64
	InvoiceID int64
	ItemID    int64
	Qty       decimal.Decimal
	Price     decimal.Decimal
	Amount    decimal.Decimal
	UnitCost  decimal.Decimal
}

// InvoiceCost is a pass-through charge billed to the customer and owed to a
// provider (freight, handling), in the invoice currency.
type InvoiceCost struct {
	ID        int64
	InvoiceID int64
	Kind      string
	Provider  string
	Amount    decimal.Decimal
}

var (
	// ErrInvoiceNotFound indicates an unknown invoice id.
	ErrInvoiceNotFound = errors.New("sales: invoice not found")
	// ErrAlreadyPosted indicates posting a posted or reversed invoice.
	ErrAlreadyPosted = errors.New("sales: invoice already posted")
	// ErrNotPosted indicates reversing or receipting an unposted invoice.
	ErrNotPosted = errors.New("sales: invoice is not posted")
	// ErrNoLines indicates an invoice without lines.
	ErrNoLines = errors.New("sales: invoice requires at least one line")
	// ErrInvalidPrice indicates a zero or negative line price.
	ErrInvalidPrice = errors.New("sales: line price must be positive")
)
