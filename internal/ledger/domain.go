package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType classifies a ledger account.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// DebitNormal reports whether the account type increases on debit.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Valid reports whether the type is one of the five classes.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Account is one ledger account. Balance is stored in the base currency and is
// always the sign-adjusted sum of posted legs. Accounts are deactivated, never
// deleted.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	Balance   decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionType enumerates supported business events.
type TransactionType string

const (
	TxnTypeSalesInvoice   TransactionType = "SALES_INVOICE"
	TxnTypePurchase       TransactionType = "PURCHASE"
	TxnTypeReceipt        TransactionType = "RECEIPT"
	TxnTypePayment        TransactionType = "PAYMENT"
	TxnTypeExpense        TransactionType = "EXPENSE"
	TxnTypeTransfer       TransactionType = "TRANSFER"
	TxnTypeJournal        TransactionType = "JOURNAL"
	TxnTypeProduction     TransactionType = "PRODUCTION"
	TxnTypeOpeningBalance TransactionType = "OPENING_BALANCE"
	TxnTypeAdjustment     TransactionType = "ADJUSTMENT"
	TxnTypeWriteOff       TransactionType = "WRITE_OFF"
)

// TransactionStatus tracks the posting lifecycle.
type TransactionStatus string

const (
	TxnStatusPosted   TransactionStatus = "POSTED"
	TxnStatusReversed TransactionStatus = "REVERSED"
)

// Transaction groups the legs of one double-entry event.
type Transaction struct {
	ID           int64
	Number       int64
	Type         TransactionType
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	PostedAt     time.Time
	Status       TransactionStatus
	ReversalOf   *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Entries      []Entry
}

// Entry is one debit-or-credit leg. Exactly one of Debit/Credit is nonzero,
// both in base currency; the foreign amount and rate record the original
// currency of the document line.
type Entry struct {
	ID            int64
	TransactionID int64
	AccountID     int64
	Currency      string
	Rate          decimal.Decimal
	FCYAmount     decimal.Decimal
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	Narration     string
	CreatedAt     time.Time
}

// ArchivedTransaction preserves the original legs of a reversed transaction
// for audit. Written once, never mutated.
type ArchivedTransaction struct {
	ID            int64
	TransactionID int64
	Type          TransactionType
	Memo          string
	Reason        string
	ActorID       int64
	ArchivedAt    time.Time
	Entries       []Entry
}

var (
	// ErrUnbalanced indicates sum(debit) != sum(credit) across the legs.
	ErrUnbalanced = errors.New("ledger: transaction legs must balance")
	// ErrTooFewEntries indicates less than two legs.
	ErrTooFewEntries = errors.New("ledger: transaction requires at least two legs")
	// ErrTransactionNotFound indicates an unknown transaction id.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	// ErrAlreadyReversed indicates a reversal already exists.
	ErrAlreadyReversed = errors.New("ledger: transaction already reversed")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAccountInactive indicates posting against a deactivated account.
	ErrAccountInactive = errors.New("ledger: account is deactivated")
	// ErrDuplicateCode indicates an account code collision.
	ErrDuplicateCode = errors.New("ledger: account code already exists")
)

// RoundMoney normalises a base-currency amount to cents. Every leg is rounded
// with this before the balance check so the invariant is exact.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
