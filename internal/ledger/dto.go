package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryInput describes one leg of a posting request. Debit and Credit are base
// currency amounts; exactly one must be nonzero.
type EntryInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Currency  string
	Rate      decimal.Decimal
	FCYAmount decimal.Decimal
	Narration string
}

// PostingInput groups the fields required to commit a transaction.
type PostingInput struct {
	Type         TransactionType
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	Date         time.Time
	Entries      []EntryInput
}

// Validate checks the structural invariants before any state is touched.
func (in PostingInput) Validate() error {
	if in.Type == "" {
		return errors.New("ledger: transaction type required")
	}
	if in.SourceModule == "" {
		return errors.New("ledger: source module required")
	}
	if len(in.Entries) < 2 {
		return ErrTooFewEntries
	}
	var debit, credit decimal.Decimal
	for idx, entry := range in.Entries {
		if entry.AccountID == 0 {
			return fmt.Errorf("ledger: leg %d missing account", idx)
		}
		if entry.Debit.Sign() < 0 || entry.Credit.Sign() < 0 {
			return fmt.Errorf("ledger: leg %d negative amount", idx)
		}
		if entry.Debit.Sign() != 0 && entry.Credit.Sign() != 0 {
			return fmt.Errorf("ledger: leg %d cannot be both debit and credit", idx)
		}
		if entry.Debit.Sign() == 0 && entry.Credit.Sign() == 0 {
			return fmt.Errorf("ledger: leg %d has no amount", idx)
		}
		debit = debit.Add(RoundMoney(entry.Debit))
		credit = credit.Add(RoundMoney(entry.Credit))
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

// ReverseInput wraps parameters for reversing a committed transaction.
type ReverseInput struct {
	TransactionID int64
	Reason        string
	ActorID       int64
}

// OpeningLine seeds one account balance. Amount is positive on the account's
// normal side.
type OpeningLine struct {
	AccountID int64
	Amount    decimal.Decimal
}

// OpeningBalanceInput seeds balances against an equity offset account.
type OpeningBalanceInput struct {
	Lines           []OpeningLine
	OffsetAccountID int64
	Memo            string
	ActorID         int64
	Date            time.Time
}

// CreateAccountInput describes a new chart-of-accounts entry.
type CreateAccountInput struct {
	Code string      `json:"code" validate:"required,max=20"`
	Name string      `json:"name" validate:"required,max=200"`
	Type AccountType `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
}
