package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TrialBalanceRow aggregates one account's posted activity.
type TrialBalanceRow struct {
	AccountID   int64
	Code        string
	Name        string
	Type        AccountType
	Balance     decimal.Decimal
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// TrialBalance is the full report plus its control totals.
type TrialBalance struct {
	AsOf        time.Time
	Rows        []TrialBalanceRow
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Balanced reports whether total debits equal total credits.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// TrialBalance builds the report from the ledger store.
func (s *Service) TrialBalance(ctx context.Context) (TrialBalance, error) {
	rows, err := s.repo.TrialBalanceRows(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	var tb TrialBalance
	tb.AsOf = s.now().UTC()
	tb.Rows = rows
	for _, row := range rows {
		tb.TotalDebit = tb.TotalDebit.Add(row.TotalDebit)
		tb.TotalCredit = tb.TotalCredit.Add(row.TotalCredit)
	}
	return tb, nil
}

// DerivedBalance recomputes an account's balance from its legs, applying the
// normal-balance sign. Used by the integrity scan to cross-check stored
// balances.
func DerivedBalance(accountType AccountType, totalDebit, totalCredit decimal.Decimal) decimal.Decimal {
	if accountType.DebitNormal() {
		return totalDebit.Sub(totalCredit)
	}
	return totalCredit.Sub(totalDebit)
}
