package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rethread-erp/rethread-erp/internal/ledger"
	"github.com/rethread-erp/rethread-erp/internal/ledger/ledgertest"
)

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newService(t *testing.T) (*ledger.Service, *ledgertest.Store) {
	t.Helper()
	store := ledgertest.NewStore()
	svc := ledger.NewService(store, nil)
	svc.WithNow(fixedClock())
	return svc, store
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPostUpdatesBalancesBothSides(t *testing.T) {
	svc, store := newService(t)
	cash := store.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, d("500"))
	revenue := store.SeedAccount("4000", "Sales Revenue", ledger.AccountTypeRevenue, d("0"))

	txn, err := svc.Post(context.Background(), ledger.PostingInput{
		Type:         ledger.TxnTypeSalesInvoice,
		SourceModule: "SALES.INVOICE",
		SourceID:     uuid.New(),
		Memo:         "INV-1001",
		PostedBy:     7,
		Entries: []ledger.EntryInput{
			{AccountID: cash.ID, Debit: d("150")},
			{AccountID: revenue.ID, Credit: d("150")},
		},
	})
	require.NoError(t, err)
	require.NotZero(t, txn.ID)
	require.NotZero(t, txn.Number)
	require.Equal(t, ledger.TxnStatusPosted, txn.Status)
	require.Len(t, txn.Entries, 2)

	updatedCash, err := svc.GetAccount(context.Background(), cash.ID)
	require.NoError(t, err)
	require.True(t, updatedCash.Balance.Equal(d("650")), "cash balance %s", updatedCash.Balance)

	updatedRevenue, err := svc.GetAccount(context.Background(), revenue.ID)
	require.NoError(t, err)
	require.True(t, updatedRevenue.Balance.Equal(d("150")), "revenue balance %s", updatedRevenue.Balance)
}

func TestPostRejectsUnbalancedLegs(t *testing.T) {
	svc, store := newService(t)
	cash := store.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, d("500"))
	revenue := store.SeedAccount("4000", "Sales Revenue", ledger.AccountTypeRevenue, d("0"))

	_, err := svc.Post(context.Background(), ledger.PostingInput{
		Type:         ledger.TxnTypeJournal,
		SourceModule: "LEDGER.JOURNAL",
		SourceID:     uuid.New(),
		PostedBy:     7,
		Entries: []ledger.EntryInput{
			{AccountID: cash.ID, Debit: d("100")},
			{AccountID: revenue.ID, Credit: d("99")},
		},
	})
	require.ErrorIs(t, err, ledger.ErrUnbalanced)
	require.Empty(t, store.Transactions)
	require.True(t, store.Accounts[cash.ID].Balance.Equal(d("500")))
}

func TestPostRejectsSingleLeg(t *testing.T) {
	svc, store := newService(t)
	cash := store.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, decimal.Zero)

	_, err := svc.Post(context.Background(), ledger.PostingInput{
		Type:         ledger.TxnTypeJournal,
		SourceModule: "LEDGER.JOURNAL",
		SourceID:     uuid.New(),
		PostedBy:     7,
		Entries:      []ledger.EntryInput{{AccountID: cash.ID, Debit: d("10")}},
	})
	require.ErrorIs(t, err, ledger.ErrTooFewEntries)
}

func TestPostRejectsLegWithBothSides(t *testing.T) {
	svc, store := newService(t)
	cash := store.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, decimal.Zero)
	revenue := store.SeedAccount("4000", "Sales Revenue", ledger.AccountTypeRevenue, decimal.Zero)

	_, err := svc.Post(context.Background(), ledger.PostingInput{
		Type:         ledger.TxnTypeJournal,
		SourceModule: "LEDGER.JOURNAL",
		SourceID:     uuid.New(),
		PostedBy:     7,
		Entries: []ledger.EntryInput{
			{AccountID: cash.ID, Debit: d("10"), Credit: d("10")},
			{AccountID: revenue.ID, Credit: d("10")},
		},
	})
	require.Error(t, err)
	require.Empty(t, store.Transactions)
}

func TestPostRejectsInactiveAccount(t *testing.T) {
	svc, store := newService(t)
	cash := store.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, decimal.Zero)
	revenue := store.SeedAccount("4000", "Sales Revenue", ledger.AccountTypeRevenue, decimal.Zero)
	require.NoError(t, store.SetAccountActive(context.Background(), revenue.ID, false))

	_, err := svc.Post(context.Background(), ledger.PostingInput{
		Type:         ledger.TxnTypeJournal,
		SourceModule: "LEDGER.JOURNAL",
		SourceID:     uuid.New(),
		PostedBy:     7,
		Entries: []ledger.EntryInput{
			{AccountID: cash.ID, Debit: d("10")},
			{AccountID: revenue.ID, Credit: d("10")},
		},
	})
	require.ErrorIs(t, err, ledger.ErrAccountInactive)
	require.Empty(t, store.Transactions)
}

func TestReverseRestoresBalancesAndArchives(t *testing.T) {
	svc, store := newService(t)
	ar := store.SeedAccount("1100", "Accounts Receivable", ledger.AccountTypeAsset, d("200"))
	revenue := store.SeedAccount("4000", "Sales Revenue", ledger.AccountTypeRevenue, d("1000"))

	posted, err := svc.Post(context.Background(), ledger.PostingInput{
		Type:         ledger.TxnTypeSalesInvoice,
		SourceModule: "SALES.INVOICE",
		SourceID:     uuid.New(),
		Memo:         "INV-1002",
		PostedBy:     7,
		Entries: []ledger.EntryInput{
			{AccountID: ar.ID, Debit: d("147")},
			{AccountID: revenue.ID, Credit: d("147")},
		},
	})
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ledger.ReverseInput{
		TransactionID: posted.ID,
		Reason:        "pricing error",
		ActorID:       9,
	})
	require.NoError(t, err)
	require.NotNil(t, reversal.ReversalOf)
	require.Equal(t, posted.ID, *reversal.ReversalOf)
	require.Equal(t, "SALES.INVOICE:REVERSAL", reversal.SourceModule)

	require.True(t, store.Accounts[ar.ID].Balance.Equal(d("200")))
	require.True(t, store.Accounts[revenue.ID].Balance.Equal(d("1000")))

	original, err := svc.GetTransaction(context.Background(), posted.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.TxnStatusReversed, original.Status)

	require.Len(t, store.Archives, 1)
	archive := store.Archives[0]
	require.Equal(t, posted.ID, archive.TransactionID)
	require.Equal(t, "pricing error", archive.Reason)
	require.Len(t, archive.Entries, 2)
	require.True(t, archive.Entries[0].Debit.Equal(d("147")))

	// Reversal legs are the originals with sides swapped.
	require.True(t, reversal.Entries[0].Credit.Equal(d("147")))
	require.True(t, reversal.Entries[1].Debit.Equal(d("147")))
}

func TestReverseTwiceFails(t *testing.T) {
	svc, store := newService(t)
	cash := store.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, decimal.Zero)
	revenue := store.SeedAccount("4000", "Sales Revenue", ledger.AccountTypeRevenue, decimal.Zero)

	posted, err := svc.Post(context.Background(), ledger.PostingInput{
		Type:         ledger.TxnTypeReceipt,
		SourceModule: "SALES.RECEIPT",
		SourceID:     uuid.New(),
		PostedBy:     7,
		Entries: []ledger.EntryInput{
			{AccountID: cash.ID, Debit: d("50")},
			{AccountID: revenue.ID, Credit: d("50")},
		},
	})
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), ledger.ReverseInput{TransactionID: posted.ID, ActorID: 9})
	require.NoError(t, err)

	_, err = svc.Reverse(context.Background(), ledger.ReverseInput{TransactionID: posted.ID, ActorID: 9})
	require.ErrorIs(t, err, ledger.ErrAlreadyReversed)
}

func TestReverseUnknownTransaction(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Reverse(context.Background(), ledger.ReverseInput{TransactionID: 404, ActorID: 9})
	require.ErrorIs(t, err, ledger.ErrTransactionNotFound)
}

func TestOpeningBalanceOffsetsImbalanceAgainstEquity(t *testing.T) {
	svc, store := newService(t)
	cash := store.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, decimal.Zero)
	payable := store.SeedAccount("2000", "Accounts Payable", ledger.AccountTypeLiability, decimal.Zero)
	equity := store.SeedAccount("3000", "Opening Equity", ledger.AccountTypeEquity, decimal.Zero)

	txn, err := svc.PostOpeningBalance(context.Background(), ledger.OpeningBalanceInput{
		Lines: []ledger.OpeningLine{
			{AccountID: cash.ID, Amount: d("1000")},
			{AccountID: payable.ID, Amount: d("300")},
		},
		OffsetAccountID: equity.ID,
		ActorID:         1,
	})
	require.NoError(t, err)
	require.Equal(t, ledger.TxnTypeOpeningBalance, txn.Type)

	require.True(t, store.Accounts[cash.ID].Balance.Equal(d("1000")))
	require.True(t, store.Accounts[payable.ID].Balance.Equal(d("300")))
	require.True(t, store.Accounts[equity.ID].Balance.Equal(d("700")))
}

func TestOpeningBalanceRejectsInactiveAccountAtomically(t *testing.T) {
	svc, store := newService(t)
	cash := store.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, decimal.Zero)
	dormant := store.SeedAccount("1900", "Legacy Deposits", ledger.AccountTypeAsset, decimal.Zero)
	equity := store.SeedAccount("3000", "Opening Equity", ledger.AccountTypeEquity, decimal.Zero)
	require.NoError(t, store.SetAccountActive(context.Background(), dormant.ID, false))

	// Sides are resolved under the posting's row locks, so a deactivated
	// account fails the whole document and nothing is written.
	_, err := svc.PostOpeningBalance(context.Background(), ledger.OpeningBalanceInput{
		Lines: []ledger.OpeningLine{
			{AccountID: cash.ID, Amount: d("1000")},
			{AccountID: dormant.ID, Amount: d("50")},
		},
		OffsetAccountID: equity.ID,
		ActorID:         1,
	})
	require.ErrorIs(t, err, ledger.ErrAccountInactive)
	require.Empty(t, store.Transactions)
	require.True(t, store.Accounts[cash.ID].Balance.IsZero())
	require.True(t, store.Accounts[equity.ID].Balance.IsZero())
}

func TestTrialBalanceStaysBalanced(t *testing.T) {
	svc, store := newService(t)
	cash := store.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, decimal.Zero)
	inventory := store.SeedAccount("1200", "Inventory", ledger.AccountTypeAsset, decimal.Zero)
	revenue := store.SeedAccount("4000", "Sales Revenue", ledger.AccountTypeRevenue, decimal.Zero)
	cogs := store.SeedAccount("5000", "Cost of Goods Sold", ledger.AccountTypeExpense, decimal.Zero)

	_, err := svc.Post(context.Background(), ledger.PostingInput{
		Type:         ledger.TxnTypeSalesInvoice,
		SourceModule: "SALES.INVOICE",
		SourceID:     uuid.New(),
		PostedBy:     7,
		Entries: []ledger.EntryInput{
			{AccountID: cash.ID, Debit: d("147")},
			{AccountID: revenue.ID, Credit: d("147")},
			{AccountID: cogs.ID, Debit: d("120")},
			{AccountID: inventory.ID, Credit: d("120")},
		},
	})
	require.NoError(t, err)

	tb, err := svc.TrialBalance(context.Background())
	require.NoError(t, err)
	require.True(t, tb.Balanced(), "debits %s credits %s", tb.TotalDebit, tb.TotalCredit)

	for _, row := range tb.Rows {
		derived := ledger.DerivedBalance(row.Type, row.TotalDebit, row.TotalCredit)
		require.True(t, row.Balance.Equal(derived), "account %s stored %s derived %s", row.Code, row.Balance, derived)
	}
}

func TestCreateAccountValidation(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateAccount(context.Background(), ledger.CreateAccountInput{Code: "1000", Name: "Cash", Type: "BOGUS"})
	require.Error(t, err)

	account, err := svc.CreateAccount(context.Background(), ledger.CreateAccountInput{Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset})
	require.NoError(t, err)
	require.True(t, account.IsActive)

	_, err = svc.CreateAccount(context.Background(), ledger.CreateAccountInput{Code: "1000", Name: "Cash again", Type: ledger.AccountTypeAsset})
	require.ErrorIs(t, err, ledger.ErrDuplicateCode)
}

func TestRoundingAppliedBeforeBalanceCheck(t *testing.T) {
	svc, store := newService(t)
	cash := store.SeedAccount("1000", "Cash", ledger.AccountTypeAsset, decimal.Zero)
	revenue := store.SeedAccount("4000", "Sales Revenue", ledger.AccountTypeRevenue, decimal.Zero)

	// 10.004 and 10.0041 both round to 10.00.
	txn, err := svc.Post(context.Background(), ledger.PostingInput{
		Type:         ledger.TxnTypeJournal,
		SourceModule: "LEDGER.JOURNAL",
		SourceID:     uuid.New(),
		PostedBy:     7,
		Entries: []ledger.EntryInput{
			{AccountID: cash.ID, Debit: d("10.004")},
			{AccountID: revenue.ID, Credit: d("10.0041")},
		},
	})
	require.NoError(t, err)
	require.True(t, txn.Entries[0].Debit.Equal(d("10.00")))
	require.True(t, store.Accounts[cash.ID].Balance.Equal(d("10.00")))
}
