package report

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rethread-erp/rethread-erp/internal/ledger"
)

func sampleTB() ledger.TrialBalance {
	return ledger.TrialBalance{
		AsOf: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Rows: []ledger.TrialBalanceRow{
			{
				AccountID: 1, Code: "1000", Name: "Cash", Type: ledger.AccountTypeAsset,
				Balance:    decimal.RequireFromString("12500.50"),
				TotalDebit: decimal.RequireFromString("12500.50"),
			},
			{
				AccountID: 2, Code: "4000", Name: "Sales Revenue", Type: ledger.AccountTypeRevenue,
				Balance:     decimal.RequireFromString("12500.50"),
				TotalCredit: decimal.RequireFromString("12500.50"),
			},
		},
		TotalDebit:  decimal.RequireFromString("12500.50"),
		TotalCredit: decimal.RequireFromString("12500.50"),
	}
}

func TestTrialBalanceTextGroupsAmounts(t *testing.T) {
	f := NewFormatter("en")
	out := f.TrialBalanceText(sampleTB())
	require.Contains(t, out, "12,500.50")
	require.Contains(t, out, "STATUS: BALANCED")
	require.Contains(t, out, "1000")
	require.Contains(t, out, "Sales Revenue")
}

func TestTrialBalanceTextFlagsImbalance(t *testing.T) {
	tb := sampleTB()
	tb.TotalCredit = decimal.RequireFromString("12000.00")
	out := NewFormatter("en").TrialBalanceText(tb)
	require.Contains(t, out, "STATUS: OUT OF BALANCE")
}

func TestTrialBalanceCSVKeepsRawDecimals(t *testing.T) {
	out, err := NewFormatter("en").TrialBalanceCSV(sampleTB())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "code,name,type,total_debit,total_credit,balance", lines[0])
	require.Contains(t, lines[1], "12500.50")
	require.NotContains(t, out, "12,500.50")
}

func TestNewFormatterFallsBackToEnglish(t *testing.T) {
	f := NewFormatter("not-a-locale")
	require.Contains(t, f.TrialBalanceText(sampleTB()), "12,500.50")
}
