package report

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rethread-erp/rethread-erp/internal/ledger"
)

// Formatter renders ledger reports for export. Amounts are grouped per the
// configured locale; the underlying decimals are never touched.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for the given locale tag, falling back to
// English when the tag is unknown.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

func (f *Formatter) amount(d decimal.Decimal) string {
	v, _ := d.Round(2).Float64()
	return f.printer.Sprintf("%.2f", v)
}

// TrialBalanceText renders an aligned plain-text trial balance.
func (f *Formatter) TrialBalanceText(tb ledger.TrialBalance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TRIAL BALANCE as of %s\n\n", tb.AsOf.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "%-12s %-40s %-10s %18s %18s %18s\n", "CODE", "NAME", "TYPE", "DEBIT", "CREDIT", "BALANCE")
	for _, row := range tb.Rows {
		fmt.Fprintf(&b, "%-12s %-40s %-10s %18s %18s %18s\n",
			row.Code, truncate(row.Name, 40), string(row.Type),
			f.amount(row.TotalDebit), f.amount(row.TotalCredit), f.amount(row.Balance))
	}
	fmt.Fprintf(&b, "\n%-64s %18s %18s\n", "TOTAL", f.amount(tb.TotalDebit), f.amount(tb.TotalCredit))
	if tb.Balanced() {
		b.WriteString("STATUS: BALANCED\n")
	} else {
		b.WriteString("STATUS: OUT OF BALANCE\n")
	}
	return b.String()
}

// TrialBalanceCSV renders the trial balance as CSV with raw decimal amounts.
func (f *Formatter) TrialBalanceCSV(tb ledger.TrialBalance) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write([]string{"code", "name", "type", "total_debit", "total_credit", "balance"}); err != nil {
		return "", err
	}
	for _, row := range tb.Rows {
		record := []string{
			row.Code,
			row.Name,
			string(row.Type),
			row.TotalDebit.Round(2).StringFixed(2),
			row.TotalCredit.Round(2).StringFixed(2),
			row.Balance.Round(2).StringFixed(2),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "~"
}
