package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/fx"
)

// FXImportMode enumerates supported execution strategies.
type FXImportMode string

const (
	// FXImportModeDry previews parsed rates without applying changes.
	FXImportModeDry FXImportMode = "dry"
	// FXImportModeApply persists rates to the rate table.
	FXImportModeApply FXImportMode = "apply"
)

// FXImportOptions configures the import command execution.
type FXImportOptions struct {
	Source       string
	SourceReader io.Reader
	Mode         FXImportMode
	ActorID      int64
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
}

// FXImportRow summarises one parsed rate.
type FXImportRow struct {
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

// FXImportSummary captures the structured reporting outcome.
type FXImportSummary struct {
	Mode    FXImportMode  `json:"mode"`
	Parsed  []FXImportRow `json:"parsed"`
	Applied []FXImportRow `json:"applied,omitempty"`
	Skipped []string      `json:"skipped,omitempty"`
}

// FXImportCommand parses a currency,rate CSV and loads it into the rate table.
// Rows with a non-positive rate are reported under skipped and never applied.
func FXImportCommand(ctx context.Context, repo fx.Repository, opts FXImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = FXImportModeDry
	}
	mode := FXImportMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case FXImportModeDry, FXImportModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "fx import: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}

	rates, skipped, err := loadImportRates(opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
		return 1
	}
	if len(rates) == 0 && len(skipped) == 0 {
		fmt.Fprintln(opts.Stderr, "fx import: no rows found")
		return 1
	}

	summary := FXImportSummary{Mode: mode, Skipped: skipped}
	for _, rate := range rates {
		summary.Parsed = append(summary.Parsed, FXImportRow{Currency: rate.Currency, Rate: rate.Rate.String()})
	}

	if mode == FXImportModeApply {
		for _, rate := range rates {
			if err := repo.UpsertRate(ctx, rate); err != nil {
				fmt.Fprintf(opts.Stderr, "fx import: apply %s: %v\n", rate.Currency, err)
				return 1
			}
			summary.Applied = append(summary.Applied, FXImportRow{Currency: rate.Currency, Rate: rate.Rate.String()})
		}
	}

	if err := writeImportOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "fx import: %v\n", err)
		return 1
	}
	if len(skipped) > 0 {
		return 10
	}
	return 0
}

func loadImportRates(opts FXImportOptions) ([]fx.Rate, []string, error) {
	var reader io.Reader
	switch {
	case opts.SourceReader != nil:
		reader = opts.SourceReader
	case opts.Source == "-":
		reader = opts.Stdin
	case strings.TrimSpace(opts.Source) == "":
		return nil, nil, errors.New("--source is required")
	default:
		f, err := os.Open(opts.Source)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		reader = f
	}

	records, err := csv.NewReader(reader).ReadAll()
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	var rates []fx.Rate
	var skipped []string
	seen := map[string]bool{}
	for i, record := range records {
		if len(record) < 2 {
			return nil, nil, fmt.Errorf("row %d: expected currency,rate", i+1)
		}
		currency := strings.ToUpper(strings.TrimSpace(record[0]))
		if i == 0 && strings.EqualFold(currency, "currency") {
			continue
		}
		if len(currency) != 3 {
			skipped = append(skipped, currency)
			continue
		}
		value, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if err != nil || value.Sign() <= 0 {
			skipped = append(skipped, currency)
			continue
		}
		if seen[currency] {
			skipped = append(skipped, currency)
			continue
		}
		seen[currency] = true
		rates = append(rates, fx.Rate{Currency: currency, Rate: value, AsOf: now, UpdatedBy: opts.ActorID})
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Currency < rates[j].Currency })
	sort.Strings(skipped)
	return rates, skipped, nil
}

func writeImportOutput(opts FXImportOptions, summary FXImportSummary) error {
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	fmt.Fprintf(opts.Stdout, "fx import (%s): %d parsed, %d applied, %d skipped\n",
		summary.Mode, len(summary.Parsed), len(summary.Applied), len(summary.Skipped))
	for _, row := range summary.Parsed {
		fmt.Fprintf(opts.Stdout, "  %s %s\n", row.Currency, row.Rate)
	}
	for _, currency := range summary.Skipped {
		fmt.Fprintf(opts.Stdout, "  skipped %s\n", currency)
	}
	return nil
}
