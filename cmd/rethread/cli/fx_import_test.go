package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rethread-erp/rethread-erp/internal/fx"
)

type stubRateRepo struct {
	upserted []fx.Rate
	fail     bool
}

func (s *stubRateRepo) GetRate(ctx context.Context, currency string) (fx.Rate, error) {
	return fx.Rate{}, &fx.MissingRateError{Currency: currency}
}

func (s *stubRateRepo) ListRates(ctx context.Context) ([]fx.Rate, error) {
	return s.upserted, nil
}

func (s *stubRateRepo) UpsertRate(ctx context.Context, rate fx.Rate) error {
	if s.fail {
		return context.DeadlineExceeded
	}
	s.upserted = append(s.upserted, rate)
	return nil
}

func TestFXImportDryModeParsesWithoutApplying(t *testing.T) {
	repo := &stubRateRepo{}
	stdout := new(bytes.Buffer)
	code := FXImportCommand(context.Background(), repo, FXImportOptions{
		SourceReader: strings.NewReader("currency,rate\nJPY,151.2\nXOF,605.5\n"),
		Mode:         FXImportModeDry,
		JSONOutput:   true,
		Stdout:       stdout,
		Stderr:       new(bytes.Buffer),
	})
	require.Equal(t, 0, code)
	require.Empty(t, repo.upserted)

	var summary FXImportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Len(t, summary.Parsed, 2)
	require.Empty(t, summary.Applied)
	require.Equal(t, "JPY", summary.Parsed[0].Currency)
}

func TestFXImportApplyUpsertsRates(t *testing.T) {
	repo := &stubRateRepo{}
	code := FXImportCommand(context.Background(), repo, FXImportOptions{
		SourceReader: strings.NewReader("JPY,151.2\n"),
		Mode:         FXImportModeApply,
		ActorID:      7,
		Stdout:       new(bytes.Buffer),
		Stderr:       new(bytes.Buffer),
	})
	require.Equal(t, 0, code)
	require.Len(t, repo.upserted, 1)
	require.Equal(t, "JPY", repo.upserted[0].Currency)
	require.True(t, repo.upserted[0].Rate.Equal(decimal.RequireFromString("151.2")))
	require.Equal(t, int64(7), repo.upserted[0].UpdatedBy)
}

func TestFXImportSkipsBadRowsWithExitCode(t *testing.T) {
	repo := &stubRateRepo{}
	stdout := new(bytes.Buffer)
	code := FXImportCommand(context.Background(), repo, FXImportOptions{
		SourceReader: strings.NewReader("JPY,151.2\nEUR,-1\nEURO,0.9\nJPY,152\n"),
		Mode:         FXImportModeApply,
		JSONOutput:   true,
		Stdout:       stdout,
		Stderr:       new(bytes.Buffer),
	})
	require.Equal(t, 10, code)
	require.Len(t, repo.upserted, 1)

	var summary FXImportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.ElementsMatch(t, []string{"EUR", "EURO", "JPY"}, summary.Skipped)
}

func TestFXImportRejectsUnknownMode(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := FXImportCommand(context.Background(), &stubRateRepo{}, FXImportOptions{
		SourceReader: strings.NewReader("JPY,151.2\n"),
		Mode:         "force",
		Stdout:       new(bytes.Buffer),
		Stderr:       stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "invalid mode")
}
