package fx

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToBaseDividesByRate(t *testing.T) {
	amount := decimal.NewFromInt(4200)
	rate := decimal.NewFromInt(1400)
	got, err := ToBase(amount, rate)
	if err != nil {
		t.Fatalf("ToBase returned error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3 got %s", got)
	}
}

func TestToForeignMultipliesByRate(t *testing.T) {
	amountBase := decimal.NewFromFloat(2.5)
	rate := decimal.NewFromInt(1400)
	got, err := ToForeign(amountBase, rate)
	if err != nil {
		t.Fatalf("ToForeign returned error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(3500)) {
		t.Fatalf("expected 3500 got %s", got)
	}
}

func TestRoundTripConversion(t *testing.T) {
	rate := decimal.NewFromFloat(3.67)
	foreign := decimal.NewFromFloat(1835)
	base, err := ToBase(foreign, rate)
	if err != nil {
		t.Fatalf("ToBase returned error: %v", err)
	}
	back, err := ToForeign(base, rate)
	if err != nil {
		t.Fatalf("ToForeign returned error: %v", err)
	}
	if !back.Round(2).Equal(foreign) {
		t.Fatalf("round trip mismatch: %s != %s", back, foreign)
	}
}

func TestInvalidRateRejected(t *testing.T) {
	for _, rate := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-1)} {
		if _, err := ToBase(decimal.NewFromInt(100), rate); !errors.Is(err, ErrInvalidRate) {
			t.Fatalf("expected ErrInvalidRate for rate %s got %v", rate, err)
		}
		if _, err := ToForeign(decimal.NewFromInt(100), rate); !errors.Is(err, ErrInvalidRate) {
			t.Fatalf("expected ErrInvalidRate for rate %s got %v", rate, err)
		}
	}
}

func TestMissingRateErrorMessage(t *testing.T) {
	err := &MissingRateError{Currency: "PKR"}
	if err.Error() != "fx: no rate configured for PKR" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
