package procurement

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	out, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return out
}

func TestAllocateLandedCostSingleLine(t *testing.T) {
	lines := []PurchaseLine{
		{WeightKg: dec(t, "1000"), Qty: dec(t, "20"), CostPerKg: dec(t, "1.2")},
	}
	costs := []AdditionalCost{
		{Kind: "FREIGHT", Amount: dec(t, "300"), Currency: "USD", Rate: dec(t, "1")},
	}
	// Supplier bills in a currency at 4 units per base unit.
	alloc, err := AllocateLandedCost(dec(t, "4"), lines, costs)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !alloc.MaterialBase.Equal(dec(t, "300")) {
		t.Fatalf("material base = %s, want 300", alloc.MaterialBase)
	}
	if !alloc.TotalLanded.Equal(dec(t, "600")) {
		t.Fatalf("total landed = %s, want 600", alloc.TotalLanded)
	}
	if !alloc.LandedCostPerKg.Equal(dec(t, "0.6")) {
		t.Fatalf("landed per kg = %s, want 0.6", alloc.LandedCostPerKg)
	}
	if !alloc.Lines[0].LandedUnitCost.Equal(dec(t, "30")) {
		t.Fatalf("unit cost = %s, want 30", alloc.Lines[0].LandedUnitCost)
	}
}

func TestAllocateLandedCostSpreadsByWeight(t *testing.T) {
	lines := []PurchaseLine{
		{WeightKg: dec(t, "600"), Qty: dec(t, "12"), CostPerKg: dec(t, "1")},
		{WeightKg: dec(t, "400"), Qty: dec(t, "8"), CostPerKg: dec(t, "2")},
	}
	costs := []AdditionalCost{
		{Kind: "FREIGHT", Amount: dec(t, "100"), Currency: "USD", Rate: dec(t, "1")},
	}
	alloc, err := AllocateLandedCost(dec(t, "1"), lines, costs)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !alloc.Lines[0].AdditionalShare.Equal(dec(t, "60")) {
		t.Fatalf("line 0 share = %s, want 60", alloc.Lines[0].AdditionalShare)
	}
	if !alloc.Lines[1].AdditionalShare.Equal(dec(t, "40")) {
		t.Fatalf("line 1 share = %s, want 40", alloc.Lines[1].AdditionalShare)
	}
	want := alloc.MaterialBase.Add(alloc.AdditionalBase)
	if !alloc.TotalLanded.Equal(want) {
		t.Fatalf("total landed %s != material+additional %s", alloc.TotalLanded, want)
	}
}

func TestAllocateLandedCostTaggedCostStaysOnLine(t *testing.T) {
	tag := 1
	lines := []PurchaseLine{
		{WeightKg: dec(t, "500"), Qty: dec(t, "10"), CostPerKg: dec(t, "1")},
		{WeightKg: dec(t, "500"), Qty: dec(t, "10"), CostPerKg: dec(t, "1")},
	}
	costs := []AdditionalCost{
		{Kind: "REPACK", Amount: dec(t, "80"), Currency: "USD", Rate: dec(t, "1"), LineIndex: &tag},
	}
	alloc, err := AllocateLandedCost(dec(t, "1"), lines, costs)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !alloc.Lines[0].AdditionalShare.IsZero() {
		t.Fatalf("line 0 share = %s, want 0", alloc.Lines[0].AdditionalShare)
	}
	if !alloc.Lines[1].AdditionalShare.Equal(dec(t, "80")) {
		t.Fatalf("line 1 share = %s, want 80", alloc.Lines[1].AdditionalShare)
	}
}

func TestAllocateLandedCostResidueClosesTotals(t *testing.T) {
	lines := []PurchaseLine{
		{WeightKg: dec(t, "333"), Qty: dec(t, "7"), CostPerKg: dec(t, "1")},
		{WeightKg: dec(t, "333"), Qty: dec(t, "7"), CostPerKg: dec(t, "1")},
		{WeightKg: dec(t, "334"), Qty: dec(t, "7"), CostPerKg: dec(t, "1")},
	}
	costs := []AdditionalCost{
		{Kind: "FREIGHT", Amount: dec(t, "100"), Currency: "USD", Rate: dec(t, "1")},
	}
	alloc, err := AllocateLandedCost(dec(t, "1"), lines, costs)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	var shares decimal.Decimal
	for _, line := range alloc.Lines {
		shares = shares.Add(line.AdditionalShare)
	}
	if !shares.Equal(dec(t, "100")) {
		t.Fatalf("shares sum = %s, want 100", shares)
	}
	want := alloc.MaterialBase.Add(alloc.AdditionalBase)
	if !alloc.TotalLanded.Equal(want) {
		t.Fatalf("total landed %s != %s", alloc.TotalLanded, want)
	}
}

func TestAllocateLandedCostZeroWeightFails(t *testing.T) {
	lines := []PurchaseLine{{WeightKg: decimal.Zero, Qty: dec(t, "1"), CostPerKg: dec(t, "1")}}
	_, err := AllocateLandedCost(dec(t, "1"), lines, nil)
	if !errors.Is(err, ErrZeroWeight) {
		t.Fatalf("err = %v, want ErrZeroWeight", err)
	}
}

func TestAllocateLandedCostBadTagFails(t *testing.T) {
	tag := 5
	lines := []PurchaseLine{{WeightKg: dec(t, "10"), Qty: dec(t, "1"), CostPerKg: dec(t, "1")}}
	costs := []AdditionalCost{{Kind: "FREIGHT", Amount: dec(t, "10"), Currency: "USD", Rate: dec(t, "1"), LineIndex: &tag}}
	_, err := AllocateLandedCost(dec(t, "1"), lines, costs)
	if !errors.Is(err, ErrBadLineTag) {
		t.Fatalf("err = %v, want ErrBadLineTag", err)
	}
}
