package procurement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/fx"
	"github.com/rethread-erp/rethread-erp/internal/inventory"
)

// allocScale is the precision kept while spreading costs across lines.
const allocScale = 6

// CostBase is one additional cost converted to base currency.
type CostBase struct {
	Cost AdditionalCost
	Base decimal.Decimal
}

// LineAllocation is the landed result for one purchase line.
type LineAllocation struct {
	Index           int
	MaterialBase    decimal.Decimal
	AdditionalShare decimal.Decimal
	LandedBase      decimal.Decimal
	LandedUnitCost  decimal.Decimal
}

// Allocation is the landed cost breakdown for a whole purchase. The closing
// invariant holds exactly: TotalLanded equals MaterialBase plus the sum of
// converted additional costs, and equals the sum of line LandedBase values.
type Allocation struct {
	Lines           []LineAllocation
	Costs           []CostBase
	MaterialBase    decimal.Decimal
	AdditionalBase  decimal.Decimal
	TotalLanded     decimal.Decimal
	TotalWeight     decimal.Decimal
	LandedCostPerKg decimal.Decimal
}

// AllocateLandedCost converts material and additional costs to base currency
// and spreads them across lines pro-rata by weight. A cost tagged to a line
// is charged to that line only. Residue from division lands on the last line
// so the totals close without drift.
func AllocateLandedCost(purchaseRate decimal.Decimal, lines []PurchaseLine, costs []AdditionalCost) (Allocation, error) {
	if len(lines) == 0 {
		return Allocation{}, ErrNoLines
	}
	var alloc Allocation
	alloc.Lines = make([]LineAllocation, len(lines))
	for i, line := range lines {
		if line.WeightKg.Sign() <= 0 {
			return Allocation{}, fmt.Errorf("%w: line %d weight %s", ErrZeroWeight, i, line.WeightKg)
		}
		if line.Qty.Sign() <= 0 {
			return Allocation{}, fmt.Errorf("%w: line %d qty %s", inventory.ErrInvalidQuantity, i, line.Qty)
		}
		materialBase, err := fx.ToBase(line.WeightKg.Mul(line.CostPerKg), purchaseRate)
		if err != nil {
			return Allocation{}, fmt.Errorf("line %d: %w", i, err)
		}
		alloc.Lines[i] = LineAllocation{Index: i, MaterialBase: materialBase}
		alloc.MaterialBase = alloc.MaterialBase.Add(materialBase)
		alloc.TotalWeight = alloc.TotalWeight.Add(line.WeightKg)
	}

	var untagged decimal.Decimal
	alloc.Costs = make([]CostBase, len(costs))
	for i, cost := range costs {
		base, err := fx.ToBase(cost.Amount, cost.Rate)
		if err != nil {
			return Allocation{}, fmt.Errorf("additional cost %q: %w", cost.Kind, err)
		}
		alloc.Costs[i] = CostBase{Cost: cost, Base: base}
		alloc.AdditionalBase = alloc.AdditionalBase.Add(base)
		if cost.LineIndex != nil {
			idx := *cost.LineIndex
			if idx < 0 || idx >= len(lines) {
				return Allocation{}, fmt.Errorf("%w: index %d", ErrBadLineTag, idx)
			}
			alloc.Lines[idx].AdditionalShare = alloc.Lines[idx].AdditionalShare.Add(base)
			continue
		}
		untagged = untagged.Add(base)
	}

	// Spread the untagged pool by weight; the last line absorbs the residue.
	if untagged.Sign() != 0 {
		var spread decimal.Decimal
		for i := range alloc.Lines {
			if i == len(alloc.Lines)-1 {
				alloc.Lines[i].AdditionalShare = alloc.Lines[i].AdditionalShare.Add(untagged.Sub(spread))
				break
			}
			share := untagged.Mul(lines[i].WeightKg).DivRound(alloc.TotalWeight, allocScale)
			alloc.Lines[i].AdditionalShare = alloc.Lines[i].AdditionalShare.Add(share)
			spread = spread.Add(share)
		}
	}

	for i := range alloc.Lines {
		line := &alloc.Lines[i]
		line.LandedBase = line.MaterialBase.Add(line.AdditionalShare)
		line.LandedUnitCost = line.LandedBase.DivRound(lines[i].Qty, allocScale)
		alloc.TotalLanded = alloc.TotalLanded.Add(line.LandedBase)
	}
	alloc.LandedCostPerKg = alloc.TotalLanded.DivRound(alloc.TotalWeight, allocScale)
	return alloc, nil
}
