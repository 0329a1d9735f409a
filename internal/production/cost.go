package production

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rethread-erp/rethread-erp/internal/inventory"
)

// costScale is the precision kept for distributed unit costs.
const costScale = 6

// DistributeRunCost spreads the consumed input cost over the output lines.
// Waste lines keep their given unit cost; their total is deducted from the
// pool first, so a negative waste unit cost raises the cost carried by good
// output. Good lines split the remaining pool pro-rata by weight, the last
// one absorbing division residue so the shares sum to the pool exactly.
func DistributeRunCost(consumed decimal.Decimal, outputs []RunOutput) ([]RunOutput, error) {
	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}
	out := make([]RunOutput, len(outputs))
	copy(out, outputs)

	pool := consumed
	var goodWeight decimal.Decimal
	lastGood := -1
	for i, line := range out {
		if line.Qty.Sign() <= 0 {
			return nil, fmt.Errorf("%w: output %d qty %s", inventory.ErrInvalidQuantity, i, line.Qty)
		}
		if line.Waste {
			out[i].CostShare = line.UnitCost.Mul(line.Qty)
			pool = pool.Sub(out[i].CostShare)
			continue
		}
		if line.WeightKg.Sign() <= 0 {
			return nil, fmt.Errorf("%w: output %d", ErrZeroWeight, i)
		}
		goodWeight = goodWeight.Add(line.WeightKg)
		lastGood = i
	}
	if lastGood == -1 {
		return nil, ErrZeroWeight
	}

	var spread decimal.Decimal
	for i := range out {
		if out[i].Waste {
			continue
		}
		var share decimal.Decimal
		if i == lastGood {
			share = pool.Sub(spread)
		} else {
			share = pool.Mul(out[i].WeightKg).DivRound(goodWeight, costScale)
			spread = spread.Add(share)
		}
		out[i].CostShare = share
		out[i].UnitCost = share.DivRound(out[i].Qty, costScale)
	}
	return out, nil
}
