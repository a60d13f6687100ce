package rebalancing

import (
	"math"

	"github.com/aristath/advisor/internal/domain"
)

// balanceTolerance is the largest |sum of signed trades| a plan may carry
const balanceTolerance = 1e-9

// CalculateMinTradeAmount returns the smallest trade for which transaction
// costs stay within maxCostRatio of the trade value.
//
// With a 2 fixed + 0.2% fee and a 1% ceiling:
// - a 50 trade costs 2.10, a 4.2% drag
// - a 250 trade costs 2.50, exactly 1%
// - a 400 trade costs 2.80, a 0.7% drag
func CalculateMinTradeAmount(
	transactionCostFixed float64,
	transactionCostPercent float64,
	maxCostRatio float64,
) float64 {
	// (fixed + trade*percent) / trade = maxRatio  =>  trade = fixed / (maxRatio - percent)
	denominator := maxCostRatio - transactionCostPercent
	if denominator <= 0 {
		// variable cost alone is over the ceiling
		return 1000.0
	}
	return transactionCostFixed / denominator
}

// applyMateriality drops shifts below minWeight and rescales the larger side
// so buys and sells match. Rescaling can push a shift under the floor, so it
// repeats until nothing else is dropped.
func applyMateriality(shifts domain.Vector, minWeight float64) domain.Vector {
	out := shifts.Clone()
	for i := 0; i <= len(domain.AssetClasses()); i++ {
		dropped := false
		for class, shift := range out {
			if shift != 0 && math.Abs(shift) < minWeight {
				out[class] = 0
				dropped = true
			}
		}
		balance(out)
		if !dropped {
			break
		}
	}
	for class, shift := range out {
		if shift == 0 {
			delete(out, class)
		}
	}
	return out
}

// balance scales down whichever side is larger so the signed sum is zero
func balance(shifts domain.Vector) {
	buys, sells := 0.0, 0.0
	for _, shift := range shifts {
		if shift > 0 {
			buys += shift
		} else {
			sells -= shift
		}
	}

	switch {
	case buys == 0 || sells == 0:
		for class := range shifts {
			shifts[class] = 0
		}
	case buys > sells:
		scaleSide(shifts, true, sells/buys)
	case sells > buys:
		scaleSide(shifts, false, buys/sells)
	}
}

func scaleSide(shifts domain.Vector, buys bool, factor float64) {
	for class, shift := range shifts {
		if (shift > 0) == buys && shift != 0 {
			shifts[class] = shift * factor
		}
	}
}
