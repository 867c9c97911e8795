package normalize

import "math"

// costDecimals is the number of decimal places cost figures are rounded to.
const costDecimals = 6

// computeCost derives the cost block from token usage and a per-model price
// table: tokens/1e6 x rate per side, each figure rounded to six decimals.
// Returns nil unless both usage and a price entry for the model are present.
func computeCost(model string, usage *Usage, prices map[string]Price) *Cost {
	if usage == nil || prices == nil {
		return nil
	}
	price, ok := prices[model]
	if !ok {
		return nil
	}

	inputCost := roundTo(float64(usage.InputTokens)/1e6*price.InputPerMTok, costDecimals)
	outputCost := roundTo(float64(usage.OutputTokens)/1e6*price.OutputPerMTok, costDecimals)
	return &Cost{
		InputCost:  inputCost,
		OutputCost: outputCost,
		TotalCost:  roundTo(inputCost+outputCost, costDecimals),
	}
}

func roundTo(x float64, decimals int) float64 {
	shift := math.Pow(10, float64(decimals))
	return math.Round(x*shift) / shift
}
