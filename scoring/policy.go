package scoring

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCost is returned for negative or non-finite cost parameters.
var ErrInvalidCost = errors.New("invalid cost parameter")

// Decide reports high risk when probability reaches the threshold. Ties are high risk.
func Decide(probability, threshold float64) bool {
	return probability >= threshold
}

// ExpectedCost weighs the false-negative cost by the churn probability and the
// false-positive cost by its complement.
func ExpectedCost(probability, costFP, costFN float64) float64 {
	return probability*costFN + (1-probability)*costFP
}

// CostParameters are the per-evaluation unit costs of a wrong decision.
type CostParameters struct {
	FalsePositive float64 `json:"cost_fp"`
	FalseNegative float64 `json:"cost_fn"`
}

func (c CostParameters) Validate() error {
	for name, v := range map[string]float64{"cost_fp": c.FalsePositive, "cost_fn": c.FalseNegative} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s = %g", ErrInvalidCost, name, v)
		}
	}
	return nil
}
