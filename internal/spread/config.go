package spread

import (
	"fmt"
	"math"
	"sort"
)

// Weights are the composite score weights. They must be non-negative and sum
// to 1.0 within a small tolerance.
type Weights struct {
	Cushion   float64
	Liquidity float64
	BidAsk    float64
	Technical float64
}

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Cushion + w.Liquidity + w.BidAsk + w.Technical
}

// Config carries every tunable of the engine. Thresholds and weights live
// here rather than as package constants so running deployments can be tuned
// from configuration and tests can exercise boundary values directly.
type Config struct {
	// Widths are the candidate spread widths in price units, e.g. 2.5, 5, 10.
	// The canonical width preferred by the selector is the middle element of
	// the sorted set.
	Widths []float64

	// ITMBandMin/Max bound the long strike search band as fractions of spot
	// below spot: with 0.03 and 0.10 the long strike must sit 3%-10% in the
	// money.
	ITMBandMin float64
	ITMBandMax float64

	// MinOpenInterest is the per-leg liquidity gate.
	MinOpenInterest int64

	// MinReturnOnRiskPct and MinCushionPct reject poor risk/reward and
	// unacceptably thin safety margins.
	MinReturnOnRiskPct float64
	MinCushionPct      float64

	// DefaultIV substitutes for a zero or invalid feed IV (fraction).
	DefaultIV float64

	// StrikeTolerance is the maximum distance allowed when matching the short
	// strike to longStrike+width.
	StrikeTolerance float64

	// ScoreWeights combine the four sub-scores into the total.
	ScoreWeights Weights

	// MaxDebit, when positive, is the budget in dollars for one spread
	// (debit x 100). Zero disables the budget constraint.
	MaxDebit float64

	// BudgetStrict makes an infeasible budget return a nil primary instead of
	// the best-effort unconstrained primary with a caveat.
	BudgetStrict bool

	// CanonicalWindow is how many score points the best canonical-width
	// candidate may trail the overall best and still be chosen as primary.
	CanonicalWindow float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Widths:             []float64{2.5, 5, 10},
		ITMBandMin:         0.03,
		ITMBandMax:         0.10,
		MinOpenInterest:    10,
		MinReturnOnRiskPct: 10,
		MinCushionPct:      2,
		DefaultIV:          0.30,
		StrikeTolerance:    0.01,
		ScoreWeights: Weights{
			Cushion:   0.30,
			Liquidity: 0.25,
			BidAsk:    0.15,
			Technical: 0.30,
		},
		CanonicalWindow: 10,
	}
}

const weightSumTolerance = 1e-6

// Validate checks the configuration for values the engine cannot work with.
func (c *Config) Validate() error {
	if len(c.Widths) == 0 {
		return fmt.Errorf("widths must not be empty")
	}
	for _, w := range c.Widths {
		if w <= 0 {
			return fmt.Errorf("width %.2f must be positive", w)
		}
	}
	if c.ITMBandMin < 0 || c.ITMBandMax <= 0 || c.ITMBandMin >= c.ITMBandMax {
		return fmt.Errorf("itm band [%.3f, %.3f] must satisfy 0 <= min < max", c.ITMBandMin, c.ITMBandMax)
	}
	if c.ITMBandMax >= 1 {
		return fmt.Errorf("itm band max %.3f must be below 1 (a fraction of spot)", c.ITMBandMax)
	}
	if c.MinOpenInterest < 0 {
		return fmt.Errorf("min open interest %d cannot be negative", c.MinOpenInterest)
	}
	if c.DefaultIV <= 0 {
		return fmt.Errorf("default IV %.3f must be positive", c.DefaultIV)
	}
	if c.StrikeTolerance < 0 {
		return fmt.Errorf("strike tolerance %.4f cannot be negative", c.StrikeTolerance)
	}
	w := c.ScoreWeights
	if w.Cushion < 0 || w.Liquidity < 0 || w.BidAsk < 0 || w.Technical < 0 {
		return fmt.Errorf("score weights must be non-negative")
	}
	if math.Abs(w.Sum()-1.0) > weightSumTolerance {
		return fmt.Errorf("score weights sum to %.4f, want 1.0", w.Sum())
	}
	if c.MaxDebit < 0 {
		return fmt.Errorf("max debit %.2f cannot be negative", c.MaxDebit)
	}
	if c.CanonicalWindow < 0 {
		return fmt.Errorf("canonical window %.2f cannot be negative", c.CanonicalWindow)
	}
	return nil
}

// sortedWidths returns the configured widths in ascending order.
func (c *Config) sortedWidths() []float64 {
	ws := make([]float64, len(c.Widths))
	copy(ws, c.Widths)
	sort.Float64s(ws)
	return ws
}

// CanonicalWidth is the width the selector prefers: the middle of the sorted
// width set. With an even count the upper middle wins.
func (c *Config) CanonicalWidth() float64 {
	ws := c.sortedWidths()
	return ws[len(ws)/2]
}
