package spread

import (
	"math"

	"github.com/eddiefleurent/schrute_spreads/internal/util"
)

// Abramowitz & Stegun rational approximation coefficients for erf, accurate
// to about 1.5e-7. Good enough for ranking spreads; nowhere near a real
// options pricing model and not meant to be one.
const (
	erfA1 = 0.254829592
	erfA2 = -0.284496736
	erfA3 = 1.421413741
	erfA4 = -1.453152027
	erfA5 = 1.061405429
	erfP  = 0.3275911
)

// erfApprox evaluates the five-coefficient polynomial approximation of erf,
// reflecting negative arguments through erf(-x) = -erf(x).
func erfApprox(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}
	t := 1.0 / (1.0 + erfP*x)
	poly := ((((erfA5*t+erfA4)*t+erfA3)*t+erfA2)*t + erfA1) * t
	return sign * (1.0 - poly*math.Exp(-x*x))
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(z float64) float64 {
	return 0.5 * (1.0 + erfApprox(z/math.Sqrt2))
}

// Fallback probabilities when no volatility information is available: all we
// know is which side of breakeven the underlying sits on.
const (
	popAboveBreakeven = 75.0
	popBelowBreakeven = 25.0
)

// Probability bounds. The model never claims certainty in either direction.
const (
	popFloor = 5.0
	popCeil  = 95.0
)

// probabilityOfProfit models the chance the underlying finishes above
// breakeven at expiration, assuming a lognormal terminal price distribution:
//
//	z = ln(spot/breakeven) / (iv * sqrt(dte/365))
//
// and returns normalCDF(z) as a percentage clamped to [5, 95]. With zero or
// invalid volatility or no time remaining there is no distribution to
// evaluate, so a cushion-sign heuristic answers instead.
func probabilityOfProfit(spot, breakeven, iv float64, dte int) float64 {
	if iv <= 0 || dte <= 0 || spot <= 0 || breakeven <= 0 {
		if spot > breakeven {
			return popAboveBreakeven
		}
		return popBelowBreakeven
	}

	t := float64(dte) / 365.0
	z := math.Log(spot/breakeven) / (iv * math.Sqrt(t))
	return util.Clamp(normalCDF(z)*100, popFloor, popCeil)
}
