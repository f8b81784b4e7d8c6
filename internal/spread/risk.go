package spread

import (
	"fmt"
	"math"
)

// Confidence accumulator bounds and baseline.
const (
	confBaseline = 70
	confMin      = 30
	confMax      = 95
)

// Current-value estimation constants. The three-branch estimate is a
// documented fallback, not a pricing model; an observed live value always
// wins when the caller supplies one.
const (
	// Above the short strike the spread sits near max value, discounted by a
	// small per-day haircut for the short leg's remaining extrinsic, floored
	// at 90% of width.
	nearMaxHaircutPerDay = 0.004
	nearMaxFloorRatio    = 0.90

	// Between the strikes the spread carries intrinsic plus a time-value
	// term that accrues with dte/30 and is bounded.
	midTimeValueRatio = 0.10
	midTimeValueCap   = 0.20

	// Below the long strike all that is left is salvage.
	belowLongSalvageRatio = 0.5
)

// Theta bucket thresholds.
const (
	thetaHighMinDTE   = 21
	thetaMediumMinDTE = 7

	meaningfulTimeValueRatio = 0.05
	someTimeValueRatio       = 0.01
)

// estimateCurrentValue is the three-branch fallback estimate of what the
// spread is worth at the observed spot.
func estimateCurrentValue(pos Position, spot float64) float64 {
	width := pos.Width()
	switch {
	case spot >= pos.ShortStrike:
		ratio := math.Max(nearMaxFloorRatio, 1-nearMaxHaircutPerDay*float64(pos.DTE))
		return width * ratio
	case spot >= pos.LongStrike:
		intrinsic := spot - pos.LongStrike
		timeValue := math.Min(midTimeValueCap*width, midTimeValueRatio*width*float64(pos.DTE)/30)
		value := intrinsic + timeValue
		if value > width {
			value = width
		}
		return value
	default:
		return pos.CostBasis * belowLongSalvageRatio
	}
}

// thetaBucket classifies time-decay pressure from days remaining and the
// extrinsic value still priced into the spread.
func thetaBucket(dte int, timeValue, width float64) ThetaBucket {
	switch {
	case dte > thetaHighMinDTE && timeValue >= meaningfulTimeValueRatio*width:
		return ThetaHigh
	case dte > thetaMediumMinDTE && timeValue >= someTimeValueRatio*width:
		return ThetaMedium
	default:
		return ThetaLow
	}
}

// EvaluatePosition assesses an open bull call debit spread against a freshly
// observed spot price and recommends holding, closing, or rolling it.
//
// The recommendation comes from an ordered set of independent rules, each
// appending its reasoning and adjusting a confidence score that starts at 70
// and is clamped to [30, 95]. Rule order is load-bearing: a breached short
// strike overrides the profit-capture verdict, and expiry pressure overrides
// both when it demands an early close.
func (e *Engine) EvaluatePosition(pos Position, spot float64) Assessment {
	width := pos.Width()
	if width <= 0 || spot <= 0 || !validDebit(pos.CostBasis, width) {
		return Assessment{
			Recommendation: ActionHold,
			Confidence:     confMin,
			Reasoning: []string{fmt.Sprintf(
				"Position data is inconsistent (cost basis %.2f, width %.2f, spot %.2f); fix the position record before acting on it.",
				pos.CostBasis, width, spot)},
		}
	}

	currentValue := estimateCurrentValue(pos, spot)
	if pos.CurrentValue != nil {
		currentValue = *pos.CurrentValue
	}

	maxProfit := width - pos.CostBasis
	currentProfit := currentValue - pos.CostBasis
	capturedPct := 0.0
	if maxProfit > 0 {
		capturedPct = currentProfit / maxProfit * 100
	}
	remainingProfit := maxProfit - currentProfit
	cushionPct := (spot - pos.ShortStrike) / spot * 100

	intrinsic := math.Min(math.Max(spot-pos.LongStrike, 0), width)
	timeValue := math.Max(0, currentValue-intrinsic)

	a := Assessment{
		MaxValue:           width,
		MaxProfit:          maxProfit,
		CurrentValue:       currentValue,
		CurrentProfit:      currentProfit,
		ProfitCapturedPct:  capturedPct,
		RemainingProfit:    remainingProfit,
		CushionPct:         cushionPct,
		Breakeven:          pos.LongStrike + pos.CostBasis,
		TimeValueRemaining: timeValue,
		ThetaBucket:        thetaBucket(pos.DTE, timeValue, width),
		Recommendation:     ActionHold,
		Confidence:         confBaseline,
	}

	// Rule 1: how much of the max profit is already in hand.
	switch {
	case capturedPct >= 90:
		a.Recommendation = ActionClose
		a.Confidence += 15
		a.addReason("Captured %.0f%% of max profit; almost nothing left to earn, close and redeploy.", capturedPct)
	case capturedPct >= 75:
		a.Recommendation = ActionClose
		a.Confidence += 5
		a.addReason("Captured %.0f%% of max profit; the remaining upside no longer pays for the risk.", capturedPct)
	case capturedPct >= 50:
		a.addReason("Captured %.0f%% of max profit; position is working, let it continue.", capturedPct)
	default:
		a.Confidence += 10
		a.addReason("Only %.0f%% of max profit captured; substantial upside remains.", capturedPct)
	}

	// Rule 2: cushion to the short strike. A breach with time left overrides
	// whatever rule 1 decided.
	switch {
	case cushionPct > 10:
		a.Confidence += 10
		a.addReason("Price is %.1f%% above the short strike; comfortable cushion.", cushionPct)
	case cushionPct >= 5:
		a.Confidence += 5
		a.addReason("Price is %.1f%% above the short strike; adequate cushion.", cushionPct)
	case cushionPct > 0:
		a.Confidence -= 10
		a.addReason("Cushion to the short strike is down to %.1f%%; a small move erases the edge.", cushionPct)
	default:
		a.Confidence -= 20
		a.addReason("Price has breached the short strike (cushion %.1f%%).", cushionPct)
		if pos.DTE > 14 {
			a.Recommendation = ActionRoll
			a.addReason("With %d days to expiration there is still time to roll into a better-placed spread.", pos.DTE)
		}
	}

	// Rule 3: expiry pressure. An almost-done position close to expiry should
	// be taken off even if the cushion rule wanted a roll.
	if pos.DTE <= 7 && capturedPct < 80 {
		a.addReason("Only %d days to expiration with %.0f%% of max profit captured; time is running out.", pos.DTE, capturedPct)
		if capturedPct > 50 {
			a.Recommendation = ActionClose
		}
	}

	// Rule 4: always quantify what staying in the trade is still worth.
	a.addReason("Remaining profit is $%.2f per spread (%.0f%% of the %.2f cost basis).",
		remainingProfit, safePct(remainingProfit, pos.CostBasis), pos.CostBasis)

	if a.Confidence > confMax {
		a.Confidence = confMax
	}
	if a.Confidence < confMin {
		a.Confidence = confMin
	}
	return a
}

func (a *Assessment) addReason(format string, args ...any) {
	a.Reasoning = append(a.Reasoning, fmt.Sprintf(format, args...))
}

func safePct(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}
