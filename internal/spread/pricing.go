package spread

import (
	"github.com/eddiefleurent/schrute_spreads/internal/util"
)

// A debitEstimator proposes a debit for a long/short call pair. Estimators
// run in order; the first one whose result survives the debit invariant wins.
// Appending a new fallback tier means appending to debitEstimators.
type debitEstimator func(long, short Quote, spot, width float64) float64

var debitEstimators = []debitEstimator{
	estimateFillDebit,
	estimateMidDebit,
	estimateRatioDebit,
}

// estimateFillDebit models the worst case a retail order is likely to fill
// at: buy the long leg at the ask, sell the short leg at the bid.
func estimateFillDebit(long, short Quote, _, _ float64) float64 {
	return long.Ask - short.Bid
}

// estimateMidDebit prices the spread off bid/ask midpoints, for quotes whose
// touch prices are stale or zero (after hours, illiquid strikes).
func estimateMidDebit(long, short Quote, _, _ float64) float64 {
	return long.Mid() - short.Mid()
}

// Deep ITM spreads trade near, but below, their full intrinsic width. The
// ratio estimate anchors at 75% of width and adds up to 20 points with ITM
// depth, capped so the debit always stays under width.
const (
	ratioDebitBase      = 0.75
	ratioDebitITMFactor = 0.2
	ratioDebitCap       = 0.95
)

// estimateRatioDebit is the last resort when neither quote-derived estimate
// is usable: a fraction of width growing with how deep ITM the long leg sits.
func estimateRatioDebit(long, _ Quote, spot, width float64) float64 {
	if spot <= 0 {
		return 0
	}
	itmDepth := (spot - long.Strike) / spot
	ratio := ratioDebitBase + itmDepth*ratioDebitITMFactor
	if ratio > ratioDebitCap {
		ratio = ratioDebitCap
	}
	return width * ratio
}

// priceTick is the cent increment estimates are rounded to.
const priceTick = 0.01

// validDebit is the invariant every usable debit must satisfy.
func validDebit(debit, width float64) bool {
	return debit > 0 && debit < width
}

// estimateDebit walks the estimator chain and returns the first debit
// satisfying 0 < debit < width, rounded to the cent. ok is false when every
// tier fails, in which case the caller must discard the candidate rather
// than coerce a value into range.
func estimateDebit(long, short Quote, spot, width float64) (float64, bool) {
	for _, estimate := range debitEstimators {
		debit := util.RoundToTick(estimate(long, short, spot, width), priceTick)
		if validDebit(debit, width) {
			return debit, true
		}
	}
	return 0, false
}
