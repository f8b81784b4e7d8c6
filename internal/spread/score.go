package spread

import "math"

// Sub-score scales. Open interest saturates its half of the liquidity score
// at 1000 contracts average, volume at 200; relative bid/ask spreads cost 5
// points per percent; a leg with no usable market is charged 10% spread.
const (
	liquidityOIUnit     = 500.0
	liquidityVolUnit    = 100.0
	liquidityHalfWeight = 50.0

	defaultLegRelSpread = 0.1
	relSpreadPenalty    = 500.0

	cushionPointsPerPct = 10.0
)

// liquidityScore rates how easily both legs trade, averaging open interest
// and volume across the pair.
func liquidityScore(long, short Quote) float64 {
	avgOI := float64(long.OpenInterest+short.OpenInterest) / 2
	avgVol := float64(long.Volume+short.Volume) / 2
	score := avgOI/liquidityOIUnit*liquidityHalfWeight + avgVol/liquidityVolUnit*liquidityHalfWeight
	return math.Min(100, score)
}

// bidAskScore rates execution quality from relative bid/ask spreads, tighter
// markets scoring higher.
func bidAskScore(long, short Quote) float64 {
	longRel, ok := long.RelativeSpread()
	if !ok {
		longRel = defaultLegRelSpread
	}
	shortRel, ok := short.RelativeSpread()
	if !ok {
		shortRel = defaultLegRelSpread
	}
	avgRel := (longRel + shortRel) / 2
	return math.Max(0, 100-avgRel*relSpreadPenalty)
}

// Technical score bonuses. The score opens neutral at 50 and accumulates
// independent additive bonuses, clamped to 100 at the end.
const (
	technicalBase = 50.0

	bonusStrongSupport   = 15.0
	bonusModerateSupport = 8.0

	bonusBelowMA20  = 10.0
	bonusBelowMA50  = 12.0
	bonusBelowMA200 = 15.0

	bonusAtFairValue   = 15.0
	bonusNearFairValue = 8.0
	nearFairValueBand  = 1.02

	putWallBonusMax    = 20.0
	putWallBonusPerPct = 4.0

	bonusBelowMaxPain = 5.0
)

// technicalScore biases a candidate by how well its breakeven is protected:
// support levels, moving averages, fair value, dealer positioning. A nil
// context leaves the score at its neutral base.
func technicalScore(breakeven, spot float64, tc *SelectionContext) float64 {
	score := technicalBase
	if tc == nil {
		return score
	}

	for _, level := range tc.Supports {
		if level.Price <= breakeven {
			continue
		}
		switch level.Strength {
		case StrengthStrong:
			score += bonusStrongSupport
		case StrengthModerate:
			score += bonusModerateSupport
		}
	}

	if tc.MA20 != nil && breakeven < *tc.MA20 {
		score += bonusBelowMA20
	}
	if tc.MA50 != nil && breakeven < *tc.MA50 {
		score += bonusBelowMA50
	}
	if tc.MA200 != nil && breakeven < *tc.MA200 {
		score += bonusBelowMA200
	}

	if fv := tc.FairValue; fv != nil && fv.Bias == BiasBullish {
		switch {
		case spot <= fv.Price:
			score += bonusAtFairValue
		case spot <= fv.Price*nearFairValueBand:
			score += bonusNearFairValue
		}
	}

	if wall, ok := nearestPutWallAbove(tc.PutWalls, breakeven); ok && spot > 0 {
		distPct := (wall - breakeven) / spot * 100
		score += math.Min(putWallBonusMax, distPct*putWallBonusPerPct)
	}

	if tc.MaxPain != nil && breakeven < *tc.MaxPain {
		score += bonusBelowMaxPain
	}

	return math.Min(100, score)
}

// nearestPutWallAbove picks the closest put wall strike strictly above the
// breakeven, the level most likely to defend the spread.
func nearestPutWallAbove(walls []float64, breakeven float64) (float64, bool) {
	best := math.MaxFloat64
	found := false
	for _, w := range walls {
		if w > breakeven && w < best {
			best = w
			found = true
		}
	}
	return best, found
}

// scoreCandidates fills in the cushion, technical and total scores. Cushion
// and technical alignment carry the heaviest weights: they predict whether
// the position survives to profitability, while liquidity and bid/ask gauge
// execution quality.
func (e *Engine) scoreCandidates(candidates []Candidate, spot float64, tc *SelectionContext) {
	w := e.cfg.ScoreWeights
	for i := range candidates {
		c := &candidates[i]
		c.CushionScore = math.Min(100, c.CushionPct*cushionPointsPerPct)
		c.TechnicalScore = technicalScore(c.Breakeven, spot, tc)
		c.TotalScore = w.Cushion*c.CushionScore +
			w.Liquidity*c.LiquidityScore +
			w.BidAsk*c.BidAskScore +
			w.Technical*c.TechnicalScore
	}
}
