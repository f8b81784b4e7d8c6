package spread

import "math"

// findCallNear returns the call quote whose strike is closest to target
// within tolerance. ok is false when no strike qualifies.
func findCallNear(calls []Quote, target, tolerance float64) (Quote, bool) {
	var best Quote
	bestDiff := math.MaxFloat64
	found := false
	for _, q := range calls {
		diff := math.Abs(q.Strike - target)
		if diff <= tolerance && diff < bestDiff {
			best = q
			bestDiff = diff
			found = true
		}
	}
	return best, found
}

// generateCandidates enumerates long/short call pairs for every configured
// width, with the long strike inside the ITM band below spot and both legs
// clearing the open interest gate. Pairs that cannot be priced within the
// debit invariant are discarded and counted; pairs whose return on risk or
// cushion fall below the configured floors are dropped silently.
func (e *Engine) generateCandidates(snap ChainSnapshot, dte int) (candidates []Candidate, discarded int) {
	spot := snap.Spot
	bandHigh := spot * (1 - e.cfg.ITMBandMin) // shallowest acceptable long strike
	bandLow := spot * (1 - e.cfg.ITMBandMax)  // deepest acceptable long strike

	for _, width := range e.cfg.sortedWidths() {
		for _, long := range snap.Calls {
			if long.Strike < bandLow || long.Strike > bandHigh {
				continue
			}
			if long.OpenInterest < e.cfg.MinOpenInterest {
				continue
			}

			short, ok := findCallNear(snap.Calls, long.Strike+width, e.cfg.StrikeTolerance)
			if !ok || short.OpenInterest < e.cfg.MinOpenInterest {
				continue
			}

			spreadWidth := short.Strike - long.Strike
			if spreadWidth <= 0 {
				continue
			}

			debit, ok := estimateDebit(long, short, spot, spreadWidth)
			if !ok {
				discarded++
				continue
			}

			maxProfit := spreadWidth - debit
			breakeven := long.Strike + debit
			cushionPct := (spot - breakeven) / spot * 100
			returnOnRiskPct := maxProfit / debit * 100

			if returnOnRiskPct < e.cfg.MinReturnOnRiskPct || cushionPct < e.cfg.MinCushionPct {
				continue
			}

			iv := long.ImpliedVol
			if iv <= 0 {
				iv = e.cfg.DefaultIV
			}

			candidates = append(candidates, Candidate{
				LongStrike:          long.Strike,
				ShortStrike:         short.Strike,
				Width:               spreadWidth,
				Expiration:          snap.Expiration,
				DTE:                 dte,
				Debit:               debit,
				MaxProfit:           maxProfit,
				Breakeven:           breakeven,
				CushionPct:          cushionPct,
				ReturnOnRiskPct:     returnOnRiskPct,
				ProbabilityOfProfit: probabilityOfProfit(spot, breakeven, iv, dte),
				LiquidityScore:      liquidityScore(long, short),
				BidAskScore:         bidAskScore(long, short),
			})
		}
	}

	return candidates, discarded
}
